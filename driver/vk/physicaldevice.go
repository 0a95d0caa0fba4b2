package vk

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkez/driver"
)

// PhysicalDevice is a GPU visible to an Instance.
type PhysicalDevice struct {
	inst   *Instance
	handle vk.PhysicalDevice
	props  driver.Properties
}

func newPhysicalDevice(inst *Instance, h vk.PhysicalDevice) *PhysicalDevice {
	p := &PhysicalDevice{inst: inst, handle: h}

	var dp vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(h, &dp)
	dp.Deref()
	dp.Limits.Deref()
	l := dp.Limits
	p.props = driver.Properties{
		DeviceName:    vk.ToString(dp.DeviceName[:]),
		DeviceType:    driver.DeviceType(dp.DeviceType),
		VendorID:      dp.VendorID,
		DeviceID:      dp.DeviceID,
		DriverVersion: dp.DriverVersion,
		APIVersion:    dp.ApiVersion,
		Limits: driver.Limits{
			BufferImageGranularity:          uint64(l.BufferImageGranularity),
			NonCoherentAtomSize:             uint64(l.NonCoherentAtomSize),
			MinUniformBufferOffsetAlignment: uint64(l.MinUniformBufferOffsetAlignment),
			MinStorageBufferOffsetAlignment: uint64(l.MinStorageBufferOffsetAlignment),
			MinTexelBufferOffsetAlignment:   uint64(l.MinTexelBufferOffsetAlignment),
			MaxPushConstantsSize:            l.MaxPushConstantsSize,
			MaxBoundDescriptorSets:          l.MaxBoundDescriptorSets,
			MaxColorAttachments:             l.MaxColorAttachments,
			MaxMemoryAllocationCount:        l.MaxMemoryAllocationCount,
			MaxViewports:                    l.MaxViewports,
			MaxFramebufferWidth:             l.MaxFramebufferWidth,
			MaxFramebufferHeight:            l.MaxFramebufferHeight,
			MaxImageDimension2D:             l.MaxImageDimension2D,
			TimestampPeriod:                 l.TimestampPeriod,
		},
	}
	copy(p.props.PipelineCacheUUID[:], dp.PipelineCacheUUID[:])

	f := p.features()
	p.props.Features = driver.Features{
		SamplerAnisotropy:  f.SamplerAnisotropy == vk.True,
		WideLines:          f.WideLines == vk.True,
		DepthBounds:        f.DepthBounds == vk.True,
		DepthClamp:         f.DepthClamp == vk.True,
		FillModeNonSolid:   f.FillModeNonSolid == vk.True,
		MultiViewport:      f.MultiViewport == vk.True,
		IndependentBlend:   f.IndependentBlend == vk.True,
		SampleRateShading:  f.SampleRateShading == vk.True,
		GeometryShader:     f.GeometryShader == vk.True,
		TessellationShader: f.TessellationShader == vk.True,
		LogicOp:            f.LogicOp == vk.True,
		MultiDrawIndirect:  f.MultiDrawIndirect == vk.True,
	}

	var mp vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(h, &mp)
	mp.Deref()
	for i := uint32(0); i < mp.MemoryTypeCount; i++ {
		mt := mp.MemoryTypes[i]
		mt.Deref()
		p.props.MemoryTypes = append(p.props.MemoryTypes, driver.MemoryType{
			Flags:     driver.MemoryProperty(mt.PropertyFlags),
			HeapIndex: mt.HeapIndex,
		})
	}
	for i := uint32(0); i < mp.MemoryHeapCount; i++ {
		mh := mp.MemoryHeaps[i]
		mh.Deref()
		p.props.MemoryHeaps = append(p.props.MemoryHeaps, driver.MemoryHeap{
			Size:        uint64(mh.Size),
			DeviceLocal: mh.Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0,
		})
	}

	var n uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(h, &n, nil)
	qs := make([]vk.QueueFamilyProperties, n)
	vk.GetPhysicalDeviceQueueFamilyProperties(h, &n, qs)
	for _, q := range qs[:n] {
		q.Deref()
		p.props.QueueFamilies = append(p.props.QueueFamilies, driver.QueueFamily{
			Flags:              driver.QueueFlags(q.QueueFlags),
			Count:              q.QueueCount,
			TimestampValidBits: q.TimestampValidBits,
		})
	}
	return p
}

func (p *PhysicalDevice) features() vk.PhysicalDeviceFeatures {
	var f vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(p.handle, &f)
	f.Deref()
	return f
}

func (p *PhysicalDevice) String() string {
	return p.props.DeviceName
}

// Properties returns the device's properties. QueueFamilies[i].Present is
// only known on a created Device.
func (p *PhysicalDevice) Properties() *driver.Properties {
	return &p.props
}

// SupportsPresent reports whether queue family index can present to s.
func (p *PhysicalDevice) SupportsPresent(family uint32, s driver.Surface) bool {
	var ok vk.Bool32
	vk.GetPhysicalDeviceSurfaceSupport(p.handle, family, p.inst.surfaces.get(s), &ok)
	return ok == vk.True
}

// SupportedExtensions lists the device extensions.
func (p *PhysicalDevice) SupportedExtensions() ([]string, error) {
	var n uint32
	if err := check(vk.EnumerateDeviceExtensionProperties(p.handle, "", &n, nil)); err != nil {
		return nil, errors.Wrap(err, "enumerating device extensions")
	}
	ext := make([]vk.ExtensionProperties, n)
	if err := check(vk.EnumerateDeviceExtensionProperties(p.handle, "", &n, ext)); err != nil {
		return nil, errors.Wrap(err, "enumerating device extensions")
	}
	names := make([]string, 0, n)
	for _, e := range ext[:n] {
		e.Deref()
		names = append(names, vk.ToString(e.ExtensionName[:]))
	}
	return names, nil
}

// DeviceOptions configures CreateDevice.
type DeviceOptions struct {
	// Surface, when set, enables the swapchain extension and marks the
	// queue families that can present to it.
	Surface           driver.Surface
	EnabledExtensions []string
	EnabledLayers     []string
}

// CreateDevice creates a logical device with every queue of every family
// and every supported feature enabled.
func (p *PhysicalDevice) CreateDevice(opts DeviceOptions) (*Device, error) {
	families := p.props.QueueFamilies
	infos := make([]vk.DeviceQueueCreateInfo, 0, len(families))
	for i, f := range families {
		if f.Count == 0 {
			continue
		}
		prio := make([]float32, f.Count)
		for j := range prio {
			prio[j] = 1
		}
		infos = append(infos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: uint32(i),
			QueueCount:       f.Count,
			PQueuePriorities: prio,
		})
	}
	extensions := slices.Clone(opts.EnabledExtensions)
	if opts.Surface != 0 {
		extensions = append(extensions, "VK_KHR_swapchain")
	}
	extensions = safeStrings(extensions)
	layers := safeStrings(opts.EnabledLayers)
	info := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(infos)),
		PQueueCreateInfos:       infos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{p.features()},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}
	var h vk.Device
	if err := check(vk.CreateDevice(p.handle, &info, nil, &h)); err != nil {
		return nil, errors.Wrapf(err, "creating device on %s", p)
	}
	d := &Device{phys: p, handle: h, props: p.props}
	d.props.QueueFamilies = append([]driver.QueueFamily(nil), families...)
	if opts.Surface != 0 {
		for i := range d.props.QueueFamilies {
			d.props.QueueFamilies[i].Present = p.SupportsPresent(uint32(i), opts.Surface)
		}
	}
	p.inst.log.Info("vulkan device created", "device", p.props.DeviceName,
		"api", VersionString(p.props.APIVersion))
	return d, nil
}

// VersionString formats a packed Vulkan version.
func VersionString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>22, v>>12&0x3ff, v&0xfff)
}
