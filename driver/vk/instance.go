// Package vk implements driver.Device on top of Vulkan through
// github.com/vulkan-go/vulkan.
package vk

import (
	"log/slog"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkez/driver"
)

// Init loads the Vulkan loader for headless use.
func Init() error {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return errors.Wrap(err, "loading vulkan")
	}
	return errors.Wrap(vk.Init(), "initializing vulkan")
}

// InitGLFW loads Vulkan through GLFW. glfw.Init must have been called.
func InitGLFW() error {
	if !glfw.VulkanSupported() {
		return errors.Wrap(driver.ErrInitializationFailed, "glfw reports no vulkan support")
	}
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	return errors.Wrap(vk.Init(), "initializing vulkan")
}

// Version is used to specify versions of components
type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) vkVersion() uint32 {
	return vk.MakeVersion(v.Major, v.Minor, v.Patch)
}

// App describes the application to the instance.
type App struct {
	Name       string
	EngineName string
	Version    Version
	// APIVersion defaults to 1.0.0.
	APIVersion Version

	EnabledLayers     []string
	EnabledExtensions []string

	// Logger receives validation messages. Nil uses slog.Default.
	Logger *slog.Logger
}

// SupportedLayers lists the instance layers. Vulkan must be initialized.
func SupportedLayers() ([]string, error) {
	var n uint32
	if err := check(vk.EnumerateInstanceLayerProperties(&n, nil)); err != nil {
		return nil, errors.Wrap(err, "enumerating layers")
	}
	props := make([]vk.LayerProperties, n)
	if err := check(vk.EnumerateInstanceLayerProperties(&n, props)); err != nil {
		return nil, errors.Wrap(err, "enumerating layers")
	}
	names := make([]string, 0, n)
	for _, p := range props[:n] {
		p.Deref()
		names = append(names, vk.ToString(p.LayerName[:]))
	}
	return names, nil
}

// SupportedExtensions lists the instance extensions. Vulkan must be
// initialized.
func SupportedExtensions() ([]string, error) {
	var n uint32
	if err := check(vk.EnumerateInstanceExtensionProperties("", &n, nil)); err != nil {
		return nil, errors.Wrap(err, "enumerating extensions")
	}
	props := make([]vk.ExtensionProperties, n)
	if err := check(vk.EnumerateInstanceExtensionProperties("", &n, props)); err != nil {
		return nil, errors.Wrap(err, "enumerating extensions")
	}
	names := make([]string, 0, n)
	for _, p := range props[:n] {
		p.Deref()
		names = append(names, vk.ToString(p.ExtensionName[:]))
	}
	return names, nil
}

// EnableDebugging turns on the Khronos validation layer and debug reports.
func (a *App) EnableDebugging() error {
	if err := a.EnableLayer("VK_LAYER_KHRONOS_validation"); err != nil {
		return err
	}
	a.EnableExtension("VK_EXT_debug_report")
	return nil
}

// EnableLayer enables a layer, failing if the loader does not have it.
func (a *App) EnableLayer(layer string) error {
	layers, err := SupportedLayers()
	if err != nil {
		return err
	}
	for _, l := range layers {
		if l == layer {
			a.EnabledLayers = append(a.EnabledLayers, layer)
			return nil
		}
	}
	return errors.Wrapf(driver.ErrLayerNotPresent, "layer %q", layer)
}

func (a *App) EnableExtension(extension string) {
	a.EnabledExtensions = append(a.EnabledExtensions, extension)
}

func (a *App) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// CreateInstance creates the Vulkan instance. When the debug report
// extension is enabled, validation messages go to the App's logger.
func (a *App) CreateInstance() (*Instance, error) {
	api := a.APIVersion
	if api.Major < 1 {
		api = Version{Major: 1}
	}
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         api.vkVersion(),
		ApplicationVersion: a.Version.vkVersion(),
		PApplicationName:   safeString(a.Name),
		PEngineName:        safeString(a.EngineName),
	}
	extensions := safeStrings(a.EnabledExtensions)
	layers := safeStrings(a.EnabledLayers)
	info := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}
	inst := &Instance{log: a.logger()}
	if err := check(vk.CreateInstance(&info, nil, &inst.handle)); err != nil {
		return nil, errors.Wrap(err, "creating instance")
	}
	if err := vk.InitInstance(inst.handle); err != nil {
		vk.DestroyInstance(inst.handle, nil)
		return nil, errors.Wrap(err, "loading instance functions")
	}
	for _, e := range a.EnabledExtensions {
		if e == "VK_EXT_debug_report" {
			if err := inst.setDebugCallback(); err != nil {
				inst.log.Warn("debug report callback unavailable", "err", err)
			}
		}
	}
	return inst, nil
}

// Instance is an instance of the Vulkan subsystem.
type Instance struct {
	handle   vk.Instance
	debug    vk.DebugReportCallback
	hasDebug bool
	log      *slog.Logger
	surfaces table[driver.Surface, vk.Surface]
}

// PhysicalDevices returns the physical devices known to the instance.
func (i *Instance) PhysicalDevices() ([]*PhysicalDevice, error) {
	var n uint32
	if err := check(vk.EnumeratePhysicalDevices(i.handle, &n, nil)); err != nil {
		return nil, errors.Wrap(err, "enumerating physical devices")
	}
	if n == 0 {
		return nil, nil
	}
	handles := make([]vk.PhysicalDevice, n)
	if err := check(vk.EnumeratePhysicalDevices(i.handle, &n, handles)); err != nil {
		return nil, errors.Wrap(err, "enumerating physical devices")
	}
	ret := make([]*PhysicalDevice, 0, n)
	for _, h := range handles[:n] {
		ret = append(ret, newPhysicalDevice(i, h))
	}
	return ret, nil
}

func (i *Instance) setDebugCallback() error {
	err := check(vk.CreateDebugReportCallback(i.handle, &vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit |
			vk.DebugReportPerformanceWarningBit),
		PfnCallback: i.debugReport,
	}, nil, &i.debug))
	i.hasDebug = err == nil
	return err
}

func (i *Instance) debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	attrs := []any{"layer", pLayerPrefix, "code", messageCode}
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		i.log.Error(pMessage, attrs...)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		i.log.Warn(pMessage, attrs...)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		i.log.Warn(pMessage, append(attrs, "performance", true)...)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		i.log.Debug(pMessage, attrs...)
	default:
		i.log.Info(pMessage, attrs...)
	}
	return vk.Bool32(vk.False)
}

// Destroy destroys the instance and any surfaces still registered with it.
func (i *Instance) Destroy() {
	for _, s := range i.surfaces.m {
		vk.DestroySurface(i.handle, s, nil)
	}
	i.surfaces.m = nil
	if i.hasDebug {
		vk.DestroyDebugReportCallback(i.handle, i.debug, nil)
	}
	vk.DestroyInstance(i.handle, nil)
}
