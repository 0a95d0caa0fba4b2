// Command vkezinfo lists the Vulkan layers, extensions and physical devices
// and, with -open, the queues and memory a vkez device would use.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"slices"
	"strings"

	gu "github.com/docker/go-units"
	"golang.org/x/exp/maps"

	"github.com/celer/vkez"
	"github.com/celer/vkez/driver"
	vkd "github.com/celer/vkez/driver/vk"
)

func orPanic(err error) {
	if err != nil {
		panic(err)
	}
}

func flagNames[T ~uint32](f T, names map[T]string) string {
	var s []string
	for bit, name := range names {
		if f&bit != 0 {
			s = append(s, name)
		}
	}
	if len(s) == 0 {
		return fmt.Sprintf("(%x)", uint32(f))
	}
	slices.Sort(s)
	return fmt.Sprintf("%s (%x)", strings.Join(s, "|"), uint32(f))
}

var memoryFlags = map[driver.MemoryProperty]string{
	driver.MemoryDeviceLocal:     "DeviceLocal",
	driver.MemoryHostVisible:     "HostVisible",
	driver.MemoryHostCoherent:    "HostCoherent",
	driver.MemoryHostCached:      "HostCached",
	driver.MemoryLazilyAllocated: "LazilyAllocated",
}

var queueFlags = map[driver.QueueFlags]string{
	driver.QueueGraphics: "Graphics",
	driver.QueueCompute:  "Compute",
	driver.QueueTransfer: "Transfer",
}

var deviceTypes = map[driver.DeviceType]string{
	driver.DeviceTypeOther:         "other",
	driver.DeviceTypeIntegratedGPU: "integrated",
	driver.DeviceTypeDiscreteGPU:   "discrete",
	driver.DeviceTypeVirtualGPU:    "virtual",
	driver.DeviceTypeCPU:           "cpu",
}

func showFeatures(f driver.Features) {
	tf := reflect.TypeOf(f)
	vf := reflect.ValueOf(f)
	for i := range tf.NumField() {
		fmt.Printf("\t\t%s %v\n", tf.Field(i).Name, vf.Field(i).Bool())
	}
}

func showMemory(p *driver.Properties) {
	fmt.Printf("\n\tTypes\n")
	fmt.Printf("\t\tHeapIdx\tFlags\n")
	for _, mt := range p.MemoryTypes {
		fmt.Printf("\t\t%d\t%s\n", mt.HeapIndex, flagNames(mt.Flags, memoryFlags))
	}
	fmt.Printf("\n\tHeaps\n")
	for _, h := range p.MemoryHeaps {
		local := ""
		if h.DeviceLocal {
			local = "DeviceLocal"
		}
		fmt.Printf("\t\t%s\t%s\n", gu.BytesSize(float64(h.Size)), local)
	}
}

func showPhysicalDevice(pd *vkd.PhysicalDevice) {
	p := pd.Properties()
	fmt.Printf("\n%s (%s, api %s)\n", p.DeviceName, deviceTypes[p.DeviceType], vkd.VersionString(p.APIVersion))
	fmt.Printf("-----------------------------\n")
	fmt.Printf("\n\tQueue Families\n")
	for i, qf := range p.QueueFamilies {
		fmt.Printf("\t\t%d: %d x %s\n", i, qf.Count, flagNames(qf.Flags, queueFlags))
	}
	fmt.Printf("\n\tFeatures\n")
	showFeatures(p.Features)
	showMemory(p)
	fmt.Printf("\n\tLimits\n")
	fmt.Printf("\t\tpush constants %s, bound sets %d, color attachments %d, framebuffer %dx%d\n",
		gu.BytesSize(float64(p.Limits.MaxPushConstantsSize)), p.Limits.MaxBoundDescriptorSets,
		p.Limits.MaxColorAttachments, p.Limits.MaxFramebufferWidth, p.Limits.MaxFramebufferHeight)
	fmt.Printf("\n\tSupported Extensions\n")
	extensions, err := pd.SupportedExtensions()
	orPanic(err)
	for _, ext := range extensions {
		fmt.Printf("\t\t%s\n", ext)
	}
}

func list(title string, data []string) {
	fmt.Printf("%s\n", title)
	fmt.Printf("-----------------------------\n")
	for _, d := range data {
		fmt.Printf("\t%s\n", d)
	}
	fmt.Printf("\n")
}

func showDevice(pd *vkd.PhysicalDevice, cfg vkez.Config) {
	drv, err := pd.CreateDevice(vkd.DeviceOptions{})
	orPanic(err)
	d, err := vkez.NewDevice(drv, cfg)
	orPanic(err)
	defer func() { orPanic(d.Destroy()) }()

	fmt.Printf("\n\tvkez queues\n")
	queues := map[string]*vkez.Queue{
		"graphics": d.GraphicsQueue(),
		"compute":  d.ComputeQueue(),
		"transfer": d.TransferQueue(),
	}
	names := maps.Keys(queues)
	slices.Sort(names)
	for _, name := range names {
		q := queues[name]
		if q == nil {
			fmt.Printf("\t\t%s: none\n", name)
			continue
		}
		fmt.Printf("\t\t%s: %s\n", name, q)
	}
	fmt.Printf("\n\tvkez state\n\t\t%s\n", d.Stats())
}

func main() {
	open := flag.Bool("open", false, "create a vkez device on every physical device")
	configPath := flag.String("config", "", "TOML configuration file")
	flag.Parse()

	cfg := vkez.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = vkez.LoadConfig(*configPath)
		orPanic(err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	vkez.SetLogger(logger)

	orPanic(vkd.Init())

	extensions, err := vkd.SupportedExtensions()
	orPanic(err)
	list("Extensions", extensions)

	layers, err := vkd.SupportedLayers()
	orPanic(err)
	list("Layers", layers)

	app := &vkd.App{Name: "vkezinfo", Logger: logger}
	instance, err := app.CreateInstance()
	orPanic(err)
	defer instance.Destroy()

	physicalDevices, err := instance.PhysicalDevices()
	orPanic(err)
	for _, pd := range physicalDevices {
		showPhysicalDevice(pd)
		if *open {
			showDevice(pd, cfg)
		}
	}
}
