// Command vkezquad draws a spinning textured quad into an offscreen color
// image and presents it through a vkez swapchain. Press V to toggle vsync.
package main

import (
	"flag"
	"log/slog"
	"os"
	"runtime"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/glfw/v3.3/glfw"
	lin "github.com/xlab/linmath"

	"github.com/celer/vkez"
	"github.com/celer/vkez/driver"
	vkd "github.com/celer/vkez/driver/vk"
)

var (
	width      = flag.Int("width", 800, "initial window width")
	height     = flag.Int("height", 600, "initial window height")
	texture    = flag.String("texture", "", "PNG or JPEG texture; a checkerboard when empty")
	configPath = flag.String("config", "", "TOML configuration file")
	debug      = flag.Bool("debug", false, "enable the validation layer")
)

func init() {
	runtime.LockOSThread()
}

func orPanic(err error) {
	if err != nil {
		panic(err)
	}
}

type Vertex struct {
	Pos lin.Vec3
	UV  lin.Vec2
}

type VertexData []Vertex

func (VertexData) VertexBinding() driver.VertexBinding {
	return driver.VertexBinding{Binding: 0, Stride: uint32(unsafe.Sizeof(Vertex{})), Rate: driver.InputRateVertex}
}

func (VertexData) VertexAttributes() []driver.VertexAttribute {
	return []driver.VertexAttribute{
		{Location: 0, Binding: 0, Format: driver.FormatR32G32B32Sfloat, Offset: 0},
		{Location: 1, Binding: 0, Format: driver.FormatR32G32Sfloat, Offset: uint32(unsafe.Offsetof(Vertex{}.UV))},
	}
}

var quad = VertexData{
	{Pos: lin.Vec3{-0.5, -0.5, 0}, UV: lin.Vec2{0, 0}},
	{Pos: lin.Vec3{0.5, -0.5, 0}, UV: lin.Vec2{1, 0}},
	{Pos: lin.Vec3{0.5, 0.5, 0}, UV: lin.Vec2{1, 1}},
	{Pos: lin.Vec3{-0.5, 0.5, 0}, UV: lin.Vec2{0, 1}},
}

var quadIndices = vkez.Uint16Indices{0, 1, 2, 2, 3, 0}

type QuadDemo struct {
	window   *glfw.Window
	instance *vkd.Instance
	surface  driver.Surface
	device   *vkez.Device
	sc       *vkez.Swapchain

	pipeline *vkez.Pipeline
	format   *vkez.VertexInputFormat
	vertices *vkez.Buffer
	indices  *vkez.Buffer
	ubo      *vkez.Buffer
	tex      *vkez.Image
	texView  *vkez.ImageView
	sampler  *vkez.Sampler

	// color is the offscreen target presented each frame.
	color     *vkez.Image
	colorView *vkez.ImageView
	fb        *vkez.Framebuffer

	cb    *vkez.CommandBuffer
	fence *vkez.Fence
	start time.Time
}

func (c *QuadDemo) initWindow() {
	orPanic(glfw.Init())
	orPanic(vkd.InitGLFW())

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(*width, *height, "vkezquad", nil, nil)
	orPanic(err)
	c.window = window
	window.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyV && action == glfw.Press {
			c.sc.SetVSync(!c.sc.VSync())
			slog.Info("vsync toggled", "on", c.sc.VSync())
		}
	})
}

func (c *QuadDemo) initDevice(cfg vkez.Config, logger *slog.Logger) {
	app := &vkd.App{
		Name:              "vkezquad",
		EngineName:        "vkez",
		Version:           vkd.Version{Major: 1},
		EnabledExtensions: vkd.GLFWExtensions(c.window),
		Logger:            logger,
	}
	if *debug {
		orPanic(app.EnableDebugging())
	}
	instance, err := app.CreateInstance()
	orPanic(err)
	c.instance = instance

	c.surface, err = instance.NewGLFWSurface(c.window)
	orPanic(err)

	pds, err := instance.PhysicalDevices()
	orPanic(err)
	if len(pds) == 0 {
		panic(errors.Wrap(driver.ErrInitializationFailed, "no vulkan device"))
	}
	drv, err := pds[0].CreateDevice(vkd.DeviceOptions{Surface: c.surface})
	orPanic(err)
	c.device, err = vkez.NewDevice(drv, cfg)
	orPanic(err)

	w, h := c.window.GetFramebufferSize()
	c.sc, err = c.device.CreateSwapchain(&vkez.SwapchainCreateInfo{
		Surface: c.surface,
		Extent:  driver.Extent2D{Width: uint32(w), Height: uint32(h)},
		VSync:   cfg.Swapchain.VSync,
	})
	orPanic(err)
}

func (c *QuadDemo) initResources() {
	d := c.device
	vert, err := d.CreateShaderModule(&vkez.ShaderModuleCreateInfo{Stage: driver.ShaderStageVertex, Source: vertexSource})
	if err != nil && vert != nil {
		slog.Error("vertex shader", "log", vert.InfoLog())
	}
	orPanic(err)
	defer vert.Destroy()
	frag, err := d.CreateShaderModule(&vkez.ShaderModuleCreateInfo{Stage: driver.ShaderStageFragment, Source: fragmentSource})
	if err != nil && frag != nil {
		slog.Error("fragment shader", "log", frag.InfoLog())
	}
	orPanic(err)
	defer frag.Destroy()

	c.pipeline, err = d.CreateGraphicsPipeline(&vkez.GraphicsPipelineCreateInfo{
		Stages: []vkez.PipelineShaderStage{{Module: vert}, {Module: frag}},
	})
	orPanic(err)
	c.format, err = d.VertexInputFormatOf(quad)
	orPanic(err)

	c.vertices, err = d.CreateBuffer(&vkez.BufferCreateInfo{
		Size:  uint64(len(vkez.Bytes(quad))),
		Usage: driver.BufferUsageVertex | driver.BufferUsageTransferDst,
	}, vkez.MemoryGPUOnly)
	orPanic(err)
	orPanic(d.BufferSubData(c.vertices, 0, vkez.Bytes(quad)))

	c.indices, err = d.CreateBuffer(&vkez.BufferCreateInfo{
		Size:  uint64(len(quadIndices.Bytes())),
		Usage: driver.BufferUsageIndex | driver.BufferUsageTransferDst,
	}, vkez.MemoryGPUOnly)
	orPanic(err)
	orPanic(d.BufferSubData(c.indices, 0, quadIndices.Bytes()))

	c.ubo, err = d.CreateBuffer(&vkez.BufferCreateInfo{
		Size:  uint64(unsafe.Sizeof(lin.Mat4x4{})),
		Usage: driver.BufferUsageUniform,
	}, vkez.MemoryCPUToGPU)
	orPanic(err)

	img, err := loadImage(*texture)
	orPanic(err)
	c.tex, err = uploadTexture(d, img)
	orPanic(err)
	c.texView, err = d.CreateImageView(&vkez.ImageViewCreateInfo{Image: c.tex, ViewType: driver.ImageViewType2D})
	orPanic(err)
	c.sampler, err = d.CreateSampler(&driver.SamplerCreateInfo{
		MagFilter:    driver.FilterLinear,
		MinFilter:    driver.FilterLinear,
		MipmapMode:   driver.MipmapModeLinear,
		AddressModeU: driver.AddressModeRepeat,
		AddressModeV: driver.AddressModeRepeat,
		AddressModeW: driver.AddressModeRepeat,
		MaxLod:       1,
	})
	orPanic(err)

	c.cb, err = d.AllocateCommandBuffer(d.GraphicsQueue())
	orPanic(err)
	c.fence, err = d.CreateFence(true)
	orPanic(err)
	c.start = time.Now()
}

// resize creates the offscreen target at the swapchain's extent.
func (c *QuadDemo) resize() {
	c.destroyTarget()
	d := c.device
	extent := c.sc.Extent()
	var err error
	c.color, err = d.CreateImage(&vkez.ImageCreateInfo{
		Type:   driver.ImageType2D,
		Format: c.sc.Format(),
		Extent: driver.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		Usage:  driver.ImageUsageColorAttachment | driver.ImageUsageTransferSrc,
	}, vkez.MemoryGPUOnly)
	orPanic(err)
	c.colorView, err = d.CreateImageView(&vkez.ImageViewCreateInfo{Image: c.color, ViewType: driver.ImageViewType2D})
	orPanic(err)
	c.fb, err = d.CreateFramebuffer(&vkez.FramebufferCreateInfo{Attachments: []*vkez.ImageView{c.colorView}})
	orPanic(err)
}

func (c *QuadDemo) destroyTarget() {
	if c.fb == nil {
		return
	}
	c.fb.Destroy()
	c.colorView.Destroy()
	c.color.Destroy()
	c.fb, c.colorView, c.color = nil, nil, nil
}

func (c *QuadDemo) updateUBO() {
	extent := c.sc.Extent()
	var model, view, proj, vp, mvp lin.Mat4x4
	model.Identity()
	var m lin.Mat4x4
	m.Dup(&model)
	model.Rotate(&m, 0, 0, 1, float32(time.Since(c.start).Seconds()))
	view.LookAt(&lin.Vec3{0, -1.5, 1.5}, &lin.Vec3{0, 0, 0}, &lin.Vec3{0, 0, 1})
	proj.Perspective(lin.DegreesToRadians(45), float32(extent.Width)/float32(extent.Height), 0.1, 10)
	proj[1][1] *= -1
	vp.Mult(&proj, &view)
	mvp.Mult(&vp, &model)
	orPanic(c.device.BufferSubData(c.ubo, 0, vkez.Bytes(mvp[:])))
}

func (c *QuadDemo) record() {
	cb := c.cb
	orPanic(cb.Begin())
	cb.BeginRenderPass(&vkez.RenderPassBeginInfo{
		Framebuffer: c.fb,
		Attachments: []vkez.AttachmentReference{{
			LoadOp:     driver.LoadOpClear,
			StoreOp:    driver.StoreOpStore,
			ClearValue: driver.ClearValue{Color: [4]float32{0.1, 0.1, 0.12, 1}},
		}},
	})
	cb.BindPipeline(c.pipeline)
	cb.SetVertexInputFormat(c.format)
	cb.BindVertexBuffers(0, []*vkez.Buffer{c.vertices}, []uint64{0})
	cb.BindIndexBuffer(c.indices, 0, quadIndices.IndexType())
	cb.BindBuffer(c.ubo, 0, driver.WholeSize, 0, 0, 0)
	cb.BindImageView(c.texView, nil, 0, 1, 0)
	cb.BindSampler(c.sampler, 0, 2, 0)
	cb.DrawIndexed(uint32(len(quadIndices)), 1, 0, 0, 0)
	cb.EndRenderPass()
	orPanic(cb.End())
}

func (c *QuadDemo) drawFrame() {
	d := c.device
	orPanic(d.WaitForFences([]*vkez.Fence{c.fence}, true, -1))
	orPanic(c.fence.Reset())

	c.updateUBO()
	c.record()
	gq := d.GraphicsQueue()
	orPanic(gq.Submit([]vkez.SubmitInfo{{CommandBuffers: []*vkez.CommandBuffer{c.cb}}}, c.fence))

	err := gq.Present(&vkez.PresentInfo{
		Swapchains:   []*vkez.Swapchain{c.sc},
		SourceImages: []*vkez.Image{c.color},
	})
	if vkez.IsPresentationError(err) {
		slog.Info("swapchain recreated", "extent", c.sc.Extent())
		orPanic(gq.WaitIdle())
		c.resize()
		return
	}
	orPanic(err)
}

func (c *QuadDemo) destroy() {
	orPanic(c.device.WaitIdle())
	c.destroyTarget()
	c.fence.Destroy()
	c.cb.Free()
	c.sampler.Destroy()
	c.texView.Destroy()
	c.tex.Destroy()
	c.ubo.Destroy()
	c.indices.Destroy()
	c.vertices.Destroy()
	c.pipeline.Destroy()
	c.sc.Destroy()
	orPanic(c.device.Destroy())
	c.instance.DestroySurface(c.surface)
	c.instance.Destroy()
	c.window.Destroy()
	glfw.Terminate()
}

func (c *QuadDemo) run(cfg vkez.Config, logger *slog.Logger) {
	c.initWindow()
	c.initDevice(cfg, logger)
	c.initResources()
	c.resize()

	frames := 0
	last := time.Now()
	for !c.window.ShouldClose() {
		glfw.PollEvents()
		c.drawFrame()
		frames++
		if since := time.Since(last); since >= 5*time.Second {
			slog.Debug("frame rate", "fps", float64(frames)/since.Seconds(), "stats", c.device.Stats().String())
			frames, last = 0, time.Now()
		}
	}
	c.destroy()
}

func main() {
	flag.Parse()
	cfg := vkez.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = vkez.LoadConfig(*configPath)
		orPanic(err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)
	vkez.SetLogger(logger)

	c := &QuadDemo{}
	c.run(cfg, logger)
}
