package vk

import (
	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkez/driver"
)

// GLFWExtensions returns the instance extensions a GLFW window surface
// needs.
func GLFWExtensions(w *glfw.Window) []string {
	return w.GetRequiredInstanceExtensions()
}

// NewGLFWSurface creates a presentation surface for a GLFW window. The
// window must have been created with the NoAPI client hint.
func (i *Instance) NewGLFWSurface(w *glfw.Window) (driver.Surface, error) {
	p, err := w.CreateWindowSurface(i.handle, nil)
	if err != nil {
		return 0, errors.Wrap(err, "creating window surface")
	}
	return i.surfaces.put(vk.SurfaceFromPointer(p)), nil
}

// DestroySurface destroys a surface. Swapchains created on it must be
// gone.
func (i *Instance) DestroySurface(s driver.Surface) {
	if h, ok := i.surfaces.take(s); ok {
		vk.DestroySurface(i.handle, h, nil)
	}
}
