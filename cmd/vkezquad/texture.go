package main

import (
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez"
	"github.com/celer/vkez/driver"
)

// loadImage decodes a PNG or JPEG file into RGBA. An empty path yields a
// checkerboard.
func loadImage(file string) (*image.RGBA, error) {
	if file == "" {
		return checkerboard(256, 32), nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, errors.Wrap(err, "opening texture")
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", file)
	}
	b := src.Bounds()
	m := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(m, m.Bounds(), src, b.Min, draw.Src)
	return m, nil
}

func checkerboard(size, cell int) *image.RGBA {
	m := image.NewRGBA(image.Rect(0, 0, size, size))
	light := color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
	dark := color.RGBA{R: 0x30, G: 0x60, B: 0x90, A: 0xff}
	for y := range size {
		for x := range size {
			c := dark
			if (x/cell+y/cell)%2 == 0 {
				c = light
			}
			m.SetRGBA(x, y, c)
		}
	}
	return m
}

// uploadTexture creates a sampled image holding img.
func uploadTexture(d *vkez.Device, img *image.RGBA) (*vkez.Image, error) {
	b := img.Bounds()
	tex, err := d.CreateImage(&vkez.ImageCreateInfo{
		Type:   driver.ImageType2D,
		Format: driver.FormatR8G8B8A8Unorm,
		Extent: driver.Extent3D{Width: uint32(b.Dx()), Height: uint32(b.Dy()), Depth: 1},
		Usage:  driver.ImageUsageTransferDst | driver.ImageUsageSampled,
	}, vkez.MemoryGPUOnly)
	if err != nil {
		return nil, err
	}
	err = d.ImageSubData(tex, &vkez.ImageSubDataInfo{
		Subresource:   driver.ImageSubresourceLayers{Aspect: driver.AspectColor, LayerCount: 1},
		DataRowLength: uint32(img.Stride / 4),
	}, img.Pix)
	if err != nil {
		tex.Destroy()
		return nil, err
	}
	return tex, nil
}
