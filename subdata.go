package vkez

import (
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
)

// Bytes views a slice of plain values as bytes without copying.
func Bytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}

// IndexData is index buffer content together with its index type.
type IndexData interface {
	Bytes() []byte
	IndexType() driver.IndexType
}

type Uint16Indices []uint16

func (i Uint16Indices) Bytes() []byte               { return Bytes(i) }
func (i Uint16Indices) IndexType() driver.IndexType { return driver.IndexTypeUint16 }

type Uint32Indices []uint32

func (i Uint32Indices) Bytes() []byte               { return Bytes(i) }
func (i Uint32Indices) IndexType() driver.IndexType { return driver.IndexTypeUint32 }

// BufferSubData writes data at offset. Mappable buffers are written
// through a mapping; GPU-only buffers are filled by a copy from a staging
// buffer on the graphics queue, and BufferSubData returns once the copy
// has completed.
func (d *Device) BufferSubData(b *Buffer, offset uint64, data []byte) error {
	if b == nil {
		return errors.Wrap(ErrInvalidHandle, "buffer sub data of nil buffer")
	}
	if offset > b.size || uint64(len(data)) > b.size-offset {
		return errors.Wrapf(ErrValidation, "writing [%d, +%d) of a %d byte buffer", offset, len(data), b.size)
	}
	if len(data) == 0 {
		return nil
	}
	if d.alloc.Mappable(b.mem) {
		return errors.Wrap(d.alloc.Write(b.mem, offset, data), "writing buffer")
	}
	return d.staged(data, func(cb *CommandBuffer, staging *Buffer) {
		cb.CopyBuffer(staging, b, []driver.BufferCopy{{DstOffset: offset, Size: uint64(len(data))}})
	})
}

// ImageSubDataInfo addresses the region of an image ImageSubData writes.
// The data is tightly packed unless DataRowLength or DataImageHeight say
// otherwise, both in texels.
type ImageSubDataInfo struct {
	Subresource     driver.ImageSubresourceLayers
	Offset          driver.Offset3D
	Extent          driver.Extent3D
	DataRowLength   uint32
	DataImageHeight uint32
}

// ImageSubData uploads data into a region of img through a staging buffer
// and returns once the upload has completed. A zero Extent covers the
// subresource's mip level.
func (d *Device) ImageSubData(img *Image, info *ImageSubDataInfo, data []byte) error {
	if img == nil {
		return errors.Wrap(ErrInvalidHandle, "image sub data of nil image")
	}
	extent := info.Extent
	if extent == (driver.Extent3D{}) {
		extent = img.MipExtent(info.Subresource.MipLevel)
	}
	if texel := uint64(img.format.Size()); texel > 0 {
		w, h := uint64(max(info.DataRowLength, extent.Width)), uint64(max(info.DataImageHeight, extent.Height))
		layers := uint64(max(info.Subresource.LayerCount, 1))
		if need := w * h * uint64(extent.Depth) * layers * texel; uint64(len(data)) < need {
			return errors.Wrapf(ErrValidation, "%d bytes for a %dx%dx%d region of %d layers", len(data), extent.Width, extent.Height, extent.Depth, layers)
		}
	}
	return d.staged(data, func(cb *CommandBuffer, staging *Buffer) {
		cb.CopyBufferToImage(staging, img, []driver.BufferImageCopy{{
			BufferRowLength:   info.DataRowLength,
			BufferImageHeight: info.DataImageHeight,
			Subresource:       info.Subresource,
			Offset:            info.Offset,
			Extent:            extent,
		}})
	})
}

// staged copies data into a staging buffer, records record on a one-time
// command buffer of the graphics queue and waits for it to complete.
func (d *Device) staged(data []byte, record func(cb *CommandBuffer, staging *Buffer)) error {
	staging, err := d.CreateBuffer(&BufferCreateInfo{Size: uint64(len(data)), Usage: driver.BufferUsageTransferSrc}, MemoryCPUOnly)
	if err != nil {
		return errors.Wrap(err, "creating staging buffer")
	}
	defer staging.Destroy()
	if err := d.alloc.Write(staging.mem, 0, data); err != nil {
		return errors.Wrap(err, "filling staging buffer")
	}
	q := d.graphics
	cb, err := d.AllocateCommandBuffer(q)
	if err != nil {
		return err
	}
	defer cb.Free()
	if err := cb.BeginOneTime(); err != nil {
		return err
	}
	record(cb, staging)
	if err := cb.End(); err != nil {
		return err
	}
	if err := q.Submit([]SubmitInfo{{CommandBuffers: []*CommandBuffer{cb}}}, nil); err != nil {
		return err
	}
	if err := d.waitSubmission(cb.last); err != nil {
		return errors.Wrap(err, "waiting for upload")
	}
	Logger().Debug("staged upload complete", "size", len(data))
	return nil
}
