package vkez

import (
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
)

// command records a transfer or clear outside of a render pass.
func (cb *CommandBuffer) command(what string, accs []access, emit func(drv driver.Device, h driver.CommandBuffer)) {
	if !cb.recording() {
		return
	}
	if cb.pass != nil {
		cb.fail(errors.Wrapf(ErrValidation, "%s inside a render pass", what))
		return
	}
	s := &accessSet{}
	for _, a := range accs {
		if err := s.add(a); err != nil {
			cb.fail(errors.Wrap(err, what))
			return
		}
		if a.buffer != nil {
			cb.ref(&a.buffer.uses)
		} else {
			cb.ref(&a.image.uses)
		}
	}
	cb.ops = append(cb.ops, &opCommand{accesses: s, emit: emit})
}

func bufferAccess(b *Buffer, acc driver.Access) access {
	return access{buffer: b, stage: driver.StageTransfer, access: acc}
}

func imageAccess(img *Image, r subresources, acc driver.Access, layout driver.ImageLayout) access {
	return access{image: img, rng: r, stage: driver.StageTransfer, access: acc, layout: layout}
}

func checkBuffer(b *Buffer, usage driver.BufferUsage, offset, size uint64) error {
	if b == nil {
		return errors.Wrap(ErrInvalidHandle, "nil buffer")
	}
	if b.usage&usage != usage {
		return errors.Wrapf(ErrValidation, "buffer %d lacks usage %#x", b.id, usage)
	}
	if offset > b.size || size > b.size-offset {
		return errors.Wrapf(ErrValidation, "range [%d, +%d) outside buffer %d of %d bytes", offset, size, b.id, b.size)
	}
	return nil
}

// checkLayers validates l against img and fills in a missing aspect.
func checkLayers(img *Image, usage driver.ImageUsage, l *driver.ImageSubresourceLayers) error {
	if img == nil {
		return errors.Wrap(ErrInvalidHandle, "nil image")
	}
	if img.usage&usage != usage {
		return errors.Wrapf(ErrValidation, "image %d lacks usage %#x", img.id, usage)
	}
	if l.Aspect == 0 {
		l.Aspect = img.format.Aspect()
	}
	if l.LayerCount == 0 {
		l.LayerCount = 1
	}
	if l.MipLevel >= img.mipLevels || l.BaseArrayLayer+l.LayerCount > img.arrayLayers {
		return errors.Wrapf(ErrValidation, "mip %d layers [%d, +%d) outside image %d", l.MipLevel, l.BaseArrayLayer, l.LayerCount, img.id)
	}
	return nil
}

// checkRange validates r against img and resolves remaining counts.
func checkRange(img *Image, r *driver.ImageSubresourceRange) error {
	if r.Aspect == 0 {
		r.Aspect = img.format.Aspect()
	}
	if r.LevelCount == driver.RemainingMipLevels || r.LevelCount == 0 {
		r.LevelCount = img.mipLevels - min(r.BaseMipLevel, img.mipLevels)
	}
	if r.LayerCount == driver.RemainingMipLevels || r.LayerCount == 0 {
		r.LayerCount = img.arrayLayers - min(r.BaseArrayLayer, img.arrayLayers)
	}
	if r.LevelCount == 0 || r.LayerCount == 0 || r.BaseMipLevel+r.LevelCount > img.mipLevels || r.BaseArrayLayer+r.LayerCount > img.arrayLayers {
		return errors.Wrapf(ErrValidation, "range mips [%d, +%d) layers [%d, +%d) outside image %d",
			r.BaseMipLevel, r.LevelCount, r.BaseArrayLayer, r.LayerCount, img.id)
	}
	return nil
}

func rangeOf(r driver.ImageSubresourceRange) subresources {
	return subresources{baseMip: r.BaseMipLevel, levels: r.LevelCount, baseLayer: r.BaseArrayLayer, layers: r.LayerCount}
}

func (cb *CommandBuffer) CopyBuffer(src, dst *Buffer, regions []driver.BufferCopy) {
	if src == nil || dst == nil {
		cb.failRecording(errors.Wrap(ErrInvalidHandle, "copy buffer with a nil buffer"))
		return
	}
	for _, r := range regions {
		if err := checkBuffer(src, driver.BufferUsageTransferSrc, r.SrcOffset, r.Size); err != nil {
			cb.failRecording(errors.Wrap(err, "copy source"))
			return
		}
		if err := checkBuffer(dst, driver.BufferUsageTransferDst, r.DstOffset, r.Size); err != nil {
			cb.failRecording(errors.Wrap(err, "copy destination"))
			return
		}
	}
	regions = slices.Clone(regions)
	accs := []access{bufferAccess(src, driver.AccessTransferRead), bufferAccess(dst, driver.AccessTransferWrite)}
	if src == dst {
		accs = []access{bufferAccess(src, driver.AccessTransferRead|driver.AccessTransferWrite)}
	}
	cb.command("copy buffer", accs, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdCopyBuffer(h, src.handle, dst.handle, regions)
	})
}

// failRecording records err if the command buffer is recording.
func (cb *CommandBuffer) failRecording(err error) {
	if cb.recording() {
		cb.fail(err)
	}
}

func (cb *CommandBuffer) CopyBufferToImage(src *Buffer, dst *Image, regions []driver.BufferImageCopy) {
	if src == nil || dst == nil {
		cb.failRecording(errors.Wrap(ErrInvalidHandle, "copy buffer to image with a nil resource"))
		return
	}
	regions = slices.Clone(regions)
	accs := []access{bufferAccess(src, driver.AccessTransferRead)}
	for i := range regions {
		r := &regions[i]
		if err := checkBuffer(src, driver.BufferUsageTransferSrc, r.BufferOffset, 0); err != nil {
			cb.failRecording(errors.Wrap(err, "copy source"))
			return
		}
		if err := checkLayers(dst, driver.ImageUsageTransferDst, &r.Subresource); err != nil {
			cb.failRecording(errors.Wrap(err, "copy destination"))
			return
		}
		accs = append(accs, imageAccess(dst, layersOf(r.Subresource), driver.AccessTransferWrite, driver.LayoutTransferDstOptimal))
	}
	cb.command("copy buffer to image", accs, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdCopyBufferToImage(h, src.handle, dst.handle, driver.LayoutTransferDstOptimal, regions)
	})
}

func (cb *CommandBuffer) CopyImageToBuffer(src *Image, dst *Buffer, regions []driver.BufferImageCopy) {
	if src == nil || dst == nil {
		cb.failRecording(errors.Wrap(ErrInvalidHandle, "copy image to buffer with a nil resource"))
		return
	}
	regions = slices.Clone(regions)
	accs := []access{bufferAccess(dst, driver.AccessTransferWrite)}
	for i := range regions {
		r := &regions[i]
		if err := checkLayers(src, driver.ImageUsageTransferSrc, &r.Subresource); err != nil {
			cb.failRecording(errors.Wrap(err, "copy source"))
			return
		}
		if err := checkBuffer(dst, driver.BufferUsageTransferDst, r.BufferOffset, 0); err != nil {
			cb.failRecording(errors.Wrap(err, "copy destination"))
			return
		}
		accs = append(accs, imageAccess(src, layersOf(r.Subresource), driver.AccessTransferRead, driver.LayoutTransferSrcOptimal))
	}
	cb.command("copy image to buffer", accs, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdCopyImageToBuffer(h, src.handle, driver.LayoutTransferSrcOptimal, dst.handle, regions)
	})
}

// imageToImage collects the accesses of a copy-like command between two
// images.
func (cb *CommandBuffer) imageToImage(src, dst *Image, srcs, dsts []*driver.ImageSubresourceLayers) ([]access, bool) {
	if src == nil || dst == nil {
		cb.failRecording(errors.Wrap(ErrInvalidHandle, "nil image"))
		return nil, false
	}
	var accs []access
	for i := range srcs {
		if err := checkLayers(src, driver.ImageUsageTransferSrc, srcs[i]); err != nil {
			cb.failRecording(errors.Wrap(err, "source"))
			return nil, false
		}
		if err := checkLayers(dst, driver.ImageUsageTransferDst, dsts[i]); err != nil {
			cb.failRecording(errors.Wrap(err, "destination"))
			return nil, false
		}
		accs = append(accs,
			imageAccess(src, layersOf(*srcs[i]), driver.AccessTransferRead, driver.LayoutTransferSrcOptimal),
			imageAccess(dst, layersOf(*dsts[i]), driver.AccessTransferWrite, driver.LayoutTransferDstOptimal))
	}
	return accs, true
}

func (cb *CommandBuffer) CopyImage(src, dst *Image, regions []driver.ImageCopy) {
	regions = slices.Clone(regions)
	var srcs, dsts []*driver.ImageSubresourceLayers
	for i := range regions {
		srcs = append(srcs, &regions[i].SrcSubresource)
		dsts = append(dsts, &regions[i].DstSubresource)
	}
	accs, ok := cb.imageToImage(src, dst, srcs, dsts)
	if !ok {
		return
	}
	cb.command("copy image", accs, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdCopyImage(h, src.handle, driver.LayoutTransferSrcOptimal, dst.handle, driver.LayoutTransferDstOptimal, regions)
	})
}

// BlitImage copies regions between images with scaling and format
// conversion. Blitting between mip levels of one image is allowed.
func (cb *CommandBuffer) BlitImage(src, dst *Image, regions []driver.ImageBlit, filter driver.Filter) {
	regions = slices.Clone(regions)
	var srcs, dsts []*driver.ImageSubresourceLayers
	for i := range regions {
		srcs = append(srcs, &regions[i].SrcSubresource)
		dsts = append(dsts, &regions[i].DstSubresource)
	}
	accs, ok := cb.imageToImage(src, dst, srcs, dsts)
	if !ok {
		return
	}
	cb.command("blit image", accs, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdBlitImage(h, src.handle, driver.LayoutTransferSrcOptimal, dst.handle, driver.LayoutTransferDstOptimal, regions, filter)
	})
}

func (cb *CommandBuffer) ResolveImage(src, dst *Image, regions []driver.ImageResolve) {
	if src != nil && src.samples == driver.Samples1 {
		cb.failRecording(errors.Wrap(ErrValidation, "resolving a single-sampled image"))
		return
	}
	regions = slices.Clone(regions)
	var srcs, dsts []*driver.ImageSubresourceLayers
	for i := range regions {
		srcs = append(srcs, &regions[i].SrcSubresource)
		dsts = append(dsts, &regions[i].DstSubresource)
	}
	accs, ok := cb.imageToImage(src, dst, srcs, dsts)
	if !ok {
		return
	}
	cb.command("resolve image", accs, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdResolveImage(h, src.handle, driver.LayoutTransferSrcOptimal, dst.handle, driver.LayoutTransferDstOptimal, regions)
	})
}

// FillBuffer fills [offset, offset+size) with data. size may be
// driver.WholeSize.
func (cb *CommandBuffer) FillBuffer(b *Buffer, offset, size uint64, data uint32) {
	n := size
	if size == driver.WholeSize && b != nil {
		n = b.size - min(offset, b.size)
	}
	if err := checkBuffer(b, driver.BufferUsageTransferDst, offset, n); err != nil {
		cb.failRecording(errors.Wrap(err, "fill buffer"))
		return
	}
	if offset%4 != 0 || (size != driver.WholeSize && size%4 != 0) {
		cb.failRecording(errors.Wrapf(ErrValidation, "fill buffer [%d, +%d) not 4-byte aligned", offset, size))
		return
	}
	cb.command("fill buffer", []access{bufferAccess(b, driver.AccessTransferWrite)}, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdFillBuffer(h, b.handle, offset, size, data)
	})
}

// maxUpdateSize is the largest inline buffer update.
const maxUpdateSize = 65536

func (cb *CommandBuffer) UpdateBuffer(b *Buffer, offset uint64, data []byte) {
	if err := checkBuffer(b, driver.BufferUsageTransferDst, offset, uint64(len(data))); err != nil {
		cb.failRecording(errors.Wrap(err, "update buffer"))
		return
	}
	if len(data) == 0 || len(data) > maxUpdateSize || len(data)%4 != 0 || offset%4 != 0 {
		cb.failRecording(errors.Wrapf(ErrValidation, "update buffer of %d bytes at %d", len(data), offset))
		return
	}
	data = slices.Clone(data)
	cb.command("update buffer", []access{bufferAccess(b, driver.AccessTransferWrite)}, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdUpdateBuffer(h, b.handle, offset, data)
	})
}

func (cb *CommandBuffer) clearImage(what string, img *Image, ranges []driver.ImageSubresourceRange) ([]driver.ImageSubresourceRange, []access, bool) {
	if img == nil {
		cb.failRecording(errors.Wrapf(ErrInvalidHandle, "%s of nil image", what))
		return nil, nil, false
	}
	if img.usage&driver.ImageUsageTransferDst == 0 {
		cb.failRecording(errors.Wrapf(ErrValidation, "%s: image %d lacks transfer destination usage", what, img.id))
		return nil, nil, false
	}
	ranges = slices.Clone(ranges)
	if len(ranges) == 0 {
		ranges = []driver.ImageSubresourceRange{{}}
	}
	var accs []access
	for i := range ranges {
		if err := checkRange(img, &ranges[i]); err != nil {
			cb.failRecording(errors.Wrap(err, what))
			return nil, nil, false
		}
		accs = append(accs, imageAccess(img, rangeOf(ranges[i]), driver.AccessTransferWrite, driver.LayoutTransferDstOptimal))
	}
	return ranges, accs, true
}

// ClearColorImage clears ranges of img outside of a render pass. No ranges
// clears the whole image.
func (cb *CommandBuffer) ClearColorImage(img *Image, color [4]float32, ranges []driver.ImageSubresourceRange) {
	if img != nil && img.format.IsDepthStencil() {
		cb.failRecording(errors.Wrap(ErrValidation, "color clear of a depth/stencil image"))
		return
	}
	ranges, accs, ok := cb.clearImage("clear color image", img, ranges)
	if !ok {
		return
	}
	cb.command("clear color image", accs, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdClearColorImage(h, img.handle, driver.LayoutTransferDstOptimal, color, ranges)
	})
}

func (cb *CommandBuffer) ClearDepthStencilImage(img *Image, depth float32, stencil uint32, ranges []driver.ImageSubresourceRange) {
	if img != nil && !img.format.IsDepthStencil() {
		cb.failRecording(errors.Wrap(ErrValidation, "depth/stencil clear of a color image"))
		return
	}
	ranges, accs, ok := cb.clearImage("clear depth/stencil image", img, ranges)
	if !ok {
		return
	}
	cb.command("clear depth/stencil image", accs, func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdClearDepthStencilImage(h, img.handle, driver.LayoutTransferDstOptimal, depth, stencil, ranges)
	})
}

// ClearAttachments clears regions of attachments of the current subpass.
func (cb *CommandBuffer) ClearAttachments(attachments []driver.ClearAttachment, rects []driver.ClearRect) {
	if !cb.recording() {
		return
	}
	if cb.pass == nil {
		cb.fail(errors.Wrap(ErrValidation, "clear attachments outside a render pass"))
		return
	}
	attachments, rects = slices.Clone(attachments), slices.Clone(rects)
	for i := range rects {
		if rects[i].LayerCount == 0 {
			rects[i].LayerCount = 1
		}
	}
	cb.ops = append(cb.ops, &opCommand{emit: func(drv driver.Device, h driver.CommandBuffer) {
		drv.CmdClearAttachments(h, attachments, rects)
	}})
}
