/*
Package vkez implements a middleware layer atop Vulkan that hides the tedious parts of the
API while keeping its explicit execution model. Applications still create buffers and images,
record command buffers and submit them to queues, but never see render passes, pipeline layouts,
descriptor sets, image layouts or pipeline barriers - the package derives all of these from what
the application records.

# Overview

Vulkan requires an application to describe up front everything the GPU will do: which
descriptor set layouts a pipeline uses, which render pass a pipeline renders into, which
layout an image is in and which barriers order one command after another. This package keeps
that information itself:

	Reflection	shader modules are reflected to find their descriptor bindings, push constants
			and stage inputs; pipeline layouts are derived from the merged reflection.
	Caches		descriptor set layouts, pipeline layouts, render passes, framebuffers, concrete
			pipelines and descriptor sets are interned and shared.
	Tracking	every buffer and image subresource remembers its last access, so barriers and
			layout transitions are emitted automatically.
	Retirement	objects destroyed while the GPU may still use them are released once the
			fence of their last submission signals.

Driver objects are created through the driver.Device interface. The driver/vk package implements
it on top of github.com/vulkan-go/vulkan; driver/drivertest implements it in memory for tests.

A typical frame looks like:

 1. Create the device, buffers, images, shader modules and pipelines once.
 2. Allocate a command buffer and Begin recording.
 3. BeginRenderPass with a Framebuffer and per-attachment load/store ops.
 4. BindPipeline, bind buffers and image views by (set, binding), set dynamic state, Draw.
 5. EndRenderPass, End, and Submit to a Queue.
 6. Present the rendered image; the swapchain blits it into the acquired image.

Recording is deferred: record calls validate and store what was asked, and End encodes the
driver command stream. Errors from record calls are reported by End.
*/
package vkez
