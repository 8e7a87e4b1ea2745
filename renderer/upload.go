package renderer

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/modelviewer/assets"
)

// gpuBuffer is a buffer and the memory bound to it. destroy is its only
// release path and always destroys the handle before freeing the memory.
type gpuBuffer struct {
	buffer core1_0.Buffer
	memory core1_0.DeviceMemory
	size   int
	usage  core1_0.BufferUsageFlags
}

func (b gpuBuffer) destroy(driver core1_0.DeviceDriver) {
	if b.buffer.Initialized() {
		driver.DestroyBuffer(b.buffer, nil)
	}
	if b.memory.Initialized() {
		driver.FreeMemory(b.memory, nil)
	}
}

// gpuImage is an image, its memory and its view, released view first.
type gpuImage struct {
	image  core1_0.Image
	memory core1_0.DeviceMemory
	view   core1_0.ImageView
	format core1_0.Format
	width  int
	height int
}

func (i gpuImage) destroy(driver core1_0.DeviceDriver) {
	if i.view.Initialized() {
		driver.DestroyImageView(i.view, nil)
	}
	if i.image.Initialized() {
		driver.DestroyImage(i.image, nil)
	}
	if i.memory.Initialized() {
		driver.FreeMemory(i.memory, nil)
	}
}

// uploader moves data into device-local memory through host-visible staging
// buffers and one-shot command buffers. Each upload waits for the graphics
// queue to go idle, so it is only used during setup.
type uploader struct {
	dev         *deviceContext
	commandPool core1_0.CommandPool
}

func writeData(driver core1_0.DeviceDriver, memory core1_0.DeviceMemory, offset int, data any) error {
	bufferSize := binary.Size(data)
	if bufferSize < 0 {
		return errors.AssertionFailedf("cannot write %T: not a fixed-size value", data)
	}

	memoryPtr, _, err := driver.MapMemory(memory, offset, bufferSize, 0)
	if err != nil {
		return errors.Wrap(err, "map memory")
	}
	defer driver.UnmapMemory(memory)

	dataBuffer := unsafe.Slice((*byte)(memoryPtr), bufferSize)

	buf := &bytes.Buffer{}
	err = binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return err
	}

	copy(dataBuffer, buf.Bytes())
	return nil
}

func (u *uploader) createBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (gpuBuffer, error) {
	driver := u.dev.deviceDriver
	result := gpuBuffer{size: size, usage: usage}

	var err error
	result.buffer, _, err = driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return gpuBuffer{}, errors.Wrap(err, "create buffer")
	}

	memRequirements := driver.GetBufferMemoryRequirements(result.buffer)
	memoryTypeIndex, err := u.dev.findMemoryType(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		result.destroy(driver)
		return gpuBuffer{}, err
	}

	result.memory, _, err = driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		result.destroy(driver)
		return gpuBuffer{}, errors.Wrap(err, "allocate buffer memory")
	}

	if _, err = driver.BindBufferMemory(result.buffer, result.memory, 0); err != nil {
		result.destroy(driver)
		return gpuBuffer{}, errors.Wrap(err, "bind buffer memory")
	}

	return result, nil
}

func (u *uploader) createImage(width, height int, format core1_0.Format, usage core1_0.ImageUsageFlags) (gpuImage, error) {
	driver := u.dev.deviceDriver
	result := gpuImage{format: format, width: width, height: height}

	var err error
	result.image, _, err = driver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return gpuImage{}, errors.Wrap(err, "create image")
	}

	memReqs := driver.GetImageMemoryRequirements(result.image)
	memoryIndex, err := u.dev.findMemoryType(memReqs.MemoryTypeBits, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		result.destroy(driver)
		return gpuImage{}, err
	}

	result.memory, _, err = driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryIndex,
	})
	if err != nil {
		result.destroy(driver)
		return gpuImage{}, errors.Wrap(err, "allocate image memory")
	}

	if _, err = driver.BindImageMemory(result.image, result.memory, 0); err != nil {
		result.destroy(driver)
		return gpuImage{}, errors.Wrap(err, "bind image memory")
	}

	return result, nil
}

func (u *uploader) beginSingleTimeCommands() (core1_0.CommandBuffer, error) {
	buffers, _, err := u.dev.deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        u.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return core1_0.CommandBuffer{}, errors.Wrap(err, "allocate transfer command buffer")
	}

	buffer := buffers[0]
	_, err = u.dev.deviceDriver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		u.dev.deviceDriver.FreeCommandBuffers(buffer)
		return core1_0.CommandBuffer{}, errors.Wrap(err, "begin transfer command buffer")
	}
	return buffer, nil
}

func (u *uploader) endSingleTimeCommands(buffer core1_0.CommandBuffer) error {
	driver := u.dev.deviceDriver
	defer driver.FreeCommandBuffers(buffer)

	if _, err := driver.EndCommandBuffer(buffer); err != nil {
		return errors.Wrap(err, "end transfer command buffer")
	}

	_, err := driver.QueueSubmit(u.dev.graphicsQueue, nil,
		core1_0.SubmitInfo{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	)
	if err != nil {
		return errors.Wrap(err, "submit transfer")
	}

	_, err = driver.QueueWaitIdle(u.dev.graphicsQueue)
	return errors.Wrap(err, "wait for transfer")
}

// runSingleTimeCommands records with record, submits and blocks until the
// graphics queue is idle.
func (u *uploader) runSingleTimeCommands(record func(core1_0.CommandBuffer) error) error {
	buffer, err := u.beginSingleTimeCommands()
	if err != nil {
		return err
	}

	if err := record(buffer); err != nil {
		u.dev.deviceDriver.FreeCommandBuffers(buffer)
		return err
	}

	return u.endSingleTimeCommands(buffer)
}

func (u *uploader) cmdTransition(buffer core1_0.CommandBuffer, image core1_0.Image, format core1_0.Format, oldLayout, newLayout core1_0.ImageLayout) error {
	masks, barrier, err := layoutBarrier(image, format, oldLayout, newLayout)
	if err != nil {
		return err
	}

	return u.dev.deviceDriver.CmdPipelineBarrier(buffer, masks.srcStage, masks.dstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{barrier})
}

func (u *uploader) transitionImageLayout(image core1_0.Image, format core1_0.Format, oldLayout, newLayout core1_0.ImageLayout) error {
	// Resolve the barrier before allocating anything so an unsupported pair
	// fails without a submission.
	if _, err := barrierFor(oldLayout, newLayout); err != nil {
		return err
	}

	return u.runSingleTimeCommands(func(buffer core1_0.CommandBuffer) error {
		return u.cmdTransition(buffer, image, format, oldLayout, newLayout)
	})
}

// stage copies data into a fresh host-visible, host-coherent buffer. The
// caller owns the returned buffer.
func (u *uploader) stage(data any) (gpuBuffer, error) {
	size := binary.Size(data)
	if size <= 0 {
		return gpuBuffer{}, errors.AssertionFailedf("cannot stage %T of size %d", data, size)
	}

	staging, err := u.createBuffer(size, core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return gpuBuffer{}, errors.Wrap(err, "create staging buffer")
	}

	if err := writeData(u.dev.deviceDriver, staging.memory, 0, data); err != nil {
		staging.destroy(u.dev.deviceDriver)
		return gpuBuffer{}, err
	}

	return staging, nil
}

// uploadBuffer creates a device-local buffer holding data.
func (u *uploader) uploadBuffer(data any, usage core1_0.BufferUsageFlags) (gpuBuffer, error) {
	staging, err := u.stage(data)
	if err != nil {
		return gpuBuffer{}, err
	}
	defer staging.destroy(u.dev.deviceDriver)

	destination, err := u.createBuffer(staging.size, core1_0.BufferUsageTransferDst|usage, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return gpuBuffer{}, err
	}

	err = u.runSingleTimeCommands(func(buffer core1_0.CommandBuffer) error {
		return u.dev.deviceDriver.CmdCopyBuffer(buffer, staging.buffer, destination.buffer,
			core1_0.BufferCopy{
				SrcOffset: 0,
				DstOffset: 0,
				Size:      staging.size,
			},
		)
	})
	if err != nil {
		destination.destroy(u.dev.deviceDriver)
		return gpuBuffer{}, err
	}

	return destination, nil
}

// uploadTexture creates a sampled RGBA8 image from texture and leaves it in
// the shader-read-only layout. texture.Pixels is not referenced afterwards.
func (u *uploader) uploadTexture(texture *assets.Texture, format core1_0.Format) (gpuImage, error) {
	if len(texture.Pixels) != texture.SizeBytes() {
		return gpuImage{}, errors.AssertionFailedf("texture has %d bytes, want %d", len(texture.Pixels), texture.SizeBytes())
	}

	staging, err := u.stage(texture.Pixels)
	if err != nil {
		return gpuImage{}, err
	}
	defer staging.destroy(u.dev.deviceDriver)

	textureImage, err := u.createImage(texture.Width, texture.Height, format,
		core1_0.ImageUsageTransferDst|core1_0.ImageUsageSampled)
	if err != nil {
		return gpuImage{}, err
	}

	err = u.runSingleTimeCommands(func(buffer core1_0.CommandBuffer) error {
		err := u.cmdTransition(buffer, textureImage.image, format, core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal)
		if err != nil {
			return err
		}

		err = u.dev.deviceDriver.CmdCopyBufferToImage(buffer, staging.buffer, textureImage.image, core1_0.ImageLayoutTransferDstOptimal,
			core1_0.BufferImageCopy{
				BufferOffset:      0,
				BufferRowLength:   0,
				BufferImageHeight: 0,

				ImageSubresource: core1_0.ImageSubresourceLayers{
					AspectMask:     core1_0.ImageAspectColor,
					MipLevel:       0,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
				ImageExtent: core1_0.Extent3D{Width: texture.Width, Height: texture.Height, Depth: 1},
			},
		)
		if err != nil {
			return err
		}

		return u.cmdTransition(buffer, textureImage.image, format, core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal)
	})
	if err != nil {
		textureImage.destroy(u.dev.deviceDriver)
		return gpuImage{}, err
	}

	textureImage.view, err = u.dev.createImageView(textureImage.image, format, core1_0.ImageAspectColor)
	if err != nil {
		textureImage.destroy(u.dev.deviceDriver)
		return gpuImage{}, errors.Wrap(err, "create texture image view")
	}

	return textureImage, nil
}

// createDepthTarget builds a depth image matching extent and moves it into the
// depth-attachment layout.
func (u *uploader) createDepthTarget(extent core1_0.Extent2D) (gpuImage, error) {
	format := u.dev.depthFormat
	depth, err := u.createImage(extent.Width, extent.Height, format, core1_0.ImageUsageDepthStencilAttachment)
	if err != nil {
		return gpuImage{}, errors.Wrap(err, "create depth image")
	}

	depth.view, err = u.dev.createImageView(depth.image, format, core1_0.ImageAspectDepth)
	if err != nil {
		depth.destroy(u.dev.deviceDriver)
		return gpuImage{}, errors.Wrap(err, "create depth image view")
	}

	err = u.transitionImageLayout(depth.image, format, core1_0.ImageLayoutUndefined, core1_0.ImageLayoutDepthStencilAttachmentOptimal)
	if err != nil {
		depth.destroy(u.dev.deviceDriver)
		return gpuImage{}, err
	}

	return depth, nil
}
