package renderer

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// sceneBindings is the immutable, device-lifetime state every per-image
// command buffer draws from.
type sceneBindings struct {
	vertexBuffer gpuBuffer
	indexBuffer  gpuBuffer
	indexCount   int
	setLayout    core1_0.DescriptorSetLayout
	texture      gpuImage
	sampler      core1_0.Sampler
	clearColor   [4]float32
}

// imageResources is what exists once per presentable image: a host-visible
// uniform buffer, the descriptor set pointing at it and a pre-recorded
// command buffer. All of it is sized by the chain and rebuilt with it.
type imageResources struct {
	uniformBuffers []gpuBuffer
	descriptorPool core1_0.DescriptorPool
	descriptorSets []core1_0.DescriptorSet
	commandBuffers []core1_0.CommandBuffer
}

func (u *uploader) createImageResources(chain *surfaceChain, pass *passState, scene *sceneBindings, scope *releaseScope) (*imageResources, error) {
	res := &imageResources{}

	if err := u.createUniformBuffers(res, chain.imageCount(), scope); err != nil {
		return nil, err
	}
	if err := u.createDescriptorSets(res, chain.imageCount(), scene, scope); err != nil {
		return nil, err
	}
	if err := u.recordCommandBuffers(res, chain, pass, scene, scope); err != nil {
		return nil, err
	}

	return res, nil
}

func (u *uploader) createUniformBuffers(res *imageResources, count int, scope *releaseScope) error {
	bufferSize := int(unsafe.Sizeof(UniformBufferObject{}))

	for i := 0; i < count; i++ {
		buffer, err := u.createBuffer(bufferSize, core1_0.BufferUsageUniformBuffer, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
		if err != nil {
			return errors.Wrap(err, "create uniform buffer")
		}

		res.uniformBuffers = append(res.uniformBuffers, buffer)
		scope.own("uniform buffer", func() { buffer.destroy(u.dev.deviceDriver) })
	}

	return nil
}

func (u *uploader) createDescriptorSets(res *imageResources, count int, scene *sceneBindings, scope *releaseScope) error {
	driver := u.dev.deviceDriver

	var err error
	res.descriptorPool, _, err = driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: count,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: count,
			},
			{
				Type:            core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: count,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create descriptor pool")
	}
	// Sets are freed with their pool.
	scope.own("descriptor pool", func() { driver.DestroyDescriptorPool(res.descriptorPool, nil) })

	allocLayouts := make([]core1_0.DescriptorSetLayout, count)
	for i := range allocLayouts {
		allocLayouts[i] = scene.setLayout
	}

	res.descriptorSets, _, err = driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: res.descriptorPool,
		SetLayouts:     allocLayouts,
	})
	if err != nil {
		return errors.Wrap(err, "allocate descriptor sets")
	}

	for i, set := range res.descriptorSets {
		err = driver.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
			{
				DstSet:          set,
				DstBinding:      0,
				DstArrayElement: 0,

				DescriptorType: core1_0.DescriptorTypeUniformBuffer,

				BufferInfo: []core1_0.DescriptorBufferInfo{
					{
						Buffer: res.uniformBuffers[i].buffer,
						Offset: 0,
						Range:  res.uniformBuffers[i].size,
					},
				},
			},
			{
				DstSet:          set,
				DstBinding:      1,
				DstArrayElement: 0,

				DescriptorType: core1_0.DescriptorTypeCombinedImageSampler,

				ImageInfo: []core1_0.DescriptorImageInfo{
					{
						ImageView:   scene.texture.view,
						Sampler:     scene.sampler,
						ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
					},
				},
			},
		}, nil)
		if err != nil {
			return errors.Wrap(err, "update descriptor set")
		}
	}

	return nil
}

func (u *uploader) recordCommandBuffers(res *imageResources, chain *surfaceChain, pass *passState, scene *sceneBindings, scope *releaseScope) error {
	driver := u.dev.deviceDriver

	buffers, _, err := driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        u.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: chain.imageCount(),
	})
	if err != nil {
		return errors.Wrap(err, "allocate command buffers")
	}
	res.commandBuffers = buffers
	scope.own("command buffers", func() { driver.FreeCommandBuffers(buffers...) })

	clear := scene.clearColor
	for bufferIdx, buffer := range buffers {
		_, err = driver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{})
		if err != nil {
			return errors.Wrap(err, "begin command buffer")
		}

		err = driver.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
			core1_0.RenderPassBeginInfo{
				RenderPass:  pass.renderPass,
				Framebuffer: pass.framebuffers[bufferIdx],
				RenderArea: core1_0.Rect2D{
					Offset: core1_0.Offset2D{X: 0, Y: 0},
					Extent: chain.extent,
				},
				ClearValues: []core1_0.ClearValue{
					core1_0.ClearValueFloat{clear[0], clear[1], clear[2], clear[3]},
					core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
				},
			})
		if err != nil {
			return errors.Wrap(err, "begin render pass")
		}

		driver.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, pass.pipeline)
		driver.CmdBindVertexBuffers(buffer, 0, []core1_0.Buffer{scene.vertexBuffer.buffer}, []int{0})
		driver.CmdBindIndexBuffer(buffer, scene.indexBuffer.buffer, 0, core1_0.IndexTypeUInt32)
		driver.CmdBindDescriptorSets(buffer, core1_0.PipelineBindPointGraphics, pass.pipelineLayout, 0, []core1_0.DescriptorSet{
			res.descriptorSets[bufferIdx],
		}, nil)
		driver.CmdDrawIndexed(buffer, scene.indexCount, 1, 0, 0, 0)
		driver.CmdEndRenderPass(buffer)

		_, err = driver.EndCommandBuffer(buffer)
		if err != nil {
			return errors.Wrap(err, "end command buffer")
		}
	}

	return nil
}
