package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// shaderSet is the precompiled SPIR-V the pipeline is built from. It is kept
// for the renderer's lifetime because every chain rebuild recompiles the
// pipeline against the new extent.
type shaderSet struct {
	vertex   []uint32
	fragment []uint32
}

// passState is everything compiled against a particular chain format and
// extent: render pass, pipeline layout, pipeline and one framebuffer per
// presentable image.
type passState struct {
	renderPass     core1_0.RenderPass
	pipelineLayout core1_0.PipelineLayout
	pipeline       core1_0.Pipeline
	framebuffers   []core1_0.Framebuffer
}

func (d *deviceContext) createDescriptorSetLayout() (core1_0.DescriptorSetLayout, error) {
	layout, _, err := d.deviceDriver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,

				StageFlags: core1_0.StageVertex,
			},
			{
				Binding:         1,
				DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: 1,

				StageFlags: core1_0.StageFragment,
			},
		},
	})
	if err != nil {
		return core1_0.DescriptorSetLayout{}, errors.Wrap(err, "create descriptor set layout")
	}
	return layout, nil
}

// clearedAttachment is a single-sample attachment cleared on load and stored
// at the end of the pass. Stencil contents are never used.
func clearedAttachment(format core1_0.Format, finalLayout core1_0.ImageLayout) core1_0.AttachmentDescription {
	return core1_0.AttachmentDescription{
		Format:         format,
		Samples:        core1_0.Samples1,
		LoadOp:         core1_0.AttachmentLoadOpClear,
		StoreOp:        core1_0.AttachmentStoreOpStore,
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  core1_0.ImageLayoutUndefined,
		FinalLayout:    finalLayout,
	}
}

// fixedViewport covers extent exactly. Viewport and scissor are baked into
// the pipeline, which is rebuilt with the chain.
func fixedViewport(extent core1_0.Extent2D) *core1_0.PipelineViewportStateCreateInfo {
	return &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				Width:    float32(extent.Width),
				Height:   float32(extent.Height),
				MaxDepth: 1,
			},
		},
		Scissors: []core1_0.Rect2D{
			{Extent: extent},
		},
	}
}

func (d *deviceContext) createRenderPass(colorFormat core1_0.Format) (core1_0.RenderPass, error) {
	renderPass, _, err := d.deviceDriver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			clearedAttachment(colorFormat, khr_swapchain.ImageLayoutPresentSrc),
			clearedAttachment(d.depthFormat, core1_0.ImageLayoutDepthStencilAttachmentOptimal),
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: 1,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				// The depth clear happens in early fragment tests, so that
				// stage is guarded along with color output.
				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask: core1_0.AccessColorAttachmentRead | core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
			},
		},
	})
	if err != nil {
		return core1_0.RenderPass{}, errors.Wrap(err, "create render pass")
	}

	return renderPass, nil
}

func (d *deviceContext) createShaderModule(code []uint32) (core1_0.ShaderModule, error) {
	module, _, err := d.deviceDriver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	return module, err
}

func (d *deviceContext) createGraphicsPipeline(shaders shaderSet, extent core1_0.Extent2D, renderPass core1_0.RenderPass, layout core1_0.PipelineLayout, cache *pipelineCache) (core1_0.Pipeline, error) {
	vertShader, err := d.createShaderModule(shaders.vertex)
	if err != nil {
		return core1_0.Pipeline{}, errors.Wrap(err, "create vertex shader module")
	}
	defer d.deviceDriver.DestroyShaderModule(vertShader, nil)

	fragShader, err := d.createShaderModule(shaders.fragment)
	if err != nil {
		return core1_0.Pipeline{}, errors.Wrap(err, "create fragment shader module")
	}
	defer d.deviceDriver.DestroyShaderModule(fragShader, nil)

	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions:   getVertexBindingDescription(),
		VertexAttributeDescriptions: getVertexAttributeDescriptions(),
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: false,
	}

	vertStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageVertex,
		Module: vertShader,
		Name:   "main",
	}

	fragStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageFragment,
		Module: fragShader,
		Name:   "main",
	}

	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: core1_0.PolygonModeFill,
		CullMode:    core1_0.CullModeBack,
		FrontFace:   core1_0.FrontFaceCounterClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: core1_0.Samples1,
		MinSampleShading:     1.0,
	}

	depthStencil := &core1_0.PipelineDepthStencilStateCreateInfo{
		DepthTestEnable:  true,
		DepthWriteEnable: true,
		DepthCompareOp:   core1_0.CompareOpLess,
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			{
				BlendEnabled:   false,
				ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
			},
		},
	}

	pipelines, _, err := d.deviceDriver.CreateGraphicsPipelines(cache.handle(), nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				vertStage,
				fragStage,
			},
			VertexInputState:   vertexInput,
			InputAssemblyState: inputAssembly,
			ViewportState:      fixedViewport(extent),
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			DepthStencilState:  depthStencil,
			ColorBlendState:    colorBlend,
			Layout:             layout,
			RenderPass:         renderPass,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	)
	if err != nil {
		return core1_0.Pipeline{}, errors.Wrap(err, "create graphics pipeline")
	}

	return pipelines[0], nil
}

// buildPass compiles the pass and pipeline for chain and registers every
// handle with scope.
func (d *deviceContext) buildPass(chain *surfaceChain, depth gpuImage, setLayout core1_0.DescriptorSetLayout, shaders shaderSet, cache *pipelineCache, scope *releaseScope) (*passState, error) {
	pass := &passState{}
	var err error

	pass.renderPass, err = d.createRenderPass(chain.format())
	if err != nil {
		return nil, err
	}
	scope.own("render pass", func() { d.deviceDriver.DestroyRenderPass(pass.renderPass, nil) })

	pass.pipelineLayout, _, err = d.deviceDriver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{
			setLayout,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline layout")
	}
	scope.own("pipeline layout", func() { d.deviceDriver.DestroyPipelineLayout(pass.pipelineLayout, nil) })

	pass.pipeline, err = d.createGraphicsPipeline(shaders, chain.extent, pass.renderPass, pass.pipelineLayout, cache)
	if err != nil {
		return nil, err
	}
	scope.own("graphics pipeline", func() { d.deviceDriver.DestroyPipeline(pass.pipeline, nil) })

	for _, imageView := range chain.views {
		framebuffer, _, err := d.deviceDriver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass: pass.renderPass,
			Layers:     1,
			Attachments: []core1_0.ImageView{
				imageView,
				depth.view,
			},
			Width:  chain.extent.Width,
			Height: chain.extent.Height,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create framebuffer")
		}

		pass.framebuffers = append(pass.framebuffers, framebuffer)
		scope.own("framebuffer", func() { d.deviceDriver.DestroyFramebuffer(framebuffer, nil) })
	}

	return pass, nil
}
