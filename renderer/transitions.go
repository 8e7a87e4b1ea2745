package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

type layoutTransition struct {
	oldLayout core1_0.ImageLayout
	newLayout core1_0.ImageLayout
}

type barrierMasks struct {
	srcStage  core1_0.PipelineStageFlags
	dstStage  core1_0.PipelineStageFlags
	srcAccess core1_0.AccessFlags
	dstAccess core1_0.AccessFlags
}

// layoutTransitions is closed: a transition not listed here is an error rather
// than a guessed barrier.
var layoutTransitions = map[layoutTransition]barrierMasks{
	{core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal}: {
		srcStage:  core1_0.PipelineStageTopOfPipe,
		dstStage:  core1_0.PipelineStageTransfer,
		srcAccess: 0,
		dstAccess: core1_0.AccessTransferWrite,
	},
	{core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal}: {
		srcStage:  core1_0.PipelineStageTransfer,
		dstStage:  core1_0.PipelineStageFragmentShader,
		srcAccess: core1_0.AccessTransferWrite,
		dstAccess: core1_0.AccessShaderRead,
	},
	{core1_0.ImageLayoutUndefined, core1_0.ImageLayoutDepthStencilAttachmentOptimal}: {
		srcStage:  core1_0.PipelineStageTopOfPipe,
		dstStage:  core1_0.PipelineStageEarlyFragmentTests,
		srcAccess: 0,
		dstAccess: core1_0.AccessDepthStencilAttachmentRead | core1_0.AccessDepthStencilAttachmentWrite,
	},
}

func barrierFor(oldLayout, newLayout core1_0.ImageLayout) (barrierMasks, error) {
	masks, ok := layoutTransitions[layoutTransition{oldLayout: oldLayout, newLayout: newLayout}]
	if !ok {
		return barrierMasks{}, errors.Wrapf(ErrUnsupportedTransition, "%s -> %s", oldLayout, newLayout)
	}
	return masks, nil
}

func aspectFor(format core1_0.Format, layout core1_0.ImageLayout) core1_0.ImageAspectFlags {
	if layout != core1_0.ImageLayoutDepthStencilAttachmentOptimal {
		return core1_0.ImageAspectColor
	}

	aspect := core1_0.ImageAspectDepth
	if hasStencilComponent(format) {
		aspect |= core1_0.ImageAspectStencil
	}
	return aspect
}

func layoutBarrier(image core1_0.Image, format core1_0.Format, oldLayout, newLayout core1_0.ImageLayout) (barrierMasks, core1_0.ImageMemoryBarrier, error) {
	masks, err := barrierFor(oldLayout, newLayout)
	if err != nil {
		return masks, core1_0.ImageMemoryBarrier{}, err
	}

	return masks, core1_0.ImageMemoryBarrier{
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: -1,
		DstQueueFamilyIndex: -1,
		Image:               image,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspectFor(format, newLayout),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		SrcAccessMask: masks.srcAccess,
		DstAccessMask: masks.dstAccess,
	}, nil
}
