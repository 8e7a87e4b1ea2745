package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

func TestClearedAttachment(t *testing.T) {
	color := clearedAttachment(core1_0.FormatB8G8R8A8SRGB, khr_swapchain.ImageLayoutPresentSrc)
	assert.Equal(t, core1_0.FormatB8G8R8A8SRGB, color.Format)
	assert.Equal(t, core1_0.Samples1, color.Samples)
	assert.Equal(t, core1_0.AttachmentLoadOpClear, color.LoadOp)
	assert.Equal(t, core1_0.AttachmentStoreOpStore, color.StoreOp)
	assert.Equal(t, core1_0.ImageLayoutUndefined, color.InitialLayout)
	assert.Equal(t, khr_swapchain.ImageLayoutPresentSrc, color.FinalLayout)

	depth := clearedAttachment(core1_0.FormatD32SignedFloat, core1_0.ImageLayoutDepthStencilAttachmentOptimal)
	assert.Equal(t, core1_0.AttachmentLoadOpClear, depth.LoadOp)
	assert.Equal(t, core1_0.AttachmentLoadOpDontCare, depth.StencilLoadOp)
	assert.Equal(t, core1_0.ImageLayoutDepthStencilAttachmentOptimal, depth.FinalLayout)
}

func TestFixedViewportMatchesExtent(t *testing.T) {
	extent := core1_0.Extent2D{Width: 1280, Height: 720}
	state := fixedViewport(extent)

	require.Len(t, state.Viewports, 1)
	assert.Equal(t, core1_0.Viewport{Width: 1280, Height: 720, MaxDepth: 1}, state.Viewports[0])

	require.Len(t, state.Scissors, 1)
	assert.Equal(t, core1_0.Rect2D{Extent: extent}, state.Scissors[0])
}
