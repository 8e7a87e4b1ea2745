package renderer

import (
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

func family(i int) *int {
	return &i
}

func sameFamily() queueFamilyIndices {
	return queueFamilyIndices{GraphicsFamily: family(0), PresentFamily: family(0)}
}

func capabilities(current core1_0.Extent2D, minImages, maxImages int) *khr_surface.SurfaceCapabilities {
	return &khr_surface.SurfaceCapabilities{
		MinImageCount:  minImages,
		MaxImageCount:  maxImages,
		CurrentExtent:  current,
		MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
	}
}

func support(caps *khr_surface.SurfaceCapabilities) swapchainSupportDetails {
	return swapchainSupportDetails{
		Capabilities: caps,
		Formats: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
			preferredSurfaceFormat,
		},
		PresentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO},
	}
}

func TestPlanChainSmallWindow(t *testing.T) {
	extent := core1_0.Extent2D{Width: 64, Height: 64}
	plan, err := planChain(support(capabilities(extent, 2, 3)), sameFamily(), extent)
	require.NoError(t, err)

	assert.Equal(t, extent, plan.extent)
	assert.Equal(t, 3, plan.imageCount)
	assert.Equal(t, preferredSurfaceFormat, plan.surfaceFormat)
	assert.Equal(t, khr_surface.PresentModeFIFO, plan.presentMode)
	assert.Equal(t, core1_0.SharingModeExclusive, plan.sharingMode)
	assert.Empty(t, plan.queueFamilyIndices)
}

func TestPlanChainIsRepeatable(t *testing.T) {
	details := support(capabilities(core1_0.Extent2D{Width: -1, Height: -1}, 2, 0))
	drawable := core1_0.Extent2D{Width: 1024, Height: 768}

	first, err := planChain(details, sameFamily(), drawable)
	require.NoError(t, err)
	second, err := planChain(details, sameFamily(), drawable)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPlanChainZeroExtent(t *testing.T) {
	_, err := planChain(support(capabilities(core1_0.Extent2D{}, 2, 3)), sameFamily(), core1_0.Extent2D{Width: 10, Height: 10})
	require.True(t, errors.Is(err, ErrZeroExtent), "got %v", err)
}

func TestChooseExtent(t *testing.T) {
	t.Run("definite extent wins", func(t *testing.T) {
		caps := capabilities(core1_0.Extent2D{Width: 640, Height: 480}, 2, 3)
		assert.Equal(t, core1_0.Extent2D{Width: 640, Height: 480}, chooseExtent(caps, core1_0.Extent2D{Width: 800, Height: 600}))
	})

	t.Run("indefinite extent clamps drawable", func(t *testing.T) {
		caps := capabilities(core1_0.Extent2D{Width: -1, Height: -1}, 2, 3)
		assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, chooseExtent(caps, core1_0.Extent2D{Width: 800, Height: 600}))
		assert.Equal(t, core1_0.Extent2D{Width: 4096, Height: 1}, chooseExtent(caps, core1_0.Extent2D{Width: 9000, Height: 0}))
	})

	t.Run("within bounds", func(t *testing.T) {
		caps := capabilities(core1_0.Extent2D{Width: 0xFFFFFFFF, Height: 0xFFFFFFFF}, 2, 3)
		for _, drawable := range []core1_0.Extent2D{{Width: 1, Height: 1}, {Width: 37, Height: 5000}, {Width: 100000, Height: 2}} {
			extent := chooseExtent(caps, drawable)
			assert.GreaterOrEqual(t, extent.Width, caps.MinImageExtent.Width)
			assert.LessOrEqual(t, extent.Width, caps.MaxImageExtent.Width)
			assert.GreaterOrEqual(t, extent.Height, caps.MinImageExtent.Height)
			assert.LessOrEqual(t, extent.Height, caps.MaxImageExtent.Height)
		}
	})
}

func TestChooseImageCount(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
		expected int
	}{
		{name: "one above minimum", min: 2, max: 8, expected: 3},
		{name: "unbounded", min: 2, max: 0, expected: 3},
		{name: "capped by maximum", min: 3, max: 3, expected: 3},
		{name: "single image surface", min: 1, max: 1, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count := chooseImageCount(capabilities(core1_0.Extent2D{Width: 1, Height: 1}, tt.min, tt.max))
			assert.Equal(t, tt.expected, count)
			assert.GreaterOrEqual(t, count, tt.min)
		})
	}
}

func TestChooseSurfaceFormat(t *testing.T) {
	unorm := khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}
	rgba := khr_surface.SurfaceFormat{Format: core1_0.FormatR8G8B8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}

	assert.Equal(t, preferredSurfaceFormat, chooseSurfaceFormat(nil))
	assert.Equal(t, preferredSurfaceFormat, chooseSurfaceFormat([]khr_surface.SurfaceFormat{
		{Format: core1_0.FormatUndefined, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
	}))
	assert.Equal(t, preferredSurfaceFormat, chooseSurfaceFormat([]khr_surface.SurfaceFormat{unorm, preferredSurfaceFormat}))
	assert.Equal(t, rgba, chooseSurfaceFormat([]khr_surface.SurfaceFormat{rgba, unorm}))
}

func TestChoosePresentMode(t *testing.T) {
	assert.Equal(t, khr_surface.PresentModeMailbox, choosePresentMode([]khr_surface.PresentMode{
		khr_surface.PresentModeFIFO, khr_surface.PresentModeImmediate, khr_surface.PresentModeMailbox,
	}))
	assert.Equal(t, khr_surface.PresentModeImmediate, choosePresentMode([]khr_surface.PresentMode{
		khr_surface.PresentModeFIFO, khr_surface.PresentModeImmediate,
	}))
	assert.Equal(t, khr_surface.PresentModeFIFO, choosePresentMode([]khr_surface.PresentMode{khr_surface.PresentModeFIFO}))
}

func TestChooseSharingMode(t *testing.T) {
	mode, families := chooseSharingMode(sameFamily())
	assert.Equal(t, core1_0.SharingModeExclusive, mode)
	assert.Nil(t, families)

	mode, families = chooseSharingMode(queueFamilyIndices{GraphicsFamily: family(0), PresentFamily: family(2)})
	assert.Equal(t, core1_0.SharingModeConcurrent, mode)
	assert.Equal(t, []int{0, 2}, families)
}

type fakeWindow struct {
	sizes      [][2]int
	waits      int
	closeAfter int
}

func (w *fakeWindow) ProcAddr() unsafe.Pointer             { return nil }
func (w *fakeWindow) RequiredInstanceExtensions() []string { return nil }
func (w *fakeWindow) CreateSurface(core1_0.Instance, khr_surface.ExtensionDriver) (khr_surface.Surface, error) {
	return khr_surface.Surface{}, errors.New("no surface in tests")
}

func (w *fakeWindow) DrawableSize() (int, int) {
	size := w.sizes[0]
	if len(w.sizes) > 1 {
		w.sizes = w.sizes[1:]
	}
	return size[0], size[1]
}

func (w *fakeWindow) WaitEvents() bool {
	w.waits++
	return w.closeAfter == 0 || w.waits < w.closeAfter
}

func TestWaitForDrawableSizeWhileMinimized(t *testing.T) {
	window := &fakeWindow{sizes: [][2]int{{0, 0}, {800, 0}, {0, 0}, {800, 600}}}

	extent, err := waitForDrawableSize(window)
	require.NoError(t, err)
	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, extent)
	assert.Equal(t, 3, window.waits)
}

func TestWaitForDrawableSizeReturnsImmediately(t *testing.T) {
	window := &fakeWindow{sizes: [][2]int{{64, 64}}}

	extent, err := waitForDrawableSize(window)
	require.NoError(t, err)
	assert.Equal(t, core1_0.Extent2D{Width: 64, Height: 64}, extent)
	assert.Zero(t, window.waits)
}

func TestWaitForDrawableSizeWindowClosed(t *testing.T) {
	window := &fakeWindow{sizes: [][2]int{{0, 0}}, closeAfter: 2}

	_, err := waitForDrawableSize(window)
	require.ErrorIs(t, err, ErrWindowClosed)
	assert.Equal(t, 2, window.waits)
}
