package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

var preferredSurfaceFormat = khr_surface.SurfaceFormat{
	Format:     core1_0.FormatB8G8R8A8SRGB,
	ColorSpace: khr_surface.ColorSpaceSRGBNonlinear,
}

type swapchainSupportDetails struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

func (d *deviceContext) querySwapchainSupport(device core1_0.PhysicalDevice) (swapchainSupportDetails, error) {
	var details swapchainSupportDetails
	var err error

	details.Capabilities, _, err = d.surfaceExtension.GetPhysicalDeviceSurfaceCapabilities(d.surface, device)
	if err != nil {
		return details, errors.Wrap(err, "query surface capabilities")
	}

	details.Formats, _, err = d.surfaceExtension.GetPhysicalDeviceSurfaceFormats(d.surface, device)
	if err != nil {
		return details, errors.Wrap(err, "query surface formats")
	}

	details.PresentModes, _, err = d.surfaceExtension.GetPhysicalDeviceSurfacePresentModes(d.surface, device)
	return details, errors.Wrap(err, "query present modes")
}

// chooseSurfaceFormat prefers sRGB BGRA8. A single undefined entry means the
// surface accepts anything, so the preferred pair is used verbatim.
func chooseSurfaceFormat(availableFormats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	if len(availableFormats) == 0 {
		return preferredSurfaceFormat
	}
	if len(availableFormats) == 1 && availableFormats[0].Format == core1_0.FormatUndefined {
		return preferredSurfaceFormat
	}

	for _, format := range availableFormats {
		if format.Format == preferredSurfaceFormat.Format && format.ColorSpace == preferredSurfaceFormat.ColorSpace {
			return format
		}
	}

	return availableFormats[0]
}

// choosePresentMode prefers mailbox, then immediate, then FIFO, which every
// implementation must offer.
func choosePresentMode(availablePresentModes []khr_surface.PresentMode) khr_surface.PresentMode {
	immediate := false
	for _, presentMode := range availablePresentModes {
		if presentMode == khr_surface.PresentModeMailbox {
			return presentMode
		}
		if presentMode == khr_surface.PresentModeImmediate {
			immediate = true
		}
	}

	if immediate {
		return khr_surface.PresentModeImmediate
	}
	return khr_surface.PresentModeFIFO
}

func hasDefiniteExtent(extent core1_0.Extent2D) bool {
	return extent.Width != -1 && extent.Width != 0xFFFFFFFF
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

// chooseExtent uses the surface's current extent when it has one, otherwise the
// window's drawable size clamped into the surface's bounds.
func chooseExtent(capabilities *khr_surface.SurfaceCapabilities, drawable core1_0.Extent2D) core1_0.Extent2D {
	if hasDefiniteExtent(capabilities.CurrentExtent) {
		return capabilities.CurrentExtent
	}

	return core1_0.Extent2D{
		Width:  clamp(drawable.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clamp(drawable.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

// chooseImageCount asks for one image more than the minimum. A zero maximum
// means the surface has no upper bound.
func chooseImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

func chooseSharingMode(indices queueFamilyIndices) (core1_0.SharingMode, []int) {
	if *indices.GraphicsFamily != *indices.PresentFamily {
		return core1_0.SharingModeConcurrent, []int{*indices.GraphicsFamily, *indices.PresentFamily}
	}
	return core1_0.SharingModeExclusive, nil
}

// chainPlan is every decision needed to create a surface chain. It depends
// only on its inputs, so planning twice against the same surface state yields
// the same chain.
type chainPlan struct {
	surfaceFormat      khr_surface.SurfaceFormat
	presentMode        khr_surface.PresentMode
	extent             core1_0.Extent2D
	imageCount         int
	sharingMode        core1_0.SharingMode
	queueFamilyIndices []int
	capabilities       *khr_surface.SurfaceCapabilities
}

func planChain(support swapchainSupportDetails, indices queueFamilyIndices, drawable core1_0.Extent2D) (chainPlan, error) {
	plan := chainPlan{
		surfaceFormat: chooseSurfaceFormat(support.Formats),
		presentMode:   choosePresentMode(support.PresentModes),
		extent:        chooseExtent(support.Capabilities, drawable),
		imageCount:    chooseImageCount(support.Capabilities),
		capabilities:  support.Capabilities,
	}
	plan.sharingMode, plan.queueFamilyIndices = chooseSharingMode(indices)

	if plan.extent.Width <= 0 || plan.extent.Height <= 0 {
		return plan, errors.Wrapf(ErrZeroExtent, "planned extent %dx%d", plan.extent.Width, plan.extent.Height)
	}

	return plan, nil
}

// surfaceChain is the presentable image chain and one view per image. It is
// only ever built and torn down whole.
type surfaceChain struct {
	swapchain     khr_swapchain.Swapchain
	images        []core1_0.Image
	views         []core1_0.ImageView
	surfaceFormat khr_surface.SurfaceFormat
	presentMode   khr_surface.PresentMode
	extent        core1_0.Extent2D
}

func (c *surfaceChain) imageCount() int {
	return len(c.images)
}

func (c *surfaceChain) format() core1_0.Format {
	return c.surfaceFormat.Format
}

func (d *deviceContext) createSurfaceChain(plan chainPlan, scope *releaseScope) (*surfaceChain, error) {
	swapchain, _, err := d.swapchainExtension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: d.surface,

		MinImageCount:    plan.imageCount,
		ImageFormat:      plan.surfaceFormat.Format,
		ImageColorSpace:  plan.surfaceFormat.ColorSpace,
		ImageExtent:      plan.extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   plan.sharingMode,
		QueueFamilyIndices: plan.queueFamilyIndices,

		PreTransform:   plan.capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    plan.presentMode,
		Clipped:        true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}

	chain := &surfaceChain{
		swapchain:     swapchain,
		surfaceFormat: plan.surfaceFormat,
		presentMode:   plan.presentMode,
		extent:        plan.extent,
	}
	scope.own("swapchain", func() { d.swapchainExtension.DestroySwapchain(chain.swapchain, nil) })

	chain.images, _, err = d.swapchainExtension.GetSwapchainImages(swapchain)
	if err != nil {
		return nil, errors.Wrap(err, "get swapchain images")
	}

	for _, image := range chain.images {
		view, err := d.createImageView(image, chain.format(), core1_0.ImageAspectColor)
		if err != nil {
			return nil, errors.Wrap(err, "create swapchain image view")
		}

		chain.views = append(chain.views, view)
		scope.own("swapchain image view", func() { d.deviceDriver.DestroyImageView(view, nil) })
	}

	return chain, nil
}

func (d *deviceContext) createImageView(image core1_0.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (core1_0.ImageView, error) {
	imageView, _, err := d.deviceDriver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	return imageView, err
}

// waitForDrawableSize blocks while the window is minimized, pumping window
// events, since a zero-sized chain cannot be created.
func waitForDrawableSize(window Window) (core1_0.Extent2D, error) {
	for {
		width, height := window.DrawableSize()
		if width > 0 && height > 0 {
			return core1_0.Extent2D{Width: width, Height: height}, nil
		}

		if !window.WaitEvents() {
			return core1_0.Extent2D{}, ErrWindowClosed
		}
	}
}
