package renderer

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/modelviewer/assets"
)

const textureFormat = core1_0.FormatR8G8B8A8SRGB

// Renderer draws one textured model into a window. It is not safe for
// concurrent use; every method must be called from the thread that owns the
// window.
type Renderer struct {
	window Window
	opts   Options

	dev      *deviceContext
	uploader *uploader
	shaders  shaderSet
	cache    *pipelineCache
	scene    sceneBindings
	slots    []frameSlot

	// deviceScope lives until Shutdown; chainScope is emptied and refilled on
	// every chain rebuild.
	deviceScope *releaseScope
	chainScope  *releaseScope

	chain  *surfaceChain
	depth  gpuImage
	pass   *passState
	images *imageResources

	frames    *frameOrchestrator
	startedAt time.Duration
	closed    bool
}

// New brings up the device, uploads bundle and builds the first chain. On
// error everything created so far has already been released.
func New(window Window, opts Options, bundle *assets.Bundle) (_ *Renderer, err error) {
	if err := opts.validate(); err != nil {
		return nil, errors.Wrap(err, "renderer options")
	}
	if bundle == nil || bundle.Mesh == nil || bundle.Texture == nil {
		return nil, errors.New("renderer needs a mesh and a texture")
	}

	r := &Renderer{
		window:      window,
		opts:        opts,
		deviceScope: newReleaseScope("device"),
		chainScope:  newReleaseScope("chain"),
		shaders: shaderSet{
			vertex:   bundle.VertexShader,
			fragment: bundle.FragmentShader,
		},
	}
	defer func() {
		if err != nil {
			r.releaseAll()
		}
	}()

	r.dev, err = bootstrapDevice(window, opts, r.deviceScope)
	if err != nil {
		return nil, err
	}

	r.cache, err = r.dev.createPipelineCache(opts.PipelineCachePath, r.deviceScope)
	if err != nil {
		return nil, err
	}

	if err = r.createCommandPool(); err != nil {
		return nil, err
	}

	r.slots, err = r.dev.createFrameSlots(opts.FramesInFlight, r.deviceScope)
	if err != nil {
		return nil, err
	}

	if err = r.uploadScene(bundle); err != nil {
		return nil, err
	}

	if err = r.buildChain(); err != nil {
		return nil, err
	}

	r.frames = newFrameOrchestrator(r, opts.FramesInFlight)
	r.startedAt = hrtime.Now()
	return r, nil
}

func (r *Renderer) createCommandPool() error {
	pool, _, err := r.dev.deviceDriver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: *r.dev.queueFamilies.GraphicsFamily,
	})
	if err != nil {
		return errors.Wrap(err, "create command pool")
	}
	r.deviceScope.own("command pool", func() { r.dev.deviceDriver.DestroyCommandPool(pool, nil) })

	r.uploader = &uploader{dev: r.dev, commandPool: pool}
	return nil
}

// uploadScene moves the mesh and texture to device-local memory and creates
// the descriptor set layout and sampler they are bound through.
func (r *Renderer) uploadScene(bundle *assets.Bundle) error {
	driver := r.dev.deviceDriver
	scene := &r.scene
	scene.clearColor = r.opts.ClearColor

	var err error
	scene.vertexBuffer, err = r.uploader.uploadBuffer(bundle.Mesh.Vertices, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return errors.Wrap(err, "upload vertices")
	}
	r.deviceScope.own("vertex buffer", func() { scene.vertexBuffer.destroy(driver) })

	scene.indexBuffer, err = r.uploader.uploadBuffer(bundle.Mesh.Indices, core1_0.BufferUsageIndexBuffer)
	if err != nil {
		return errors.Wrap(err, "upload indices")
	}
	scene.indexCount = len(bundle.Mesh.Indices)
	r.deviceScope.own("index buffer", func() { scene.indexBuffer.destroy(driver) })

	scene.setLayout, err = r.dev.createDescriptorSetLayout()
	if err != nil {
		return err
	}
	r.deviceScope.own("descriptor set layout", func() { driver.DestroyDescriptorSetLayout(scene.setLayout, nil) })

	scene.texture, err = r.uploader.uploadTexture(bundle.Texture, textureFormat)
	if err != nil {
		return errors.Wrap(err, "upload texture")
	}
	r.deviceScope.own("texture", func() { scene.texture.destroy(driver) })

	scene.sampler, _, err = driver.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeRepeat,
		AddressModeW: core1_0.SamplerAddressModeRepeat,

		AnisotropyEnable: true,
		MaxAnisotropy:    r.dev.identity.maxAnisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     0,
	})
	if err != nil {
		return errors.Wrap(err, "create texture sampler")
	}
	r.deviceScope.own("texture sampler", func() { driver.DestroySampler(scene.sampler, nil) })

	Logger().Info("scene uploaded",
		"vertices", len(bundle.Mesh.Vertices),
		"indices", scene.indexCount,
		"texture", [2]int{bundle.Texture.Width, bundle.Texture.Height})
	return nil
}

// buildChain fills chainScope with a chain sized to the current drawable and
// everything that depends on it. It blocks while the window is minimized.
func (r *Renderer) buildChain() error {
	plan, err := r.planChain()
	if err != nil {
		return err
	}

	chain, err := r.dev.createSurfaceChain(plan, r.chainScope)
	if err != nil {
		return err
	}

	depth, err := r.uploader.createDepthTarget(chain.extent)
	if err != nil {
		return err
	}
	r.chainScope.own("depth target", func() { depth.destroy(r.dev.deviceDriver) })

	pass, err := r.dev.buildPass(chain, depth, r.scene.setLayout, r.shaders, r.cache, r.chainScope)
	if err != nil {
		return err
	}

	images, err := r.uploader.createImageResources(chain, pass, &r.scene, r.chainScope)
	if err != nil {
		return err
	}

	r.chain, r.depth, r.pass, r.images = chain, depth, pass, images

	Logger().Info("swapchain built",
		"width", chain.extent.Width,
		"height", chain.extent.Height,
		"images", chain.imageCount(),
		"format", chain.format(),
		"presentMode", chain.presentMode)
	return nil
}

// planChain waits for a drawable with area and plans against it. The surface
// can still report a zero extent right after a restore, in which case it
// waits for the next event and tries again.
func (r *Renderer) planChain() (chainPlan, error) {
	for {
		drawable, err := waitForDrawableSize(r.window)
		if err != nil {
			return chainPlan{}, err
		}

		support, err := r.dev.querySwapchainSupport(r.dev.physicalDevice)
		if err != nil {
			return chainPlan{}, errors.Wrap(err, "query swapchain support")
		}

		plan, err := planChain(support, r.dev.queueFamilies, drawable)
		if !errors.Is(err, ErrZeroExtent) {
			return plan, err
		}

		Logger().Debug("surface reports zero extent, waiting")
		if !r.window.WaitEvents() {
			return chainPlan{}, ErrWindowClosed
		}
	}
}

// idle waits for the device to finish all outstanding work. Before a logical
// device exists nothing can be outstanding.
func (r *Renderer) idle() (idleToken, error) {
	if r.dev == nil || r.dev.deviceDriver == nil {
		return idleToken{}, nil
	}
	return r.dev.waitIdle()
}

func (r *Renderer) releaseAll() {
	token, err := r.idle()
	if err != nil {
		Logger().Error("device did not go idle, leaking GPU resources", "err", err)
		return
	}

	r.chainScope.release(token)
	r.deviceScope.release(token)
}

// DrawFrame renders and presents one frame. FrameAbandoned means the chain
// had gone stale and was rebuilt instead; the caller should simply draw
// again. An error is fatal.
func (r *Renderer) DrawFrame() (FrameOutcome, error) {
	if r.closed {
		return 0, ErrRendererClosed
	}
	if r.chain == nil {
		return 0, errors.New("no swapchain: an earlier rebuild failed")
	}
	return r.frames.drawFrame()
}

// NotifyResized marks the chain stale. The next DrawFrame rebuilds it before
// acquiring an image.
func (r *Renderer) NotifyResized() {
	if r.closed {
		return
	}
	r.frames.notifyResized()
}

func (r *Renderer) Stats() FrameStats {
	if r.frames == nil {
		return FrameStats{}
	}
	return r.frames.stats
}

// Shutdown waits for the GPU and releases every resource, chain first. It is
// safe to call more than once.
func (r *Renderer) Shutdown() error {
	if r.closed {
		return nil
	}

	token, err := r.idle()
	if err != nil {
		return errors.Wrap(err, "shutdown")
	}

	r.frames.close()
	r.chainScope.release(token)
	r.deviceScope.release(token)
	r.closed = true

	stats := r.frames.stats
	Logger().Info("renderer shut down",
		"presented", stats.Presented,
		"abandoned", stats.Abandoned,
		"rebuilds", stats.Rebuilds)
	return nil
}

func (r *Renderer) waitSlot(slot int) error {
	_, err := r.dev.deviceDriver.WaitForFences(true, common.NoTimeout, r.slots[slot].inFlight)
	return errors.Wrap(err, "wait for in-flight fence")
}

func (r *Renderer) acquireImage(slot int) (int, bool, error) {
	imageIndex, res, err := r.dev.swapchainExtension.AcquireNextImage(r.chain.swapchain, common.NoTimeout, &r.slots[slot].imageAvailable, nil)
	switch {
	case res == khr_swapchain.VKErrorOutOfDate:
		return -1, true, nil
	case res == khr_swapchain.VKSuboptimal:
		return imageIndex, true, nil
	case err != nil:
		return -1, false, errors.Wrap(err, "acquire next image")
	}
	return imageIndex, false, nil
}

func (r *Renderer) prepareImage(imageIndex int) error {
	elapsed := hrtime.Now() - r.startedAt
	ubo := computeUniforms(elapsed.Seconds(), r.chain.extent)

	err := writeData(r.dev.deviceDriver, r.images.uniformBuffers[imageIndex].memory, 0, &ubo)
	return errors.Wrap(err, "write uniforms")
}

func (r *Renderer) resetSlot(slot int) error {
	_, err := r.dev.deviceDriver.ResetFences(r.slots[slot].inFlight)
	return errors.Wrap(err, "reset in-flight fence")
}

func (r *Renderer) submit(slot, imageIndex int) error {
	frame := &r.slots[slot]
	_, err := r.dev.deviceDriver.QueueSubmit(r.dev.graphicsQueue, &frame.inFlight,
		core1_0.SubmitInfo{
			WaitSemaphores:   []core1_0.Semaphore{frame.imageAvailable},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{r.images.commandBuffers[imageIndex]},
			SignalSemaphores: []core1_0.Semaphore{frame.renderFinished},
		},
	)
	return errors.Wrap(err, "submit draw")
}

func (r *Renderer) present(slot, imageIndex int) (bool, error) {
	res, err := r.dev.swapchainExtension.QueuePresent(r.dev.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{r.slots[slot].renderFinished},
		Swapchains:     []khr_swapchain.Swapchain{r.chain.swapchain},
		ImageIndices:   []int{imageIndex},
	})
	if res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal {
		return true, nil
	}
	return false, errors.Wrap(err, "present")
}

func (r *Renderer) rebuildChain() error {
	token, err := r.dev.waitIdle()
	if err != nil {
		return err
	}

	r.chainScope.release(token)
	r.chain, r.pass, r.images = nil, nil, nil
	r.depth = gpuImage{}

	return errors.Wrap(r.buildChain(), "rebuild chain")
}

func (r *Renderer) drainImageSignal(slot int) error {
	return r.dev.drainImageAvailable(&r.slots[slot])
}

func (r *Renderer) imageCount() int {
	return r.chain.imageCount()
}
