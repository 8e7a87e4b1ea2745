// Package sdlwindow provides an SDL2 window the renderer can present to.
package sdlwindow

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
)

// Window owns the SDL video subsystem and one resizable Vulkan window. All
// methods must be called from the thread that created it.
type Window struct {
	window  *sdl.Window
	closed  bool
	resized bool

	waitEvent func() sdl.Event
	pollEvent func() sdl.Event
}

func New(title string, width, height int) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "init sdl video")
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}

	return &Window{
		window:    window,
		waitEvent: sdl.WaitEvent,
		pollEvent: sdl.PollEvent,
	}, nil
}

func (w *Window) ProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

func (w *Window) RequiredInstanceExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

func (w *Window) CreateSurface(instance core1_0.Instance, surfaceExtension khr_surface.ExtensionDriver) (khr_surface.Surface, error) {
	return vkng_sdl2.CreateSurface(instance, surfaceExtension, w.window)
}

func (w *Window) DrawableSize() (width, height int) {
	if w.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return 0, 0
	}

	dw, dh := w.window.VulkanGetDrawableSize()
	return int(dw), int(dh)
}

// WaitEvents blocks for the next event and drains whatever else is queued.
// It reports false once a quit has been requested. Only the renderer calls it,
// while a chain rebuild waits for a drawable size, so size changes seen here
// are already reflected in that rebuild and are not reported to PollEvents.
func (w *Window) WaitEvents() bool {
	if event := w.waitEvent(); event != nil {
		w.handle(event)
	}
	w.drain()
	w.resized = false
	return !w.closed
}

// PollEvents handles every queued event without blocking. onResize is called
// at most once if the window changed size since the last call. It reports
// false once a quit has been requested.
func (w *Window) PollEvents(onResize func()) bool {
	w.drain()

	if w.resized {
		w.resized = false
		if onResize != nil {
			onResize()
		}
	}
	return !w.closed
}

func (w *Window) drain() {
	for event := w.pollEvent(); event != nil; event = w.pollEvent() {
		w.handle(event)
	}
}

func (w *Window) handle(event sdl.Event) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		w.closed = true
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED, sdl.WINDOWEVENT_MINIMIZED, sdl.WINDOWEVENT_RESTORED:
			w.resized = true
		case sdl.WINDOWEVENT_CLOSE:
			w.closed = true
		}
	}
}

func (w *Window) Destroy() {
	if w.window != nil {
		_ = w.window.Destroy()
		w.window = nil
	}
	sdl.Quit()
}
