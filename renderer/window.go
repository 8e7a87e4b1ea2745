package renderer

import (
	"unsafe"

	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// Window is the native window the renderer presents to.
type Window interface {
	// ProcAddr returns the loader's vkGetInstanceProcAddr.
	ProcAddr() unsafe.Pointer
	RequiredInstanceExtensions() []string
	CreateSurface(instance core1_0.Instance, surfaceExtension khr_surface.ExtensionDriver) (khr_surface.Surface, error)
	// DrawableSize reports the framebuffer size in pixels; zero while minimized.
	DrawableSize() (width, height int)
	// WaitEvents blocks until at least one window event has been handled. It
	// returns false once the window has been asked to close.
	WaitEvents() bool
}
