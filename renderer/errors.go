package renderer

import (
	"github.com/cockroachdb/errors"
)

var (
	ErrNoSuitableDevice      = errors.New("failed to find a suitable GPU")
	ErrNoMemoryType          = errors.New("failed to find a suitable memory type")
	ErrNoDepthFormat         = errors.New("failed to find a supported depth format")
	ErrUnsupportedTransition = errors.New("unsupported layout transition")
	ErrMissingExtension      = errors.New("required extension not available")
	ErrMissingLayer          = errors.New("required layer not available")
	ErrZeroExtent            = errors.New("surface extent is zero")
	ErrRendererClosed        = errors.New("renderer has been shut down")
	ErrWindowClosed          = errors.New("window was closed")
)
