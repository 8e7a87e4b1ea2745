package renderer

import (
	"github.com/cockroachdb/errors"
)

const (
	DefaultFramesInFlight = 2
	maxFramesInFlight     = 8
)

// Options configures a Renderer. FramesInFlight is the number of frame slots
// and stays fixed for the lifetime of the renderer.
type Options struct {
	ApplicationName   string
	FramesInFlight    int
	EnableValidation  bool
	PipelineCachePath string
	ClearColor        [4]float32
}

func DefaultOptions() Options {
	return Options{
		ApplicationName: "Model Viewer",
		FramesInFlight:  DefaultFramesInFlight,
		ClearColor:      [4]float32{0, 0, 0, 1},
	}
}

func (o Options) validate() error {
	if o.FramesInFlight < 1 || o.FramesInFlight > maxFramesInFlight {
		return errors.Newf("frames in flight must be between 1 and %d, got %d", maxFramesInFlight, o.FramesInFlight)
	}
	if o.ApplicationName == "" {
		return errors.New("application name must not be empty")
	}
	return nil
}
