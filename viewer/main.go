// Command viewer opens a window and spins a textured model in it.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/modelviewer/assets"
	"github.com/vkngwrapper/modelviewer/renderer"
	"github.com/vkngwrapper/modelviewer/sdlwindow"
)

type config struct {
	assetRoot string
	paths     assets.Paths
	width     int
	height    int
	logLevel  string
	options   renderer.Options
}

func parseFlags(args []string) (config, error) {
	cfg := config{
		paths:   assets.DefaultPaths(),
		options: renderer.DefaultOptions(),
	}

	flagSet := flag.NewFlagSet("viewer", flag.ContinueOnError)
	flagSet.StringVar(&cfg.assetRoot, "assets", ".", "directory the asset paths are relative to")
	flagSet.StringVar(&cfg.paths.Model, "model", cfg.paths.Model, "OBJ model")
	flagSet.StringVar(&cfg.paths.Material, "material", cfg.paths.Material, "MTL material library, empty for none")
	flagSet.StringVar(&cfg.paths.Texture, "texture", cfg.paths.Texture, "texture image")
	flagSet.StringVar(&cfg.paths.VertexShader, "vert", cfg.paths.VertexShader, "SPIR-V vertex shader")
	flagSet.StringVar(&cfg.paths.FragmentShader, "frag", cfg.paths.FragmentShader, "SPIR-V fragment shader")
	flagSet.IntVar(&cfg.width, "width", 800, "initial window width")
	flagSet.IntVar(&cfg.height, "height", 600, "initial window height")
	flagSet.IntVar(&cfg.options.FramesInFlight, "frames-in-flight", cfg.options.FramesInFlight, "number of frames the CPU may run ahead of the GPU")
	flagSet.BoolVar(&cfg.options.EnableValidation, "validation", false, "enable the Khronos validation layer")
	flagSet.StringVar(&cfg.options.PipelineCachePath, "pipeline-cache", "", "file to persist the pipeline cache in")
	flagSet.StringVar(&cfg.logLevel, "log-level", "info", "debug, info, warn or error")

	if err := flagSet.Parse(args); err != nil {
		return cfg, err
	}
	if cfg.width <= 0 || cfg.height <= 0 {
		return cfg, errors.Newf("window size must be positive, got %dx%d", cfg.width, cfg.height)
	}
	return cfg, nil
}

func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}

func run(cfg config) error {
	logger, err := newLogger(cfg.logLevel)
	if err != nil {
		return err
	}
	renderer.SetLogger(logger)

	bundle, err := assets.Load(context.Background(), os.DirFS(cfg.assetRoot), cfg.paths)
	if err != nil {
		return err
	}

	window, err := sdlwindow.New(cfg.options.ApplicationName, cfg.width, cfg.height)
	if err != nil {
		return err
	}
	defer window.Destroy()

	r, err := renderer.New(window, cfg.options, bundle)
	if err != nil {
		return err
	}

	loopErr := mainLoop(window, r)
	if err := r.Shutdown(); err != nil {
		return errors.CombineErrors(loopErr, err)
	}

	stats := r.Stats()
	logger.Info("exiting", "presented", stats.Presented, "abandoned", stats.Abandoned, "rebuilds", stats.Rebuilds)
	return loopErr
}

func mainLoop(window *sdlwindow.Window, r *renderer.Renderer) error {
	for window.PollEvents(r.NotifyResized) {
		_, err := r.DrawFrame()
		if errors.Is(err, renderer.ErrWindowClosed) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func main() {
	runtime.LockOSThread()

	cfg, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("%+v\n", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("%+v\n", err)
	}
}
