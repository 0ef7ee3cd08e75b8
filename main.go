/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/framecore/engine"
	"github.com/spaghettifunk/framecore/engine/config"
	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/testbed"
)

func main() {
	configPath := flag.String("config", "framecore.toml", "path of the engine configuration")
	backend := flag.String("backend", "", "override the renderer backend (headless or vulkan)")
	frames := flag.Uint64("frames", 0, "stop after this many frames, 0 runs until closed")
	window := flag.Bool("window", false, "open a window for input and resize events")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		core.LogWarn("%s not found, using the default configuration", *configPath)
		cfg = config.Default()
		*configPath = ""
	case err != nil:
		core.LogFatal("loading %s: %s", *configPath, err)
	}
	if *backend != "" {
		cfg.Renderer.Backend = *backend
	}
	if *frames > 0 {
		cfg.Application.MaxFrames = *frames
	}
	if *window {
		cfg.Application.Window = true
	}

	tb := testbed.NewTestGame(cfg, *configPath)

	engine, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal(err.Error())
	}

	if err := engine.Initialize(); err != nil {
		_ = engine.Shutdown()
		core.LogFatal(err.Error())
	}

	// cancel the frame loop on sigterm and other system calls
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	// run engine
	runErr := engine.Run(ctx)
	if err := engine.Shutdown(); err != nil {
		core.LogError(err.Error())
	}
	if runErr != nil {
		core.LogFatal(runErr.Error())
	}
}
