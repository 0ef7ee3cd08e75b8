package engine

import (
	"github.com/spaghettifunk/framecore/engine/renderer/pass"
)

// Game is the application driven by the engine. The callbacks are optional
// except where noted.
//
// FnInitialize runs once the render pipeline exists. FnUpdate runs at a
// fixed step on the producer goroutine; FnRender runs once per frame on the
// producer goroutine, after the views are generated and before the passes
// are prepared, and is where the overlay is drawn. FnOnResize runs on
// whichever goroutine reported the new size.
type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	// Collectors fill geometry passes, keyed by the collector name the
	// configuration uses.
	Collectors   map[string]pass.Collector
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

type Initialize func(e *Engine) error
type Update func(deltaTime float64) error
type Render func(frame *FrameContext, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
