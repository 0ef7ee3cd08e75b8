package testbed

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/spaghettifunk/framecore/engine"
	"github.com/spaghettifunk/framecore/engine/config"
	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/math"
	"github.com/spaghettifunk/framecore/engine/renderer/components"
	"github.com/spaghettifunk/framecore/engine/renderer/mailbox"
	"github.com/spaghettifunk/framecore/engine/renderer/pass"
)

const (
	// ScenePass is the geometry pass the cubes are drawn by.
	ScenePass = "scene"
	// UIMailbox and DebugMailbox are the overlay mailboxes the HUD draws into.
	UIMailbox    = "ui"
	DebugMailbox = "debug"

	orbitRadius = 18.0
	orbitHeight = 8.0
	orbitSpeed  = 0.15
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	engine      *engine.Engine
	WorldCamera *components.Camera
	scene       *scene

	orbit float32
}

func NewTestGame(cfg *config.Config, configPath string) *TestGame {
	state := &gameState{
		scene: newScene(),
	}
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: engine.NewApplicationConfig(cfg, configPath),
			State:             state,
			Collectors: map[string]pass.Collector{
				ScenePass: state.scene.collect,
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Initialize(e *engine.Engine) error {
	core.LogDebug("TestGame Initialize fn....")

	state := g.State.(*gameState)
	state.engine = e
	state.WorldCamera = e.Camera()

	p, ok := e.Pipeline().Pass(ScenePass)
	if !ok {
		return fmt.Errorf("the render pipeline has no %q pass", ScenePass)
	}
	if err := state.scene.upload(e.Pipeline().Resources(), p.Pipeline()); err != nil {
		core.LogError("failed to upload the test scene")
		return err
	}
	if err := e.SetSharedBuffers(state.scene.objects); err != nil {
		return err
	}
	state.placeCamera()

	core.LogInfo("testbed scene ready: %d objects, %d materials", len(state.scene.items), len(materials))
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)

	state.orbit += orbitSpeed * float32(deltaTime)
	if state.orbit > math.K_PI_2 {
		state.orbit -= math.K_PI_2
	}
	state.placeCamera()
	state.scene.update(float32(deltaTime))
	return nil
}

func (s *gameState) placeCamera() {
	pos := math.NewVec3(math32.Cos(s.orbit)*orbitRadius, orbitHeight, math32.Sin(s.orbit)*orbitRadius)
	s.WorldCamera.SetPosition(pos)
	s.WorldCamera.LookAt(math.NewVec3Zero())
}

func (g *TestGame) Render(frame *engine.FrameContext, deltaTime float64) error {
	state := g.State.(*gameState)

	if dbg := frame.Debug(DebugMailbox); dbg != nil {
		dbg.Axes(math.NewMat4Identity(), 2)
		boundsColour := math.NewVec4(1, 1, 0, 1)
		for _, obj := range state.scene.items {
			dbg.Box(state.scene.bounds.Transform(obj.transform.GetWorld()), boundsColour)
		}
	}

	ui := frame.Canvas(UIMailbox)
	if ui == nil {
		return nil
	}
	fps, ms, _ := state.engine.Metrics().Frame()
	st := state.engine.Pipeline().Stats()
	lines := []string{
		fmt.Sprintf("frame %d  %dx%d", frame.FrameIndex, frame.Size.Width, frame.Size.Height),
		fmt.Sprintf("%.1f fps  %.2f ms", fps, ms),
		fmt.Sprintf("visible %d  culled %d", state.scene.stats.Visible, state.scene.stats.Culled),
		fmt.Sprintf("draws %d  binds %d  copies %d", st.Draws, st.PipelineBinds, st.Copies),
	}

	lineHeight := float32(ui.Font().LineHeight)
	panel := mailbox.Rect{X: 8, Y: 8, Width: 260, Height: lineHeight*float32(len(lines)) + 12}
	ui.Rect(panel, math.NewVec4(0, 0, 0, 0.6))
	ui.RectOutline(panel, math.NewVec4(1, 1, 1, 0.8))
	ui.SetClip(panel)
	y := panel.Y + 6
	for _, l := range lines {
		ui.Text(math.NewVec2(panel.X+6, y), l, math.NewVec4(1, 1, 1, 1))
		y += lineHeight
	}
	ui.ResetClip()
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	core.LogDebug("testbed framebuffer is now %dx%d", width, height)
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	if state.engine != nil {
		core.LogInfo("testbed shutting down after %d frames", state.engine.Frames())
	}
	return nil
}
