package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/renderer/frame"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
	"github.com/spaghettifunk/framecore/engine/renderer/mailbox"
	"github.com/spaghettifunk/framecore/engine/renderer/pass"
	"github.com/spaghettifunk/framecore/engine/renderer/views"
)

const (
	BackendHeadless = "headless"
	BackendVulkan   = "vulkan"
)

type Application struct {
	Name     string `toml:"name"`
	Width    uint32 `toml:"width"`
	Height   uint32 `toml:"height"`
	PosX     uint32 `toml:"pos_x"`
	PosY     uint32 `toml:"pos_y"`
	LogLevel string `toml:"log_level"`
	// Window opens a platform window. Without it the engine renders
	// offscreen at the configured size.
	Window bool `toml:"window"`
	// TargetFPS limits the producer loop. Zero runs unthrottled.
	TargetFPS int `toml:"target_fps"`
	// MaxFrames stops the engine after this many frames. Zero runs until
	// asked to quit.
	MaxFrames uint64 `toml:"max_frames"`
	// MetricsEvery logs the frame metrics every N frames. Zero disables.
	MetricsEvery uint64 `toml:"metrics_every"`
}

type Renderer struct {
	Backend          string `toml:"backend"`
	Debug            bool   `toml:"debug"`
	FramesInFlight   int    `toml:"frames_in_flight"`
	AllocatorBytes   int    `toml:"allocator_bytes"`
	BindlessCapacity int    `toml:"bindless_capacity"`
	TableCapacity    int    `toml:"table_capacity"`
	AssetPath        string `toml:"asset_path"`
}

// Mailbox sizes one producer to render thread snapshot channel.
type Mailbox struct {
	Name         string `toml:"name"`
	Vertex       string `toml:"vertex"`
	Slots        int    `toml:"slots"`
	MaxVertices  int    `toml:"max_vertices"`
	MaxIndices   int    `toml:"max_indices"`
	MaxDrawCalls int    `toml:"max_draw_calls"`
}

type Target struct {
	Name   string `toml:"name"`
	Format string `toml:"format"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type Pipeline struct {
	Name           string `toml:"name"`
	VertexShader   string `toml:"vertex_shader"`
	FragmentShader string `toml:"fragment_shader"`
	Blend          bool   `toml:"blend"`
	DepthTest      bool   `toml:"depth_test"`
}

type Pass struct {
	Name     string     `toml:"name"`
	Kind     string     `toml:"kind"`
	Colour   []Target   `toml:"colour"`
	Depth    *Target    `toml:"depth"`
	Inputs   []string   `toml:"inputs"`
	Clear    [4]float32 `toml:"clear"`
	Pipeline Pipeline   `toml:"pipeline"`

	// geometry
	View           int    `toml:"view"`
	Collector      string `toml:"collector"`
	MaxCommands    int    `toml:"max_commands"`
	SortByDistance bool   `toml:"sort_by_distance"`

	// canvas
	Source      string `toml:"source"`
	MaxVertices int    `toml:"max_vertices"`
	MaxIndices  int    `toml:"max_indices"`
}

type Config struct {
	Application Application `toml:"application"`
	Renderer    Renderer    `toml:"renderer"`
	Mailboxes   []Mailbox   `toml:"mailboxes"`
	Passes      []Pass      `toml:"passes"`
}

// Default is the configuration used when no file is given: a geometry pass
// of the main view, the 2D overlay and the 3D debug lines, composited by a
// fullscreen pass.
func Default() *Config {
	return &Config{
		Application: Application{
			Name:         "Framecore",
			Width:        1280,
			Height:       720,
			PosX:         100,
			PosY:         100,
			LogLevel:     "info",
			TargetFPS:    60,
			MetricsEvery: 300,
		},
		Renderer: Renderer{
			Backend:          BackendHeadless,
			FramesInFlight:   frame.DefaultFramesInFlight,
			AllocatorBytes:   frame.DefaultAllocatorBytes,
			BindlessCapacity: frame.DefaultBindlessCapacity,
			TableCapacity:    16,
			AssetPath:        "assets",
		},
		Mailboxes: []Mailbox{
			{Name: "ui", Vertex: "2d", Slots: mailbox.DefaultSlots, MaxVertices: 16384, MaxIndices: 24576, MaxDrawCalls: 256},
			{Name: "debug", Vertex: "3d", Slots: mailbox.DefaultSlots, MaxVertices: 8192, MaxIndices: 8192, MaxDrawCalls: 64},
		},
		Passes: []Pass{
			{
				Name:      "scene",
				Kind:      pass.KindGeometry.String(),
				Colour:    []Target{{Name: "scene.colour", Format: gpu.FormatRGBA16F.String()}},
				Depth:     &Target{Name: "scene.depth", Format: gpu.FormatD32.String()},
				Clear:     [4]float32{0.05, 0.05, 0.08, 1},
				Collector: "scene",
				View:      int(views.Main),
				Pipeline: Pipeline{
					Name:           "Builtin.Geometry",
					VertexShader:   "geometry.vert.spv",
					FragmentShader: "geometry.frag.spv",
					DepthTest:      true,
				},
				SortByDistance: true,
			},
			{
				Name:   "debug",
				Kind:   pass.KindCanvas.String(),
				Colour: []Target{{Name: "debug.colour", Format: gpu.FormatRGBA8.String()}},
				Source: "debug",
				Pipeline: Pipeline{
					Name:           "Builtin.Debug",
					VertexShader:   "debug.vert.spv",
					FragmentShader: "canvas.frag.spv",
					Blend:          true,
				},
			},
			{
				Name:   "ui",
				Kind:   pass.KindCanvas.String(),
				Colour: []Target{{Name: "ui.colour", Format: gpu.FormatRGBA8.String()}},
				Source: "ui",
				Pipeline: Pipeline{
					Name:           "Builtin.Canvas",
					VertexShader:   "canvas.vert.spv",
					FragmentShader: "canvas.frag.spv",
					Blend:          true,
				},
			},
			{
				Name:   "composite",
				Kind:   pass.KindFullscreen.String(),
				Colour: []Target{{Name: "composite.colour", Format: gpu.FormatRGBA8.String()}},
				Inputs: []string{"scene", "debug", "ui"},
				Pipeline: Pipeline{
					Name:           "Builtin.Composite",
					VertexShader:   "fullscreen.vert.spv",
					FragmentShader: "composite.frag.spv",
				},
			},
		},
	}
}

// Load decodes a TOML file on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML on top of Default. Tables present in the document
// replace the defaults; mailboxes and passes, when given, replace the whole
// list.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	mailboxes, passes := cfg.Mailboxes, cfg.Passes
	cfg.Mailboxes, cfg.Passes = nil, nil

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%s: %w", strict.String(), core.ErrInvalidConfig)
		}
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return nil, fmt.Errorf("line %d column %d: %s: %w", row, col, decodeErr.Error(), core.ErrInvalidConfig)
		}
		return nil, err
	}
	if cfg.Mailboxes == nil {
		cfg.Mailboxes = mailboxes
	}
	if cfg.Passes == nil {
		cfg.Passes = passes
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal encodes the configuration back to TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), core.ErrInvalidConfig)
}

func (c *Config) Validate() error {
	if c.Application.Width == 0 || c.Application.Height == 0 {
		return invalid("application size %dx%d", c.Application.Width, c.Application.Height)
	}
	switch c.Renderer.Backend {
	case BackendHeadless, BackendVulkan:
	default:
		return invalid("unknown renderer backend %q", c.Renderer.Backend)
	}
	r := c.Renderer
	if r.FramesInFlight < frame.MinFramesInFlight || r.FramesInFlight > frame.MaxFramesInFlight {
		return invalid("frames_in_flight %d outside [%d, %d]", r.FramesInFlight, frame.MinFramesInFlight, frame.MaxFramesInFlight)
	}
	if r.AllocatorBytes <= 0 || r.BindlessCapacity <= 0 || r.TableCapacity <= 0 {
		return invalid("renderer capacities must be positive")
	}

	mailboxes := make(map[string]bool, len(c.Mailboxes))
	for _, m := range c.Mailboxes {
		if m.Name == "" {
			return invalid("mailbox without a name")
		}
		if mailboxes[m.Name] {
			return invalid("duplicate mailbox %q", m.Name)
		}
		mailboxes[m.Name] = true
		if m.Vertex != "2d" && m.Vertex != "3d" {
			return invalid("mailbox %s: vertex must be 2d or 3d, got %q", m.Name, m.Vertex)
		}
		if m.Slots < mailbox.MinSlots {
			return invalid("mailbox %s: %d slots, need at least %d", m.Name, m.Slots, mailbox.MinSlots)
		}
		if m.MaxVertices <= 0 || m.MaxIndices <= 0 || m.MaxDrawCalls <= 0 {
			return invalid("mailbox %s: capacities must be positive", m.Name)
		}
	}

	if len(c.Passes) == 0 {
		return invalid("no passes")
	}
	seen := make(map[string]bool, len(c.Passes))
	for _, p := range c.Passes {
		if p.Name == "" {
			return invalid("pass without a name")
		}
		if seen[p.Name] {
			return invalid("duplicate pass name %q", p.Name)
		}
		kind, err := pass.ParseKind(p.Kind)
		if err != nil {
			return invalid("pass %s: %s", p.Name, err)
		}
		if len(p.Colour) > pass.MaxColourTargets {
			return invalid("pass %s: %d colour targets, max %d", p.Name, len(p.Colour), pass.MaxColourTargets)
		}
		for _, t := range p.Colour {
			f, err := gpu.ParseFormat(t.Format)
			if err != nil {
				return invalid("pass %s target %s: %s", p.Name, t.Name, err)
			}
			if f.IsDepth() {
				return invalid("pass %s target %s: depth format as colour", p.Name, t.Name)
			}
		}
		if p.Depth != nil {
			f, err := gpu.ParseFormat(p.Depth.Format)
			if err != nil || !f.IsDepth() {
				return invalid("pass %s depth target %s: format %q", p.Name, p.Depth.Name, p.Depth.Format)
			}
		}
		for _, in := range p.Inputs {
			if !seen[in] {
				return invalid("pass %s reads %q which is not an earlier pass", p.Name, in)
			}
		}
		switch kind {
		case pass.KindGeometry:
			if p.View < 0 || p.View >= views.MaxViews {
				return invalid("pass %s: view %d outside [0, %d)", p.Name, p.View, views.MaxViews)
			}
		case pass.KindCanvas:
			if !mailboxes[p.Source] {
				return invalid("pass %s: unknown mailbox %q", p.Name, p.Source)
			}
		}
		seen[p.Name] = true
	}
	return nil
}

// Size is the configured framebuffer size.
func (c *Config) Size() gpu.Size {
	return gpu.Size{Width: c.Application.Width, Height: c.Application.Height}
}

func (c *Config) Mailbox(name string) (Mailbox, bool) {
	for _, m := range c.Mailboxes {
		if m.Name == name {
			return m, true
		}
	}
	return Mailbox{}, false
}

// MailboxConfig converts a mailbox entry for mailbox.New.
func (m Mailbox) MailboxConfig() mailbox.Config {
	return mailbox.Config{
		Name:         m.Name,
		Slots:        m.Slots,
		MaxVertices:  m.MaxVertices,
		MaxIndices:   m.MaxIndices,
		MaxDrawCalls: m.MaxDrawCalls,
	}
}
