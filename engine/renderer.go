package engine

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/spaghettifunk/framecore/engine/assets"
	"github.com/spaghettifunk/framecore/engine/config"
	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/math"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
	"github.com/spaghettifunk/framecore/engine/renderer/headless"
	"github.com/spaghettifunk/framecore/engine/renderer/mailbox"
	"github.com/spaghettifunk/framecore/engine/renderer/orchestrator"
	"github.com/spaghettifunk/framecore/engine/renderer/pass"
	"github.com/spaghettifunk/framecore/engine/renderer/views"
	"github.com/spaghettifunk/framecore/engine/renderer/vulkan"
	"github.com/spaghettifunk/framecore/engine/systems"
)

var ErrUnknownCollector = errors.New("geometry pass names an unregistered collector")

// vertexLayout describes a vertex type to pipeline creation.
type vertexLayout struct {
	stride     uint32
	offsets    []uint32
	components []uint32
}

func layout3D() vertexLayout {
	var v math.Vertex3D
	return vertexLayout{
		stride:     uint32(unsafe.Sizeof(v)),
		offsets:    []uint32{uint32(unsafe.Offsetof(v.Position)), uint32(unsafe.Offsetof(v.Normal)), uint32(unsafe.Offsetof(v.Texcoord)), uint32(unsafe.Offsetof(v.Colour))},
		components: []uint32{3, 3, 2, 4},
	}
}

func layout2D() vertexLayout {
	var v math.Vertex2D
	return vertexLayout{
		stride:     uint32(unsafe.Sizeof(v)),
		offsets:    []uint32{uint32(unsafe.Offsetof(v.Position)), uint32(unsafe.Offsetof(v.Texcoord)), uint32(unsafe.Offsetof(v.Colour))},
		components: []uint32{2, 2, 4},
	}
}

// createDevice opens the configured backend.
func createDevice(cfg *config.Config, procAddr unsafe.Pointer) (gpu.Device, error) {
	switch cfg.Renderer.Backend {
	case config.BackendVulkan:
		return vulkan.New(vulkan.Options{
			AppName:        cfg.Application.Name,
			FramesInFlight: cfg.Renderer.FramesInFlight,
			Debug:          cfg.Renderer.Debug,
			ProcAddr:       procAddr,
			TableCapacity:  cfg.Renderer.TableCapacity,
		})
	case config.BackendHeadless:
		return headless.New(headless.Options{FramesInFlight: cfg.Renderer.FramesInFlight}), nil
	}
	return nil, fmt.Errorf("renderer backend %q: %w", cfg.Renderer.Backend, core.ErrInvalidConfig)
}

// mailboxes holds the producer ends the overlay draws into, by name.
type mailboxes struct {
	flat  map[string]*mailbox.Mailbox[math.Vertex2D]
	world map[string]*mailbox.Mailbox[math.Vertex3D]
}

func createMailboxes(cfg *config.Config) (*mailboxes, error) {
	m := &mailboxes{
		flat:  make(map[string]*mailbox.Mailbox[math.Vertex2D]),
		world: make(map[string]*mailbox.Mailbox[math.Vertex3D]),
	}
	for _, mc := range cfg.Mailboxes {
		switch mc.Vertex {
		case "2d":
			mb, err := mailbox.New[math.Vertex2D](mc.MailboxConfig())
			if err != nil {
				return nil, err
			}
			m.flat[mc.Name] = mb
		case "3d":
			mb, err := mailbox.New[math.Vertex3D](mc.MailboxConfig())
			if err != nil {
				return nil, err
			}
			m.world[mc.Name] = mb
		}
	}
	return m, nil
}

// source returns the consumer end and vertex layout of a mailbox.
func (m *mailboxes) source(name string) (pass.CanvasSource, vertexLayout, bool) {
	if mb, ok := m.flat[name]; ok {
		return pass.MailboxSource(mb), layout2D(), true
	}
	if mb, ok := m.world[name]; ok {
		return pass.MailboxSource(mb), layout3D(), true
	}
	return nil, vertexLayout{}, false
}

// shaderLoader resolves a shader file name to SPIR-V bytes.
type shaderLoader func(name string) ([]byte, error)

func assetShaders(am *assets.AssetManager) shaderLoader {
	return func(name string) ([]byte, error) {
		res, err := am.LoadAsset(name, assets.ResourceTypeShader, name)
		if err != nil {
			return nil, err
		}
		return res.Data.([]byte), nil
	}
}

// prefetchShaders loads every shader the passes name on the job system and
// returns a loader serving the results.
func prefetchShaders(js *systems.JobSystem, cfg *config.Config, load shaderLoader) shaderLoader {
	var mu sync.Mutex
	code := make(map[string][]byte)
	failures := make(map[string]error)

	var jobs []systems.JobTask
	seen := make(map[string]bool)
	for _, p := range cfg.Passes {
		for _, name := range []string{p.Pipeline.VertexShader, p.Pipeline.FragmentShader} {
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			jobs = append(jobs, systems.JobTask{
				Name: "load " + name,
				OnStart: func() error {
					b, err := load(name)
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						failures[name] = err
						return err
					}
					code[name] = b
					return nil
				},
				// pipelineConfig decides whether a missing shader is fatal
				OnFailure: func(err error) {},
			})
		}
	}
	js.RunAll(jobs)

	return func(name string) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		if err, ok := failures[name]; ok {
			return nil, err
		}
		if b, ok := code[name]; ok {
			return b, nil
		}
		return load(name)
	}
}

// pipelineConfig turns the configuration into the orchestrator's. Shaders
// are only required by backends that execute them; a headless run starts
// without any shader on disk.
func pipelineConfig(cfg *config.Config, mb *mailboxes, collectors map[string]pass.Collector, shaders shaderLoader) (orchestrator.Config, error) {
	oc := orchestrator.Config{
		FramesInFlight:   cfg.Renderer.FramesInFlight,
		AllocatorBytes:   cfg.Renderer.AllocatorBytes,
		BindlessCapacity: cfg.Renderer.BindlessCapacity,
		Size:             cfg.Size(),
	}
	requireShaders := cfg.Renderer.Backend != config.BackendHeadless

	for _, p := range cfg.Passes {
		kind, err := pass.ParseKind(p.Kind)
		if err != nil {
			return oc, err
		}
		pc := pass.Config{
			Name:           p.Name,
			Kind:           kind,
			Inputs:         p.Inputs,
			Clear:          gpu.ClearValues{Colour: p.Clear, Depth: 1},
			View:           views.ID(p.View),
			MaxCommands:    p.MaxCommands,
			SortByDistance: p.SortByDistance,
			MaxVertices:    p.MaxVertices,
			MaxIndices:     p.MaxIndices,
		}
		for _, t := range p.Colour {
			tc, err := targetConfig(t)
			if err != nil {
				return oc, fmt.Errorf("pass %s: %w", p.Name, err)
			}
			pc.Colour = append(pc.Colour, tc)
		}
		if p.Depth != nil {
			tc, err := targetConfig(*p.Depth)
			if err != nil {
				return oc, fmt.Errorf("pass %s: %w", p.Name, err)
			}
			pc.Depth = &tc
		}

		var vl vertexLayout
		switch kind {
		case pass.KindGeometry:
			collector, ok := collectors[p.Collector]
			if !ok {
				return oc, fmt.Errorf("pass %s collector %q: %w", p.Name, p.Collector, ErrUnknownCollector)
			}
			pc.Collector = collector
			vl = layout3D()
		case pass.KindCanvas:
			src, layout, ok := mb.source(p.Source)
			if !ok {
				return oc, fmt.Errorf("pass %s reads unknown mailbox %q: %w", p.Name, p.Source, core.ErrInvalidConfig)
			}
			pc.Source = src
			vl = layout
			m, _ := cfg.Mailbox(p.Source)
			if pc.MaxVertices == 0 {
				pc.MaxVertices = m.MaxVertices
			}
			if pc.MaxIndices == 0 {
				pc.MaxIndices = m.MaxIndices
			}
		}

		if p.Pipeline.Name != "" {
			desc := gpu.PipelineDesc{
				Name:                p.Pipeline.Name,
				VertexStride:        vl.stride,
				AttributeOffsets:    vl.offsets,
				AttributeComponents: vl.components,
				Topology:            gpu.TopologyTriangleList,
				Blend:               p.Pipeline.Blend,
				DepthTest:           p.Pipeline.DepthTest,
			}
			for _, s := range []struct {
				name string
				dst  *[]byte
			}{{p.Pipeline.VertexShader, &desc.VertexShader}, {p.Pipeline.FragmentShader, &desc.FragmentShader}} {
				if s.name == "" || shaders == nil {
					continue
				}
				code, err := shaders(s.name)
				if err != nil {
					if requireShaders {
						return oc, fmt.Errorf("pass %s: %w", p.Name, err)
					}
					core.LogDebug("pass %s: shader %s not loaded: %s", p.Name, s.name, err)
					continue
				}
				*s.dst = code
			}
			pc.Pipeline = desc
		}
		oc.Passes = append(oc.Passes, pc)
	}
	return oc, nil
}

func targetConfig(t config.Target) (pass.TargetConfig, error) {
	f, err := gpu.ParseFormat(t.Format)
	if err != nil {
		return pass.TargetConfig{}, err
	}
	return pass.TargetConfig{
		Name:   t.Name,
		Format: f,
		Size:   gpu.Size{Width: t.Width, Height: t.Height},
	}, nil
}
