package pass

import "github.com/spaghettifunk/framecore/engine/renderer/gpu"

// renderFullscreen covers the render area with one oversized triangle
// whose vertices the vertex shader derives from the vertex index.
func (p *Pass) renderFullscreen(enc gpu.Encoder) {
	enc.BindPipeline(p.pipeline)
	p.stats.PipelineBinds++
	enc.Draw(3, 1, 0, 0)
	p.stats.Draws++
}
