package gpu

// TargetState is the usage state of a render target. Targets only change
// state through explicit barriers.
type TargetState int

const (
	TargetUninitialized TargetState = iota
	TargetRenderTarget
	TargetShaderResource
	TargetDestroyed
)

func (s TargetState) String() string {
	switch s {
	case TargetUninitialized:
		return "uninitialized"
	case TargetRenderTarget:
		return "render-target"
	case TargetShaderResource:
		return "shader-resource"
	case TargetDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// CanTransition reports whether a barrier from s to next is legal.
// Destruction is legal from any live state.
func (s TargetState) CanTransition(next TargetState) bool {
	if s == TargetDestroyed {
		return false
	}
	if next == TargetDestroyed {
		return true
	}
	switch s {
	case TargetUninitialized:
		return next == TargetRenderTarget
	case TargetRenderTarget:
		return next == TargetShaderResource
	case TargetShaderResource:
		return next == TargetRenderTarget
	}
	return false
}
