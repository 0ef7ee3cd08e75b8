package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTargetStateTransitions(t *testing.T) {
	cases := []struct {
		from, to TargetState
		legal    bool
	}{
		{TargetUninitialized, TargetRenderTarget, true},
		{TargetUninitialized, TargetShaderResource, false},
		{TargetRenderTarget, TargetShaderResource, true},
		{TargetShaderResource, TargetRenderTarget, true},
		{TargetShaderResource, TargetDestroyed, true},
		{TargetRenderTarget, TargetDestroyed, true},
		{TargetDestroyed, TargetRenderTarget, false},
		{TargetRenderTarget, TargetUninitialized, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.legal, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("rgba16f")
	assert.NoError(t, err)
	assert.Equal(t, FormatRGBA16F, f)
	assert.True(t, FormatD32.IsDepth())

	_, err = ParseFormat("bgra")
	assert.Error(t, err)
}
