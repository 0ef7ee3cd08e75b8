package core

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertfPanicsWithWrappedError(t *testing.T) {
	SetLogOutput(io.Discard)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ErrCapacityExceeded))
		assert.Contains(t, err.Error(), "vertex buffer 7")
	}()
	Assertf(false, ErrCapacityExceeded, "vertex buffer %d", 7)
}

func TestAssertfHolds(t *testing.T) {
	assert.NotPanics(t, func() {
		Assertf(true, ErrCapacityExceeded, "never")
	})
}
