package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleTableReusesLowestFreeIndex(t *testing.T) {
	ht := NewHandleTable(4)

	a, err := ht.Acquire("a")
	require.NoError(t, err)
	b, err := ht.Acquire("b")
	require.NoError(t, err)
	c, err := ht.Acquire("c")
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2}, []uint32{a, b, c})

	require.NoError(t, ht.Release(b))
	d, err := ht.Acquire("d")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), d)

	owner, ok := ht.Owner(d)
	assert.True(t, ok)
	assert.Equal(t, "d", owner)
	assert.Equal(t, 3, ht.Live())
}

func TestHandleTableCapacity(t *testing.T) {
	ht := NewHandleTable(1)
	_, err := ht.Acquire(1)
	require.NoError(t, err)

	_, err = ht.Acquire(2)
	assert.True(t, errors.Is(err, ErrCapacityExceeded))
}

func TestHandleTableReleaseInvalid(t *testing.T) {
	ht := NewHandleTable(2)
	assert.True(t, errors.Is(ht.Release(5), ErrInvalidHandle))

	id, err := ht.Acquire(struct{}{})
	require.NoError(t, err)
	require.NoError(t, ht.Release(id))
	assert.True(t, errors.Is(ht.Release(id), ErrInvalidHandle))
}
