package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedVecRespectsCapacity(t *testing.T) {
	v := NewFixedVec(make([]uint32, 0, 4))

	assert.True(t, v.Push(1))
	assert.True(t, v.PushSlice([]uint32{2, 3}))
	assert.False(t, v.PushSlice([]uint32{4, 5}))
	assert.Equal(t, 3, v.Len())
	assert.True(t, v.Push(4))
	assert.False(t, v.Push(5))
	assert.Equal(t, []uint32{1, 2, 3, 4}, v.Items())

	*v.At(0) = 9
	assert.Equal(t, uint32(9), v.Items()[0])

	v.Clear()
	assert.Equal(t, 0, v.Len())
	assert.Equal(t, 4, v.Cap())
	assert.Panics(t, func() { v.At(0) })
}
