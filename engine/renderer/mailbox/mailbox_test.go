package mailbox

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	core.SetLogOutput(io.Discard)
}

type vertex struct {
	Frame uint64
	Index uint32
}

func newMailbox(t *testing.T, slots int) *Mailbox[vertex] {
	t.Helper()
	m, err := New[vertex](Config{Name: "test", Slots: slots, MaxVertices: 64, MaxIndices: 96, MaxDrawCalls: 4})
	require.NoError(t, err)
	return m
}

func publish(m *Mailbox[vertex], frame uint64, n int) {
	m.BeginFrame()
	vs := make([]vertex, n)
	for i := range vs {
		vs[i] = vertex{Frame: frame, Index: uint32(i)}
	}
	base := m.AddVertices(vs...)
	first := m.AddIndices(0, 1, 2)
	m.AddDrawCall(DrawCall{FirstIndex: first, IndexCount: 3, BaseVertex: int32(base)})
	m.EndFrame()
}

func TestNothingPublishedMeansNoData(t *testing.T) {
	m := newMailbox(t, 3)
	_, ok := m.TryAcquireLatest()
	assert.False(t, ok)
	assert.Equal(t, uint64(1), m.Stats().Empty)
}

func TestConsumerSeesLatestOfManyPublishes(t *testing.T) {
	for _, slots := range []int{3, 4, 6} {
		m := newMailbox(t, slots)
		const publishes = 10
		for f := uint64(1); f <= publishes; f++ {
			publish(m, f, int(f))
		}

		v, ok := m.TryAcquireLatest()
		require.True(t, ok)
		assert.False(t, v.Stale)
		assert.Equal(t, uint64(publishes), v.Sequence())
		require.Len(t, v.Vertices(), publishes)
		for _, vx := range v.Vertices() {
			assert.Equal(t, uint64(publishes), vx.Frame)
		}
		assert.Equal(t, []uint32{0, 1, 2}, v.Indices())
		m.Release(v)

		st := m.Stats()
		assert.Equal(t, uint64(publishes), st.Published)
		assert.Equal(t, uint64(publishes-1), st.Dropped)
		assert.Equal(t, uint64(1), st.Acquired)
	}
}

func TestStaleSnapshotIsReturnedAgain(t *testing.T) {
	m := newMailbox(t, 3)
	publish(m, 1, 2)

	v, ok := m.TryAcquireLatest()
	require.True(t, ok)
	m.Release(v)

	again, ok := m.TryAcquireLatest()
	require.True(t, ok)
	assert.True(t, again.Stale)
	assert.Equal(t, uint64(1), again.Sequence())
	m.Release(again)

	publish(m, 2, 2)
	fresh, ok := m.TryAcquireLatest()
	require.True(t, ok)
	assert.False(t, fresh.Stale)
	assert.Equal(t, uint64(2), fresh.Sequence())
	m.Release(fresh)
	assert.Equal(t, uint64(0), m.Stats().Dropped)
}

func TestProducerNeverTouchesHeldSnapshot(t *testing.T) {
	m := newMailbox(t, 3)
	publish(m, 1, 4)

	held, ok := m.TryAcquireLatest()
	require.True(t, ok)

	// the producer laps the ring many times while the consumer holds on
	for f := uint64(2); f < 50; f++ {
		publish(m, f, 8)
	}
	require.Len(t, held.Vertices(), 4)
	for _, vx := range held.Vertices() {
		assert.Equal(t, uint64(1), vx.Frame)
	}
	m.Release(held)

	latest, ok := m.TryAcquireLatest()
	require.True(t, ok)
	assert.Equal(t, uint64(49), latest.Sequence())
	m.Release(latest)
}

func TestNeverConsumingConsumerDoesNotBlockProducer(t *testing.T) {
	m := newMailbox(t, 3)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for f := uint64(1); f <= 10000; f++ {
			publish(m, f, 1)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer blocked")
	}
	assert.Equal(t, uint64(10000), m.Stats().Published)
	assert.Equal(t, uint64(9999), m.Stats().Dropped)
}

func TestConcurrentHandoffIsTearFree(t *testing.T) {
	m := newMailbox(t, 3)
	const frames = 20000

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for f := uint64(1); f <= frames; f++ {
			publish(m, f, 1+int(f%60))
		}
	}()

	torn := 0
	last := uint64(0)
	go func() {
		defer wg.Done()
		for last < frames {
			v, ok := m.TryAcquireLatest()
			if !ok {
				continue
			}
			seq := v.Sequence()
			if seq < last || len(v.Vertices()) != 1+int(seq%60) {
				torn++
			}
			for _, vx := range v.Vertices() {
				if vx.Frame != seq {
					torn++
					break
				}
			}
			last = seq
			m.Release(v)
		}
	}()
	wg.Wait()

	assert.Zero(t, torn)
	st := m.Stats()
	assert.Equal(t, uint64(frames), st.Published)
	assert.LessOrEqual(t, st.Acquired+st.Dropped, uint64(frames))
}

func TestContractViolationsAreFatal(t *testing.T) {
	m := newMailbox(t, 3)
	assert.True(t, errors.Is(catch(func() { m.AddVertices(vertex{}) }), ErrNotInFrame))

	m.BeginFrame()
	big := make([]vertex, 65)
	assert.True(t, errors.Is(catch(func() { m.AddVertices(big...) }), core.ErrCapacityExceeded))
	m.EndFrame()

	v, ok := m.TryAcquireLatest()
	require.True(t, ok)
	assert.True(t, errors.Is(catch(func() { m.TryAcquireLatest() }), ErrAlreadyHeld))
	m.Release(v)
	assert.True(t, errors.Is(catch(func() { m.Release(v) }), ErrNotHeld))
}

func TestNewRejectsTooFewSlots(t *testing.T) {
	_, err := New[vertex](Config{Slots: 2, MaxVertices: 1, MaxIndices: 1, MaxDrawCalls: 1})
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func catch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	fn()
	return nil
}
