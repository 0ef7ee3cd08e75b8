package systems

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystemRejectsBadSizes(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestRunAllReportsEveryOutcome(t *testing.T) {
	js, err := NewJobSystem(3, 4)
	require.NoError(t, err)
	defer js.Shutdown()

	errOdd := errors.New("odd")
	var completed, failed, finished atomic.Int32
	var mu sync.Mutex
	var failures []error

	jobs := make([]JobTask, 10)
	for i := range jobs {
		i := i
		jobs[i] = JobTask{
			Name: "job",
			OnStart: func() error {
				if i%2 == 1 {
					return errOdd
				}
				return nil
			},
			OnComplete: func() { completed.Add(1) },
			OnFailure: func(err error) {
				failed.Add(1)
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			},
			OnCompletionCallback: func() { finished.Add(1) },
		}
	}
	js.RunAll(jobs)

	assert.Equal(t, int32(5), completed.Load())
	assert.Equal(t, int32(5), failed.Load())
	assert.Equal(t, int32(10), finished.Load())
	for _, err := range failures {
		assert.ErrorIs(t, err, errOdd)
	}
}

func TestShutdownDrainsQueuedJobs(t *testing.T) {
	js, err := NewJobSystem(1, 8)
	require.NoError(t, err)

	var ran atomic.Int32
	for i := 0; i < 8; i++ {
		js.Submit(JobTask{OnStart: func() error {
			ran.Add(1)
			return nil
		}})
	}
	require.NoError(t, js.Shutdown())
	assert.Equal(t, int32(8), ran.Load())
	require.NoError(t, js.Shutdown())
}
