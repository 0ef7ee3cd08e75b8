package core

import (
	"errors"
	"fmt"
)

var (
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrInvalidHandle     = errors.New("invalid handle")
	ErrInvalidTransition = errors.New("invalid target state transition")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrDeviceLost        = errors.New("device lost")
	ErrUnknown           = errors.New("unknown")
)

// ErrAllocatorExhausted is a capacity violation of the per-frame arena.
var ErrAllocatorExhausted = fmt.Errorf("transient allocator exhausted: %w", ErrCapacityExceeded)
