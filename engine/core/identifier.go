package core

import (
	"fmt"
	"sync"
)

// HandleTable hands out dense indices into a fixed-size bindless table.
// Released indices are reused, lowest first.
type HandleTable struct {
	mu     sync.Mutex
	owners []interface{}
	live   int
}

func NewHandleTable(capacity int) *HandleTable {
	return &HandleTable{
		owners: make([]interface{}, 0, capacity),
	}
}

// Acquire returns the first free index and records owner against it.
func (ht *HandleTable) Acquire(owner interface{}) (uint32, error) {
	if owner == nil {
		return 0, fmt.Errorf("handle table: nil owner: %w", ErrInvalidHandle)
	}
	ht.mu.Lock()
	defer ht.mu.Unlock()

	for i := range ht.owners {
		// Existing free spot. Take it.
		if ht.owners[i] == nil {
			ht.owners[i] = owner
			ht.live++
			return uint32(i), nil
		}
	}

	if len(ht.owners) == cap(ht.owners) {
		return 0, fmt.Errorf("handle table full (max=%d): %w", cap(ht.owners), ErrCapacityExceeded)
	}
	ht.owners = append(ht.owners, owner)
	ht.live++
	return uint32(len(ht.owners) - 1), nil
}

func (ht *HandleTable) Release(id uint32) error {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	if int(id) >= len(ht.owners) || ht.owners[id] == nil {
		return fmt.Errorf("handle table: release of id '%d' (max=%d): %w", id, len(ht.owners), ErrInvalidHandle)
	}
	ht.owners[id] = nil
	ht.live--
	return nil
}

func (ht *HandleTable) Owner(id uint32) (interface{}, bool) {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	if int(id) >= len(ht.owners) || ht.owners[id] == nil {
		return nil, false
	}
	return ht.owners[id], true
}

func (ht *HandleTable) Live() int {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	return ht.live
}
