package containers

import "fmt"

// FixedVec is an append-only vector over caller-provided storage. The backing
// slice is never reallocated, so its memory may come from an arena.
type FixedVec[T any] struct {
	items []T
	count int
}

func NewFixedVec[T any](storage []T) FixedVec[T] {
	return FixedVec[T]{items: storage[:cap(storage)]}
}

// Push returns false when the vector is full.
func (v *FixedVec[T]) Push(item T) bool {
	if v.count == len(v.items) {
		return false
	}
	v.items[v.count] = item
	v.count++
	return true
}

// PushSlice copies items in whole or not at all.
func (v *FixedVec[T]) PushSlice(items []T) bool {
	if v.count+len(items) > len(v.items) {
		return false
	}
	copy(v.items[v.count:], items)
	v.count += len(items)
	return true
}

func (v *FixedVec[T]) At(i int) *T {
	if i < 0 || i >= v.count {
		panic(fmt.Sprintf("fixed vec index %d out of range [0,%d)", i, v.count))
	}
	return &v.items[i]
}

func (v *FixedVec[T]) Items() []T {
	return v.items[:v.count]
}

func (v *FixedVec[T]) Len() int {
	return v.count
}

func (v *FixedVec[T]) Cap() int {
	return len(v.items)
}

func (v *FixedVec[T]) Clear() {
	v.count = 0
}
