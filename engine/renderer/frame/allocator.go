package frame

import (
	"unsafe"

	"github.com/spaghettifunk/framecore/engine/core"
)

// Allocator is a bump allocator reset once per frame. Memory carved from it
// is valid until the next Reset of the same allocator.
type Allocator struct {
	buf    []byte
	offset uintptr
	peak   uintptr
}

func NewAllocator(capacity int) *Allocator {
	return &Allocator{buf: make([]byte, capacity)}
}

func (a *Allocator) Reset() {
	a.offset = 0
}

func (a *Allocator) Capacity() int {
	return len(a.buf)
}

func (a *Allocator) Used() int {
	return int(a.offset)
}

func (a *Allocator) Remaining() int {
	return len(a.buf) - int(a.offset)
}

// Peak is the highest Used value observed since creation.
func (a *Allocator) Peak() int {
	return int(a.peak)
}

// carve returns the zeroed byte range for n elements of the given size and
// alignment, or false when the arena cannot hold it.
func (a *Allocator) carve(size, align uintptr, n int) ([]byte, bool) {
	if len(a.buf) == 0 {
		return nil, size*uintptr(n) == 0
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(a.buf)))
	start := (base+a.offset+align-1)&^(align-1) - base
	end := start + size*uintptr(n)
	if end > uintptr(len(a.buf)) {
		return nil, false
	}
	b := a.buf[start:end:end]
	clear(b)
	a.offset = end
	if a.offset > a.peak {
		a.peak = a.offset
	}
	return b, true
}

// Alloc carves a zeroed slice of n elements. T must not contain pointers:
// the arena is scanned by nobody, so the collector would not see them.
// Running out of arena is fatal.
func Alloc[T any](a *Allocator, n int) []T {
	var zero T
	b, ok := a.carve(unsafe.Sizeof(zero), unsafe.Alignof(zero), n)
	core.Assertf(ok, core.ErrAllocatorExhausted,
		"alloc of %d x %d bytes, %d of %d remaining", n, unsafe.Sizeof(zero), a.Remaining(), a.Capacity())
	if n == 0 || len(b) == 0 {
		return []T{}
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
}

// Fits reports whether n elements of T can still be carved.
func Fits[T any](a *Allocator, n int) bool {
	var zero T
	size, align := unsafe.Sizeof(zero), unsafe.Alignof(zero)
	if len(a.buf) == 0 {
		return size*uintptr(n) == 0
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(a.buf)))
	start := (base+a.offset+align-1)&^(align-1) - base
	return start+size*uintptr(n) <= uintptr(len(a.buf))
}
