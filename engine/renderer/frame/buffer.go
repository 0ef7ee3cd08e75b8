package frame

import (
	"unsafe"

	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
)

// Buffer is one frame slot's copy of a GPU-visible buffer: a persistently
// mapped staging region written by the CPU during prepare, and a device
// buffer filled only by copy commands on the render goroutine.
type Buffer struct {
	name     string
	usage    gpu.BufferUsage
	staging  gpu.BufferHandle
	device   gpu.BufferHandle
	mapped   []byte
	bindless uint32

	cursor     uint64
	dirty      bool
	dirtyStart uint64
	dirtyEnd   uint64
}

func (b *Buffer) Name() string {
	return b.name
}

func (b *Buffer) Device() gpu.BufferHandle {
	return b.device
}

func (b *Buffer) Staging() gpu.BufferHandle {
	return b.staging
}

// BindlessIndex is the buffer's slot in the bindless table.
func (b *Buffer) BindlessIndex() uint32 {
	return b.bindless
}

func (b *Buffer) Capacity() uint64 {
	return uint64(len(b.mapped))
}

// Used is the append cursor in bytes.
func (b *Buffer) Used() uint64 {
	return b.cursor
}

// DirtyRange returns the byte range pending upload.
func (b *Buffer) DirtyRange() (start, end uint64, dirty bool) {
	return b.dirtyStart, b.dirtyEnd, b.dirty
}

// Write copies data into the staging region at offset and marks the range
// dirty. Writing past the end of the buffer is fatal.
func (b *Buffer) Write(offset uint64, data []byte) {
	end := offset + uint64(len(data))
	core.Assertf(end <= b.Capacity(), core.ErrCapacityExceeded,
		"buffer %s: write [%d,%d) past capacity %d", b.name, offset, end, b.Capacity())
	if len(data) == 0 {
		return
	}
	copy(b.mapped[offset:end], data)
	if !b.dirty {
		b.dirty = true
		b.dirtyStart, b.dirtyEnd = offset, end
		return
	}
	b.dirtyStart = min(b.dirtyStart, offset)
	b.dirtyEnd = max(b.dirtyEnd, end)
}

// Append writes at the cursor and returns the byte offset written to.
func (b *Buffer) Append(data []byte) uint64 {
	offset := b.cursor
	b.Write(offset, data)
	b.cursor += uint64(len(data))
	return offset
}

// Align moves the cursor up to a multiple of align.
func (b *Buffer) Align(align uint64) {
	if align > 1 {
		b.cursor = (b.cursor + align - 1) / align * align
	}
}

// IssueCopy records a staging to device copy of the dirty range, if any,
// and clears the dirty state. It reports whether a copy was recorded.
func (b *Buffer) IssueCopy(enc gpu.Encoder) bool {
	if !b.dirty {
		return false
	}
	enc.CopyBuffer(b.staging, b.device, b.dirtyStart, b.dirtyStart, b.dirtyEnd-b.dirtyStart)
	b.dirty = false
	b.dirtyStart, b.dirtyEnd = 0, 0
	return true
}

// Reset rewinds the append cursor. Pending dirty ranges survive.
func (b *Buffer) Reset() {
	b.cursor = 0
}

func asBytes[T any](values []T) []byte {
	if len(values) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(values))), len(values)*int(unsafe.Sizeof(zero)))
}

// WriteValues writes a slice of plain values at a byte offset.
func WriteValues[T any](b *Buffer, offset uint64, values []T) {
	b.Write(offset, asBytes(values))
}

// AppendValues aligns the cursor to the element size, appends values and
// returns the index of the first element.
func AppendValues[T any](b *Buffer, values []T) uint32 {
	var zero T
	size := uint64(unsafe.Sizeof(zero))
	b.Align(size)
	offset := b.Append(asBytes(values))
	if size == 0 {
		return 0
	}
	return uint32(offset / size)
}
