package gpu

// Device is the slice of a graphics API the frame core needs. A Device is
// used from the render goroutine, except for resource creation which also
// happens during initialization and resize.
type Device interface {
	Name() string
	FramesInFlight() int

	// CreateStagingBuffer returns a host-visible buffer and its persistently
	// mapped memory.
	CreateStagingBuffer(desc BufferDesc) (BufferHandle, []byte, error)
	CreateDeviceBuffer(desc BufferDesc) (BufferHandle, error)
	DestroyBuffer(h BufferHandle)

	CreateTarget(desc TargetDesc) (TargetHandle, error)
	DestroyTarget(h TargetHandle)

	CreatePipeline(desc PipelineDesc) (PipelineHandle, error)
	DestroyPipeline(h PipelineHandle)

	CreateTable(desc TableDesc) (TableHandle, error)
	DestroyTable(h TableHandle)

	CreateSemaphore(name string) (SemaphoreHandle, error)
	DestroySemaphore(h SemaphoreHandle)

	// BeginCommands returns a fresh encoder for one pass of one frame slot.
	BeginCommands(slot int, label string) (Encoder, error)
	Submit(sub Submission) error

	// WaitFrame blocks until the last submission carrying the fence of slot
	// has retired.
	WaitFrame(slot int) error
	WaitIdle() error
	Destroy()
}

// Encoder records commands for one submission.
type Encoder interface {
	CopyBuffer(src, dst BufferHandle, srcOffset, dstOffset, size uint64)
	Barrier(target TargetHandle, from, to TargetState)

	BeginRendering(att Attachments)
	EndRendering()

	BindPipeline(p PipelineHandle)
	BindVertexBuffer(b BufferHandle, offset uint64, stride uint32)
	BindIndexBuffer(b BufferHandle, offset uint64)
	BindTable(t TableHandle)
	// SetScissor limits rasterization to a rectangle of the render area.
	SetScissor(x, y int32, width, height uint32)
	// SetDrawIndices pushes the bindless indices read by the next draw.
	SetDrawIndices(material, texture, entity uint32)

	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
}
