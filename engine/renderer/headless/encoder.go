package headless

import (
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
)

type Op int

const (
	OpCopyBuffer Op = iota
	OpBarrier
	OpBeginRendering
	OpEndRendering
	OpBindPipeline
	OpBindVertexBuffer
	OpBindIndexBuffer
	OpBindTable
	OpSetScissor
	OpSetDrawIndices
	OpDrawIndexed
	OpDraw
)

func (o Op) String() string {
	return [...]string{
		"copy-buffer", "barrier", "begin-rendering", "end-rendering",
		"bind-pipeline", "bind-vertex-buffer", "bind-index-buffer", "bind-table",
		"set-scissor", "set-draw-indices", "draw-indexed", "draw",
	}[o]
}

// Command is one recorded encoder call. Only the fields relevant to Op are set.
type Command struct {
	Op Op

	Src, Dst             gpu.BufferHandle
	SrcOffset, DstOffset uint64
	Size                 uint64

	Target   gpu.TargetHandle
	From, To gpu.TargetState

	Attachments gpu.Attachments

	Pipeline gpu.PipelineHandle
	Buffer   gpu.BufferHandle
	Offset   uint64
	Stride   uint32
	Table    gpu.TableHandle

	ScissorX, ScissorY          int32
	ScissorWidth, ScissorHeight uint32

	Material, Texture, Entity uint32

	Count, Instances, First, FirstInstance uint32
	VertexOffset                           int32
}

type Encoder struct {
	slot     int
	label    string
	commands []Command
}

func (e *Encoder) Label() string {
	return e.label
}

func (e *Encoder) Commands() []Command {
	return e.commands
}

func (e *Encoder) CopyBuffer(src, dst gpu.BufferHandle, srcOffset, dstOffset, size uint64) {
	e.commands = append(e.commands, Command{Op: OpCopyBuffer, Src: src, Dst: dst, SrcOffset: srcOffset, DstOffset: dstOffset, Size: size})
}

func (e *Encoder) Barrier(target gpu.TargetHandle, from, to gpu.TargetState) {
	e.commands = append(e.commands, Command{Op: OpBarrier, Target: target, From: from, To: to})
}

func (e *Encoder) BeginRendering(att gpu.Attachments) {
	att.Colour = append([]gpu.TargetHandle(nil), att.Colour...)
	e.commands = append(e.commands, Command{Op: OpBeginRendering, Attachments: att})
}

func (e *Encoder) EndRendering() {
	e.commands = append(e.commands, Command{Op: OpEndRendering})
}

func (e *Encoder) BindPipeline(p gpu.PipelineHandle) {
	e.commands = append(e.commands, Command{Op: OpBindPipeline, Pipeline: p})
}

func (e *Encoder) BindVertexBuffer(b gpu.BufferHandle, offset uint64, stride uint32) {
	e.commands = append(e.commands, Command{Op: OpBindVertexBuffer, Buffer: b, Offset: offset, Stride: stride})
}

func (e *Encoder) BindIndexBuffer(b gpu.BufferHandle, offset uint64) {
	e.commands = append(e.commands, Command{Op: OpBindIndexBuffer, Buffer: b, Offset: offset})
}

func (e *Encoder) BindTable(t gpu.TableHandle) {
	e.commands = append(e.commands, Command{Op: OpBindTable, Table: t})
}

func (e *Encoder) SetScissor(x, y int32, width, height uint32) {
	e.commands = append(e.commands, Command{Op: OpSetScissor, ScissorX: x, ScissorY: y, ScissorWidth: width, ScissorHeight: height})
}

func (e *Encoder) SetDrawIndices(material, texture, entity uint32) {
	e.commands = append(e.commands, Command{Op: OpSetDrawIndices, Material: material, Texture: texture, Entity: entity})
}

func (e *Encoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	e.commands = append(e.commands, Command{Op: OpDrawIndexed, Count: indexCount, Instances: instanceCount, First: firstIndex, VertexOffset: vertexOffset, FirstInstance: firstInstance})
}

func (e *Encoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	e.commands = append(e.commands, Command{Op: OpDraw, Count: vertexCount, Instances: instanceCount, First: firstVertex, FirstInstance: firstInstance})
}
