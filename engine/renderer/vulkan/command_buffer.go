package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
)

// Encoder records one pass into a primary command buffer of a frame slot.
// Recording errors are kept and reported by Submit.
type Encoder struct {
	device *Device
	slot   int
	label  string
	handle vk.CommandBuffer

	copies bool
	inPass bool
	err    error
}

func (e *Encoder) fail(err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%s: %w", e.label, err)
	}
}

func (e *Encoder) CopyBuffer(src, dst gpu.BufferHandle, srcOffset, dstOffset, size uint64) {
	s, err := e.device.buffer(src)
	if err != nil {
		e.fail(err)
		return
	}
	d, err := e.device.buffer(dst)
	if err != nil {
		e.fail(err)
		return
	}
	region := vk.BufferCopy{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(e.handle, s.Handle, d.Handle, 1, []vk.BufferCopy{region})
	e.copies = true
}

func (e *Encoder) Barrier(target gpu.TargetHandle, from, to gpu.TargetState) {
	img, err := e.device.target(target)
	if err != nil {
		e.fail(err)
		return
	}
	img.barrier(e.handle, from, to)
}

// flushCopies makes the copies recorded so far visible to vertex input,
// index fetch and shader reads.
func (e *Encoder) flushCopies() {
	if !e.copies {
		return
	}
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessVertexAttributeReadBit | vk.AccessIndexReadBit | vk.AccessUniformReadBit | vk.AccessShaderReadBit),
	}
	vk.CmdPipelineBarrier(e.handle,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageVertexInputBit|vk.PipelineStageVertexShaderBit|vk.PipelineStageFragmentShaderBit),
		0, 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
	e.copies = false
}

func (e *Encoder) BeginRendering(att gpu.Attachments) {
	e.flushCopies()
	fb, images, err := e.device.framebuffer(att)
	if err != nil {
		e.fail(err)
		return
	}

	clearValues := make([]vk.ClearValue, len(images))
	for i, img := range images {
		if img.depth() {
			clearValues[i].SetDepthStencil(att.Clear.Depth, 0)
		} else {
			clearValues[i].SetColor(att.Clear.Colour[:])
		}
	}
	area := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: att.Size.Width, Height: att.Size.Height},
	}
	beginInfo := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      fb.Renderpass,
		Framebuffer:     fb.Handle,
		RenderArea:      area,
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(e.handle, &beginInfo, vk.SubpassContentsInline)
	e.inPass = true

	viewport := vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(att.Size.Width),
		Height:   float32(att.Size.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	vk.CmdSetViewport(e.handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(e.handle, 0, 1, []vk.Rect2D{area})
}

func (e *Encoder) EndRendering() {
	if !e.inPass {
		return
	}
	vk.CmdEndRenderPass(e.handle)
	e.inPass = false
}

func (e *Encoder) BindPipeline(p gpu.PipelineHandle) {
	pl, err := e.device.pipeline(p)
	if err != nil {
		e.fail(err)
		return
	}
	vk.CmdBindPipeline(e.handle, vk.PipelineBindPointGraphics, pl.Handle)
}

// BindVertexBuffer ignores stride, the bound pipeline carries it.
func (e *Encoder) BindVertexBuffer(b gpu.BufferHandle, offset uint64, stride uint32) {
	buf, err := e.device.buffer(b)
	if err != nil {
		e.fail(err)
		return
	}
	vk.CmdBindVertexBuffers(e.handle, 0, 1, []vk.Buffer{buf.Handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (e *Encoder) BindIndexBuffer(b gpu.BufferHandle, offset uint64) {
	buf, err := e.device.buffer(b)
	if err != nil {
		e.fail(err)
		return
	}
	vk.CmdBindIndexBuffer(e.handle, buf.Handle, vk.DeviceSize(offset), vk.IndexTypeUint32)
}

func (e *Encoder) BindTable(t gpu.TableHandle) {
	table, err := e.device.table(t)
	if err != nil {
		e.fail(err)
		return
	}
	vk.CmdBindDescriptorSets(e.handle, vk.PipelineBindPointGraphics, e.device.layout, 0, 1, []vk.DescriptorSet{table.Set}, 0, nil)
}

func (e *Encoder) SetScissor(x, y int32, width, height uint32) {
	rect := vk.Rect2D{
		Offset: vk.Offset2D{X: x, Y: y},
		Extent: vk.Extent2D{Width: width, Height: height},
	}
	vk.CmdSetScissor(e.handle, 0, 1, []vk.Rect2D{rect})
}

func (e *Encoder) SetDrawIndices(material, texture, entity uint32) {
	indices := [pushConstantSize / 4]uint32{material, texture, entity, 0}
	vk.CmdPushConstants(e.handle, e.device.layout,
		vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit),
		0, pushConstantSize, unsafe.Pointer(&indices[0]))
}

func (e *Encoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(e.handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (e *Encoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(e.handle, vertexCount, instanceCount, firstVertex, firstInstance)
}
