package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
)

const maxColourAttachments = 4

// renderpassKey identifies render passes that are compatible for pipeline
// creation and framebuffers.
type renderpassKey struct {
	colour [maxColourAttachments]gpu.Format
	count  int
	depth  gpu.Format
}

func keyFor(colour []gpu.Format, depth gpu.Format) renderpassKey {
	k := renderpassKey{count: len(colour), depth: depth}
	copy(k.colour[:], colour)
	return k
}

// newRenderpass creates a single subpass pass that clears every attachment.
// Targets are already in attachment layout when it begins, the barriers of
// the frame core move them in and out.
func newRenderpass(context *VulkanContext, key renderpassKey) (vk.RenderPass, error) {
	attachments := make([]vk.AttachmentDescription, 0, key.count+1)
	colourRefs := make([]vk.AttachmentReference, 0, key.count)
	for i := 0; i < key.count; i++ {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vkFormat(key.colour[i]),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		colourRefs = append(colourRefs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colourRefs)),
		PColorAttachments:    colourRefs,
	}
	if key.depth != gpu.FormatUndefined {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vkFormat(key.depth),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(key.count),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
	var handle vk.RenderPass
	if err := check(vk.CreateRenderPass(context.LogicalDevice, &renderpassCreateInfo, context.Allocator, &handle), "vkCreateRenderPass"); err != nil {
		return nil, err
	}
	return handle, nil
}

// renderpass returns the cached pass for a set of attachment formats.
func (d *Device) renderpass(key renderpassKey) (vk.RenderPass, error) {
	var rp vk.RenderPass
	err := d.locks.SafeCall(RenderpassCache, func() error {
		if cached, ok := d.renderpasses[key]; ok {
			rp = cached
			return nil
		}
		created, err := newRenderpass(d.context, key)
		if err != nil {
			return err
		}
		d.renderpasses[key] = created
		rp = created
		return nil
	})
	return rp, err
}

func (d *Device) destroyRenderpasses() {
	for key, rp := range d.renderpasses {
		vk.DestroyRenderPass(d.context.LogicalDevice, rp, d.context.Allocator)
		delete(d.renderpasses, key)
	}
}
