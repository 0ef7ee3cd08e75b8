package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
)

type framebufferKey struct {
	colour [maxColourAttachments]gpu.TargetHandle
	depth  gpu.TargetHandle
	size   gpu.Size
}

type VulkanFramebuffer struct {
	Handle     vk.Framebuffer
	Renderpass vk.RenderPass
}

func framebufferKeyFor(att gpu.Attachments) framebufferKey {
	k := framebufferKey{depth: att.Depth, size: att.Size}
	copy(k.colour[:], att.Colour)
	return k
}

func (k framebufferKey) uses(h gpu.TargetHandle) bool {
	if k.depth == h {
		return true
	}
	for _, c := range k.colour {
		if c == h {
			return true
		}
	}
	return false
}

// framebuffer returns the cached framebuffer over a set of attachments,
// creating it and its render pass on first use.
func (d *Device) framebuffer(att gpu.Attachments) (*VulkanFramebuffer, []*VulkanImage, error) {
	images := make([]*VulkanImage, 0, len(att.Colour)+1)
	formats := make([]gpu.Format, 0, len(att.Colour))
	views := make([]vk.ImageView, 0, len(att.Colour)+1)
	for _, h := range att.Colour {
		img, err := d.target(h)
		if err != nil {
			return nil, nil, err
		}
		images = append(images, img)
		formats = append(formats, img.Desc.Format)
		views = append(views, img.View)
	}
	depthFormat := gpu.FormatUndefined
	if att.Depth != 0 {
		img, err := d.target(att.Depth)
		if err != nil {
			return nil, nil, err
		}
		images = append(images, img)
		depthFormat = img.Desc.Format
		views = append(views, img.View)
	}

	key := framebufferKeyFor(att)
	if fb, ok := d.framebuffers[key]; ok {
		return fb, images, nil
	}
	rp, err := d.renderpass(keyFor(formats, depthFormat))
	if err != nil {
		return nil, nil, err
	}
	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           att.Size.Width,
		Height:          att.Size.Height,
		Layers:          1,
	}
	var handle vk.Framebuffer
	if err := check(vk.CreateFramebuffer(d.context.LogicalDevice, &framebufferCreateInfo, d.context.Allocator, &handle), "vkCreateFramebuffer"); err != nil {
		return nil, nil, err
	}
	fb := &VulkanFramebuffer{Handle: handle, Renderpass: rp}
	d.framebuffers[key] = fb
	return fb, images, nil
}

// forgetFramebuffers destroys every framebuffer that references a target.
func (d *Device) forgetFramebuffers(h gpu.TargetHandle) {
	for key, fb := range d.framebuffers {
		if key.uses(h) {
			vk.DestroyFramebuffer(d.context.LogicalDevice, fb.Handle, d.context.Allocator)
			delete(d.framebuffers, key)
		}
	}
}
