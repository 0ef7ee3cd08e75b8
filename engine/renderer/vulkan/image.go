package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
)

// VulkanImage is a render target: an optimally tiled image in device local
// memory with a view over its single mip.
type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Desc   gpu.TargetDesc
	Format vk.Format
	Layout vk.ImageLayout
}

func (img *VulkanImage) depth() bool {
	return img.Desc.Format.IsDepth()
}

func (img *VulkanImage) aspect() vk.ImageAspectFlags {
	if img.depth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func newImage(context *VulkanContext, desc gpu.TargetDesc) (*VulkanImage, error) {
	img := &VulkanImage{Desc: desc, Format: vkFormat(desc.Format), Layout: vk.ImageLayoutUndefined}

	usage := vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageTransferSrcBit)
	if img.depth() {
		usage |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	} else {
		usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    img.Format,
		Extent: vk.Extent3D{
			Width:  desc.Size.Width,
			Height: desc.Size.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var handle vk.Image
	if err := check(vk.CreateImage(context.LogicalDevice, &imageCreateInfo, context.Allocator, &handle), "vkCreateImage"); err != nil {
		return nil, err
	}
	img.Handle = handle

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.LogicalDevice, img.Handle, &requirements)
	requirements.Deref()
	memory, err := allocate(context, requirements, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		img.destroy(context)
		return nil, err
	}
	img.Memory = memory
	if err := check(vk.BindImageMemory(context.LogicalDevice, img.Handle, img.Memory, 0), "vkBindImageMemory"); err != nil {
		img.destroy(context)
		return nil, err
	}

	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle,
		ViewType: vk.ImageViewType2d,
		Format:   img.Format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: img.aspect(),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if err := check(vk.CreateImageView(context.LogicalDevice, &viewCreateInfo, context.Allocator, &view), "vkCreateImageView"); err != nil {
		img.destroy(context)
		return nil, err
	}
	img.View = view
	return img, nil
}

func (img *VulkanImage) destroy(context *VulkanContext) {
	if img.View != nil {
		vk.DestroyImageView(context.LogicalDevice, img.View, context.Allocator)
		img.View = nil
	}
	if img.Handle != nil {
		vk.DestroyImage(context.LogicalDevice, img.Handle, context.Allocator)
		img.Handle = nil
	}
	if img.Memory != nil {
		vk.FreeMemory(context.LogicalDevice, img.Memory, context.Allocator)
		img.Memory = nil
	}
}

// barrier records a layout transition between two usage states.
func (img *VulkanImage) barrier(cmd vk.CommandBuffer, from, to gpu.TargetState) {
	srcStage, srcAccess := accessFor(from, img.depth())
	dstStage, dstAccess := accessFor(to, img.depth())
	newLayout := layoutFor(to, img.depth())
	b := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           layoutFor(from, img.depth()),
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: img.aspect(),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{b})
	img.Layout = newLayout
}

func allocate(context *VulkanContext, requirements vk.MemoryRequirements, flags vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	index := context.FindMemoryIndex(requirements.MemoryTypeBits, flags)
	if index < 0 {
		return nil, errNoMemoryType
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}
	var memory vk.DeviceMemory
	if err := check(vk.AllocateMemory(context.LogicalDevice, &allocInfo, context.Allocator, &memory), "vkAllocateMemory"); err != nil {
		return nil, err
	}
	return memory, nil
}
