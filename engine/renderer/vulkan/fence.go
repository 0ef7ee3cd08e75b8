package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framecore/engine/core"
)

// VulkanFence guards one frame slot. Pending is set when a submission
// carrying the fence was queued and cleared once it has been waited on.
type VulkanFence struct {
	Handle  vk.Fence
	Pending bool
}

func NewFence(context *VulkanContext) (*VulkanFence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var handle vk.Fence
	if err := check(vk.CreateFence(context.LogicalDevice, &fenceCreateInfo, context.Allocator, &handle), "vkCreateFence"); err != nil {
		return nil, err
	}
	return &VulkanFence{Handle: handle}, nil
}

func (vf *VulkanFence) Destroy(context *VulkanContext) {
	if vf.Handle != nil {
		vk.DestroyFence(context.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = nil
	}
	vf.Pending = false
}

// Wait blocks until the fence signals, then resets it. A fence with nothing
// pending returns at once.
func (vf *VulkanFence) Wait(context *VulkanContext) error {
	if !vf.Pending {
		return nil
	}
	result := vk.WaitForFences(context.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, math.MaxUint64)
	switch result {
	case vk.Success:
	case vk.ErrorDeviceLost:
		core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
		return fmt.Errorf("waiting on frame fence: %s", VulkanResultString(result))
	default:
		return fmt.Errorf("waiting on frame fence: %s", VulkanResultString(result))
	}
	if err := check(vk.ResetFences(context.LogicalDevice, 1, []vk.Fence{vf.Handle}), "vkResetFences"); err != nil {
		return err
	}
	vf.Pending = false
	return nil
}
