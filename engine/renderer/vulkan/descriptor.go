package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
)

// pushConstantSize covers the three draw indices plus padding.
const pushConstantSize = 16

type VulkanTable struct {
	Pool vk.DescriptorPool
	Set  vk.DescriptorSet
}

// createLayouts builds the one pipeline layout every pipeline shares: set 0
// is an array of storage buffers, the draw indices are push constants.
func (d *Device) createLayouts() error {
	stages := vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
	bindings := []vk.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeStorageBuffer,
		DescriptorCount: uint32(d.opts.TableCapacity),
		StageFlags:      stages,
	}}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var setLayout vk.DescriptorSetLayout
	if err := check(vk.CreateDescriptorSetLayout(d.context.LogicalDevice, &layoutInfo, d.context.Allocator, &setLayout), "vkCreateDescriptorSetLayout"); err != nil {
		return err
	}
	d.setLayout = setLayout

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         1,
		PSetLayouts:            []vk.DescriptorSetLayout{d.setLayout},
		PushConstantRangeCount: 1,
		PPushConstantRanges: []vk.PushConstantRange{{
			StageFlags: stages,
			Offset:     0,
			Size:       pushConstantSize,
		}},
	}
	var layout vk.PipelineLayout
	if err := check(vk.CreatePipelineLayout(d.context.LogicalDevice, &pipelineLayoutCreateInfo, d.context.Allocator, &layout), "vkCreatePipelineLayout"); err != nil {
		return err
	}
	d.layout = layout
	return nil
}

func (d *Device) destroyLayouts() {
	if d.layout != nil {
		vk.DestroyPipelineLayout(d.context.LogicalDevice, d.layout, d.context.Allocator)
		d.layout = nil
	}
	if d.setLayout != nil {
		vk.DestroyDescriptorSetLayout(d.context.LogicalDevice, d.setLayout, d.context.Allocator)
		d.setLayout = nil
	}
}

// newTable allocates a descriptor set from its own pool and points every
// array element at a buffer. Unused elements repeat the first buffer so
// the whole array stays valid.
func (d *Device) newTable(desc gpu.TableDesc) (*VulkanTable, error) {
	if len(desc.Buffers) == 0 || len(desc.Buffers) > d.opts.TableCapacity {
		return nil, fmt.Errorf("table %s with %d buffers, capacity %d", desc.Name, len(desc.Buffers), d.opts.TableCapacity)
	}
	infos := make([]vk.DescriptorBufferInfo, d.opts.TableCapacity)
	for i := range infos {
		h := desc.Buffers[0]
		if i < len(desc.Buffers) {
			h = desc.Buffers[i]
		}
		b, ok := d.buffers[h]
		if !ok {
			return nil, fmt.Errorf("table %s references buffer %d: %w", desc.Name, h, ErrUnknownResource)
		}
		infos[i] = vk.DescriptorBufferInfo{Buffer: b.Handle, Offset: 0, Range: vk.DeviceSize(vk.WholeSize)}
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{{
			Type:            vk.DescriptorTypeStorageBuffer,
			DescriptorCount: uint32(d.opts.TableCapacity),
		}},
	}
	t := &VulkanTable{}
	var pool vk.DescriptorPool
	if err := check(vk.CreateDescriptorPool(d.context.LogicalDevice, &poolInfo, d.context.Allocator, &pool), "vkCreateDescriptorPool"); err != nil {
		return nil, err
	}
	t.Pool = pool

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     t.Pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{d.setLayout},
	}
	var set vk.DescriptorSet
	if err := check(vk.AllocateDescriptorSets(d.context.LogicalDevice, &allocInfo, &set), "vkAllocateDescriptorSets"); err != nil {
		t.destroy(d.context)
		return nil, err
	}
	t.Set = set

	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          t.Set,
		DstBinding:      0,
		DescriptorCount: uint32(len(infos)),
		DescriptorType:  vk.DescriptorTypeStorageBuffer,
		PBufferInfo:     infos,
	}
	vk.UpdateDescriptorSets(d.context.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
	return t, nil
}

func (t *VulkanTable) destroy(context *VulkanContext) {
	if t.Pool != nil {
		vk.DestroyDescriptorPool(context.LogicalDevice, t.Pool, context.Allocator)
		t.Pool = nil
	}
	t.Set = nil
}
