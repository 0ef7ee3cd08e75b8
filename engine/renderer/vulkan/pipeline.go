package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
)

var ErrMissingShader = errors.New("pipeline needs a vertex and a fragment shader")

/**
 * @brief Holds a Vulkan pipeline and the description it was built from.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	Desc   gpu.PipelineDesc
}

// shaderModuleInfo views code as SPIR-V words. CodeSize is in bytes.
func shaderModuleInfo(code []byte) (vk.ShaderModuleCreateInfo, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return vk.ShaderModuleCreateInfo{}, fmt.Errorf("SPIR-V module of %d bytes", len(code))
	}
	return vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    unsafe.Slice((*uint32)(unsafe.Pointer(unsafe.SliceData(code))), len(code)/4),
	}, nil
}

func newShaderModule(context *VulkanContext, code []byte) (vk.ShaderModule, error) {
	createInfo, err := shaderModuleInfo(code)
	if err != nil {
		return nil, err
	}
	var module vk.ShaderModule
	if err := check(vk.CreateShaderModule(context.LogicalDevice, &createInfo, context.Allocator, &module), "vkCreateShaderModule"); err != nil {
		return nil, err
	}
	return module, nil
}

func (d *Device) newPipeline(desc gpu.PipelineDesc) (*VulkanPipeline, error) {
	if len(desc.VertexShader) == 0 || len(desc.FragmentShader) == 0 {
		return nil, fmt.Errorf("pipeline %s: %w", desc.Name, ErrMissingShader)
	}
	if len(desc.AttributeOffsets) != len(desc.AttributeComponents) {
		return nil, fmt.Errorf("pipeline %s: %d attribute offsets for %d attributes", desc.Name, len(desc.AttributeOffsets), len(desc.AttributeComponents))
	}
	rp, err := d.renderpass(keyFor(desc.ColourFormats, desc.DepthFormat))
	if err != nil {
		return nil, err
	}

	vertexModule, err := newShaderModule(d.context, desc.VertexShader)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s vertex shader: %w", desc.Name, err)
	}
	defer vk.DestroyShaderModule(d.context.LogicalDevice, vertexModule, d.context.Allocator)
	fragmentModule, err := newShaderModule(d.context, desc.FragmentShader)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s fragment shader: %w", desc.Name, err)
	}
	defer vk.DestroyShaderModule(d.context.LogicalDevice, fragmentModule, d.context.Allocator)

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vertexModule,
			PName:  VulkanSafeString("main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fragmentModule,
			PName:  VulkanSafeString("main"),
		},
	}

	// Viewport and scissor are dynamic, the counts still have to be set.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		LineWidth:   1.0,
		FrontFace:   vk.FrontFaceCounterClockwise,
		CullMode:    vk.CullModeFlags(vk.CullModeNone),
	}
	if desc.DepthTest && desc.Topology == gpu.TopologyTriangleList {
		rasterizerCreateInfo.CullMode = vk.CullModeFlags(vk.CullModeBackBit)
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType: vk.StructureTypePipelineDepthStencilStateCreateInfo,
	}
	if desc.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthWriteEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLess
	}

	writeMask := vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit)
	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, len(desc.ColourFormats))
	for i := range blendAttachments {
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			ColorWriteMask: writeMask,
		}
		if desc.Blend {
			blendAttachments[i].BlendEnable = vk.True
			blendAttachments[i].SrcColorBlendFactor = vk.BlendFactorSrcAlpha
			blendAttachments[i].DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			blendAttachments[i].ColorBlendOp = vk.BlendOpAdd
			blendAttachments[i].SrcAlphaBlendFactor = vk.BlendFactorOne
			blendAttachments[i].DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			blendAttachments[i].AlphaBlendOp = vk.BlendOpAdd
		}
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// A pipeline without a vertex stride pulls its vertices from the vertex
	// index, as the fullscreen triangle does.
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if desc.VertexStride > 0 {
		attributes := make([]vk.VertexInputAttributeDescription, len(desc.AttributeOffsets))
		for i := range attributes {
			format, err := attributeFormat(desc.AttributeComponents[i])
			if err != nil {
				return nil, fmt.Errorf("pipeline %s: %w", desc.Name, err)
			}
			attributes[i] = vk.VertexInputAttributeDescription{
				Location: uint32(i),
				Binding:  0,
				Format:   format,
				Offset:   desc.AttributeOffsets[i],
			}
		}
		vertexInputInfo.VertexBindingDescriptionCount = 1
		vertexInputInfo.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    desc.VertexStride,
			InputRate: vk.VertexInputRateVertex,
		}}
		vertexInputInfo.VertexAttributeDescriptionCount = uint32(len(attributes))
		vertexInputInfo.PVertexAttributeDescriptions = attributes
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}
	if desc.Topology == gpu.TopologyLineList {
		inputAssembly.Topology = vk.PrimitiveTopologyLineList
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              d.layout,
		RenderPass:          rp,
		Subpass:             0,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := check(vk.CreateGraphicsPipelines(
		d.context.LogicalDevice,
		vk.NullPipelineCache,
		1,
		[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
		d.context.Allocator,
		pipelines), "vkCreateGraphicsPipelines"); err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", desc.Name, err)
	}
	core.LogDebug("Graphics pipeline %s created.", desc.Name)
	return &VulkanPipeline{Handle: pipelines[0], Desc: desc}, nil
}

func (p *VulkanPipeline) destroy(context *VulkanContext) {
	if p.Handle != nil {
		vk.DestroyPipeline(context.LogicalDevice, p.Handle, context.Allocator)
		p.Handle = nil
	}
}
