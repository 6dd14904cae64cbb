package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/texel/engine/gpu"
)

// VulkanPipeline holds a graphics pipeline, its layout and the descriptor
// set layout of its fragment samplers.
type VulkanPipeline struct {
	resource
	Handle              vk.Pipeline
	PipelineLayout      vk.PipelineLayout
	DescriptorSetLayout vk.DescriptorSetLayout
	// format of the single color target
	ColorFormat  vk.Format
	SamplerCount uint32
}

func NewGraphicsPipeline(context *VulkanContext, locks *VulkanLockPool, renderpass *VulkanRenderpass, info *gpu.GraphicsPipelineCreateInfo) (*VulkanPipeline, error) {
	vertexShader, ok := info.VertexShader.(*VulkanShader)
	if !ok || vertexShader.Handle == vk.NullShaderModule || vertexShader.stage != gpu.ShaderStageVertex {
		return nil, fmt.Errorf("pipeline needs a vertex shader")
	}
	fragmentShader, ok := info.FragmentShader.(*VulkanShader)
	if !ok || fragmentShader.Handle == vk.NullShaderModule || fragmentShader.stage != gpu.ShaderStageFragment {
		return nil, fmt.Errorf("pipeline needs a fragment shader")
	}
	if len(info.ColorTargetDescriptions) != 1 {
		return nil, fmt.Errorf("pipeline needs exactly one color target, got %d", len(info.ColorTargetDescriptions))
	}
	colorFormat, ok := toVulkanFormat(info.ColorTargetDescriptions[0].Format)
	if !ok {
		return nil, fmt.Errorf("unsupported color target format %s", info.ColorTargetDescriptions[0].Format)
	}

	outPipeline := &VulkanPipeline{
		resource:     newResource(),
		ColorFormat:  colorFormat,
		SamplerCount: fragmentShader.Info.NumSamplers,
	}

	// Viewport and scissor are dynamic, set when the render pass begins.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	viewportState.Deref()

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             toVulkanPolygonMode(info.FillMode),
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(vk.CullModeNone),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}
	rasterizerCreateInfo.Deref()

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}
	multisamplingCreateInfo.Deref()

	// No depth attachment.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	depthStencil.Deref()

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	colorBlendAttachmentState.Deref()

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}
	colorBlendStateCreateInfo.Deref()

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}
	dynamicStateCreateInfo.Deref()

	// Vertex input
	bindings := make([]vk.VertexInputBindingDescription, 0, len(info.VertexInputState.VertexBufferDescriptions))
	for _, desc := range info.VertexInputState.VertexBufferDescriptions {
		rate := vk.VertexInputRateVertex
		if desc.InputRate == gpu.VertexInputRateInstance {
			rate = vk.VertexInputRateInstance
		}
		bindings = append(bindings, vk.VertexInputBindingDescription{
			Binding:   desc.Slot,
			Stride:    desc.Pitch,
			InputRate: rate,
		})
	}
	attributes := make([]vk.VertexInputAttributeDescription, 0, len(info.VertexInputState.VertexAttributes))
	for _, attr := range info.VertexInputState.VertexAttributes {
		format, ok := toVulkanVertexFormat(attr.Format)
		if !ok {
			return nil, fmt.Errorf("vertex attribute %d has an invalid format", attr.Location)
		}
		attributes = append(attributes, vk.VertexInputAttributeDescription{
			Location: attr.Location,
			Binding:  attr.BufferSlot,
			Format:   format,
			Offset:   attr.Offset,
		})
	}

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}
	vertexInputInfo.Deref()

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               toVulkanTopology(info.PrimitiveType),
		PrimitiveRestartEnable: vk.False,
	}
	inputAssembly.Deref()

	// Pipeline layout
	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo,
	}
	if outPipeline.SamplerCount > 0 {
		layout, err := DescriptorSetLayoutCreate(context, outPipeline.SamplerCount)
		if err != nil {
			return nil, err
		}
		outPipeline.DescriptorSetLayout = layout
		pipelineLayoutCreateInfo.SetLayoutCount = 1
		pipelineLayoutCreateInfo.PSetLayouts = []vk.DescriptorSetLayout{layout}
	}
	pipelineLayoutCreateInfo.Deref()

	if err := locks.SafeCall(PipelineManagement, func() error {
		var pPipelineLayout vk.PipelineLayout
		result := vk.CreatePipelineLayout(context.Device.LogicalDevice, &pipelineLayoutCreateInfo, context.Allocator, &pPipelineLayout)
		if err := resultError("vkCreatePipelineLayout", result); err != nil {
			return err
		}
		outPipeline.PipelineLayout = pPipelineLayout
		return nil
	}); err != nil {
		outPipeline.Destroy(context)
		return nil, err
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		vertexShader.stageCreateInfo(),
		fragmentShader.stageCreateInfo(),
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
		Layout:              outPipeline.PipelineLayout,
		RenderPass:          renderpass.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	pipelineCreateInfo.Deref()

	pPipelines := make([]vk.Pipeline, 1)
	if err := locks.SafeCall(PipelineManagement, func() error {
		result := vk.CreateGraphicsPipelines(
			context.Device.LogicalDevice,
			vk.NullPipelineCache,
			1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
			context.Allocator,
			pPipelines)
		return resultError("vkCreateGraphicsPipelines", result)
	}); err != nil {
		outPipeline.Destroy(context)
		return nil, err
	}
	outPipeline.Handle = pPipelines[0]
	return outPipeline, nil
}

func (vp *VulkanPipeline) Destroy(context *VulkanContext) {
	if vp.Handle != vk.NullPipeline {
		vk.DestroyPipeline(context.Device.LogicalDevice, vp.Handle, context.Allocator)
		vp.Handle = vk.NullPipeline
	}
	if vp.PipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(context.Device.LogicalDevice, vp.PipelineLayout, context.Allocator)
		vp.PipelineLayout = vk.NullPipelineLayout
	}
	if vp.DescriptorSetLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, vp.DescriptorSetLayout, context.Allocator)
		vp.DescriptorSetLayout = vk.NullDescriptorSetLayout
	}
}
