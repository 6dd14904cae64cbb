package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/texel/engine/gpu"
)

const spirvMagic uint32 = 0x07230203

// VulkanShader is a shader module plus the binding counts it declared.
type VulkanShader struct {
	resource
	Handle     vk.ShaderModule
	stage      gpu.ShaderStage
	Entrypoint string
	Info       gpu.ShaderCreateInfo
}

func (s *VulkanShader) Stage() gpu.ShaderStage {
	return s.stage
}

func ShaderModuleCreate(context *VulkanContext, info *gpu.ShaderCreateInfo) (*VulkanShader, error) {
	if info.Format != gpu.ShaderFormatSPIRV {
		return nil, fmt.Errorf("shader format %s is not supported, only SPIRV", info.Format)
	}
	if len(info.Code) < 4 || len(info.Code)%4 != 0 || binary.LittleEndian.Uint32(info.Code) != spirvMagic {
		return nil, fmt.Errorf("shader code is not a SPIR-V module (%d bytes)", len(info.Code))
	}
	if info.NumUniformBuffers > 0 || info.NumStorageBuffers > 0 || info.NumStorageTextures > 0 {
		return nil, fmt.Errorf("uniform and storage resources are not supported")
	}
	if info.NumSamplers > VULKAN_MAX_SAMPLER_SLOTS {
		return nil, fmt.Errorf("%d samplers exceed the maximum of %d", info.NumSamplers, VULKAN_MAX_SAMPLER_SLOTS)
	}
	if info.Stage == gpu.ShaderStageVertex && info.NumSamplers > 0 {
		return nil, fmt.Errorf("vertex stage samplers are not supported")
	}

	createInfo := shaderModuleInfo(info.Code)

	var module vk.ShaderModule
	if err := resultError("vkCreateShaderModule", vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &module)); err != nil {
		return nil, err
	}

	entrypoint := info.Entrypoint
	if entrypoint == "" {
		entrypoint = "main"
	}
	shader := &VulkanShader{
		resource:   newResource(),
		Handle:     module,
		stage:      info.Stage,
		Entrypoint: entrypoint,
		Info:       *info,
	}
	shader.Info.Code = nil
	return shader, nil
}

func (s *VulkanShader) Destroy(context *VulkanContext) {
	if s.Handle != vk.NullShaderModule {
		vk.DestroyShaderModule(context.Device.LogicalDevice, s.Handle, context.Allocator)
		s.Handle = vk.NullShaderModule
	}
}

func (s *VulkanShader) stageCreateInfo() vk.PipelineShaderStageCreateInfo {
	stage := vk.ShaderStageVertexBit
	if s.stage == gpu.ShaderStageFragment {
		stage = vk.ShaderStageFragmentBit
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: s.Handle,
		PName:  VulkanSafeString(s.Entrypoint),
	}
}

// shaderModuleInfo describes a module for SPIR-V code. CodeSize is in bytes.
func shaderModuleInfo(code []byte) vk.ShaderModuleCreateInfo {
	return vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    sliceUint32(code),
	}
}

func sliceUint32(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[4*i:])
	}
	return out
}
