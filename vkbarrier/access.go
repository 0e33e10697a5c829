package vkbarrier

import (
	"math/bits"

	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
	"github.com/vkngwrapper/recorder/native"
)

// Access is the Vulkan view of a resource state: the layout an image must be in, the memory
// accesses the state performs, and the pipeline stages that perform them
type Access struct {
	Layout core1_0.ImageLayout
	Access core1_0.AccessFlags
	Stages core1_0.PipelineStageFlags
}

var stateAccess = map[native.ResourceState]Access{
	native.ResourceStateVertexAndConstantBuffer: {
		Layout: core1_0.ImageLayoutGeneral,
		Access: core1_0.AccessVertexAttributeRead | core1_0.AccessUniformRead,
		Stages: core1_0.PipelineStageVertexInput | core1_0.PipelineStageVertexShader | core1_0.PipelineStageFragmentShader | core1_0.PipelineStageComputeShader,
	},
	native.ResourceStateIndexBuffer: {
		Layout: core1_0.ImageLayoutGeneral,
		Access: core1_0.AccessIndexRead,
		Stages: core1_0.PipelineStageVertexInput,
	},
	native.ResourceStateRenderTarget: {
		Layout: core1_0.ImageLayoutColorAttachmentOptimal,
		Access: core1_0.AccessColorAttachmentRead | core1_0.AccessColorAttachmentWrite,
		Stages: core1_0.PipelineStageColorAttachmentOutput,
	},
	native.ResourceStateUnorderedAccess: {
		Layout: core1_0.ImageLayoutGeneral,
		Access: core1_0.AccessShaderRead | core1_0.AccessShaderWrite,
		Stages: core1_0.PipelineStageVertexShader | core1_0.PipelineStageFragmentShader | core1_0.PipelineStageComputeShader,
	},
	native.ResourceStateDepthWrite: {
		Layout: core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		Access: core1_0.AccessDepthStencilAttachmentRead | core1_0.AccessDepthStencilAttachmentWrite,
		Stages: core1_0.PipelineStageEarlyFragmentTests | core1_0.PipelineStageLateFragmentTests,
	},
	native.ResourceStateDepthRead: {
		Layout: core1_0.ImageLayoutDepthStencilReadOnlyOptimal,
		Access: core1_0.AccessDepthStencilAttachmentRead,
		Stages: core1_0.PipelineStageEarlyFragmentTests | core1_0.PipelineStageLateFragmentTests,
	},
	native.ResourceStateNonPixelShaderResource: {
		Layout: core1_0.ImageLayoutShaderReadOnlyOptimal,
		Access: core1_0.AccessShaderRead,
		Stages: core1_0.PipelineStageVertexShader | core1_0.PipelineStageComputeShader,
	},
	native.ResourceStatePixelShaderResource: {
		Layout: core1_0.ImageLayoutShaderReadOnlyOptimal,
		Access: core1_0.AccessShaderRead,
		Stages: core1_0.PipelineStageFragmentShader,
	},
	// Transform feedback needs an extension, so stream output is treated as an opaque write
	native.ResourceStateStreamOut: {
		Layout: core1_0.ImageLayoutGeneral,
		Access: core1_0.AccessMemoryWrite,
		Stages: core1_0.PipelineStageAllCommands,
	},
	native.ResourceStateIndirectArgument: {
		Layout: core1_0.ImageLayoutGeneral,
		Access: core1_0.AccessIndirectCommandRead,
		Stages: core1_0.PipelineStageDrawIndirect,
	},
	native.ResourceStateCopyDest: {
		Layout: core1_0.ImageLayoutTransferDstOptimal,
		Access: core1_0.AccessTransferWrite,
		Stages: core1_0.PipelineStageTransfer,
	},
	native.ResourceStateCopySource: {
		Layout: core1_0.ImageLayoutTransferSrcOptimal,
		Access: core1_0.AccessTransferRead,
		Stages: core1_0.PipelineStageTransfer,
	},
	native.ResourceStateResolveDest: {
		Layout: core1_0.ImageLayoutTransferDstOptimal,
		Access: core1_0.AccessTransferWrite,
		Stages: core1_0.PipelineStageTransfer,
	},
	native.ResourceStateResolveSource: {
		Layout: core1_0.ImageLayoutTransferSrcOptimal,
		Access: core1_0.AccessTransferRead,
		Stages: core1_0.PipelineStageTransfer,
	},
}

var commonAccess = Access{
	Layout: core1_0.ImageLayoutGeneral,
	Access: core1_0.AccessMemoryRead | core1_0.AccessMemoryWrite,
	Stages: core1_0.PipelineStageAllCommands,
}

var presentAccess = Access{
	Layout: khr_swapchain.ImageLayoutPresentSrc,
	Stages: core1_0.PipelineStageBottomOfPipe,
}

// StateAccess translates a resource state into its Vulkan layout, access mask and stages.
// Combined read states OR their accesses and stages together. When the combined states disagree
// on a layout the result is ImageLayoutGeneral, except that depth reads combined with shader
// reads stay in ImageLayoutDepthStencilReadOnlyOptimal, which allows sampling.
//
// The common state doubles as the present state. presentable selects the swap chain present
// layout for it.
func StateAccess(state native.ResourceState, presentable bool) Access {
	if state == native.ResourceStateCommon {
		if presentable {
			return presentAccess
		}
		return commonAccess
	}

	var result Access
	layoutSet := false
	for remaining := uint32(state); remaining != 0; remaining &= remaining - 1 {
		bit := native.ResourceState(1 << bits.TrailingZeros32(remaining))
		access, known := stateAccess[bit]
		if !known {
			continue
		}

		result.Access |= access.Access
		result.Stages |= access.Stages
		if !layoutSet {
			result.Layout = access.Layout
			layoutSet = true
			continue
		}
		result.Layout = mergeLayouts(result.Layout, access.Layout)
	}

	if !layoutSet {
		return commonAccess
	}
	return result
}

func mergeLayouts(a, b core1_0.ImageLayout) core1_0.ImageLayout {
	if a == b {
		return a
	}

	depthRead := core1_0.ImageLayoutDepthStencilReadOnlyOptimal
	shaderRead := core1_0.ImageLayoutShaderReadOnlyOptimal
	if (a == depthRead && b == shaderRead) || (a == shaderRead && b == depthRead) {
		return depthRead
	}
	return core1_0.ImageLayoutGeneral
}
