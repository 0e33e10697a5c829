package native

import (
	"github.com/gogpu/gputypes"
	"github.com/vkngwrapper/core/v2/common"
)

// DescriptorHeapType identifies one of the descriptor heap flavors exposed by the device. Each
// flavor has its own handle increment size and its own set of heaps.
type DescriptorHeapType uint32

const (
	DescriptorHeapTypeCBVSRVUAV DescriptorHeapType = iota
	DescriptorHeapTypeSampler
	DescriptorHeapTypeRTV
	DescriptorHeapTypeDSV

	// DescriptorHeapTypeCount is the number of descriptor heap types, not a heap type itself
	DescriptorHeapTypeCount
)

var descriptorHeapTypeMapping = map[DescriptorHeapType]string{
	DescriptorHeapTypeCBVSRVUAV: "CBV_SRV_UAV",
	DescriptorHeapTypeSampler:   "Sampler",
	DescriptorHeapTypeRTV:       "RTV",
	DescriptorHeapTypeDSV:       "DSV",
}

func (t DescriptorHeapType) String() string {
	return descriptorHeapTypeMapping[t]
}

// ShaderVisible returns true for heap types that may be bound to a command list and addressed
// from shaders
func (t DescriptorHeapType) ShaderVisible() bool {
	return t == DescriptorHeapTypeCBVSRVUAV || t == DescriptorHeapTypeSampler
}

// CommandListType identifies the queue family a command list records for
type CommandListType uint32

const (
	CommandListTypeDirect CommandListType = iota
	CommandListTypeCompute
	CommandListTypeCopy
)

var commandListTypeMapping = map[CommandListType]string{
	CommandListTypeDirect:  "Direct",
	CommandListTypeCompute: "Compute",
	CommandListTypeCopy:    "Copy",
}

func (t CommandListType) String() string {
	return commandListTypeMapping[t]
}

// ResourceState is a set of usage flags describing how the GPU is currently permitted to access
// a resource. ResourceStateCommon (which is also ResourceStatePresent) is the zero value.
type ResourceState uint32

var resourceStateMapping = common.NewFlagStringMapping[ResourceState]()

func (s ResourceState) Register(str string) {
	resourceStateMapping.Register(s, str)
}

func (s ResourceState) String() string {
	if s == ResourceStateCommon {
		return "Common"
	}
	return resourceStateMapping.FlagsToString(s)
}

const (
	ResourceStateCommon                  ResourceState = 0
	ResourceStateVertexAndConstantBuffer ResourceState = 0x1
	ResourceStateIndexBuffer             ResourceState = 0x2
	ResourceStateRenderTarget            ResourceState = 0x4
	ResourceStateUnorderedAccess         ResourceState = 0x8
	ResourceStateDepthWrite              ResourceState = 0x10
	ResourceStateDepthRead               ResourceState = 0x20
	ResourceStateNonPixelShaderResource  ResourceState = 0x40
	ResourceStatePixelShaderResource     ResourceState = 0x80
	ResourceStateStreamOut               ResourceState = 0x100
	ResourceStateIndirectArgument        ResourceState = 0x200
	ResourceStateCopyDest                ResourceState = 0x400
	ResourceStateCopySource              ResourceState = 0x800
	ResourceStateResolveDest             ResourceState = 0x1000
	ResourceStateResolveSource           ResourceState = 0x2000

	ResourceStatePresent     = ResourceStateCommon
	ResourceStateGenericRead = ResourceStateVertexAndConstantBuffer | ResourceStateIndexBuffer |
		ResourceStateNonPixelShaderResource | ResourceStatePixelShaderResource |
		ResourceStateIndirectArgument | ResourceStateCopySource
)

func init() {
	ResourceStateVertexAndConstantBuffer.Register("VertexAndConstantBuffer")
	ResourceStateIndexBuffer.Register("IndexBuffer")
	ResourceStateRenderTarget.Register("RenderTarget")
	ResourceStateUnorderedAccess.Register("UnorderedAccess")
	ResourceStateDepthWrite.Register("DepthWrite")
	ResourceStateDepthRead.Register("DepthRead")
	ResourceStateNonPixelShaderResource.Register("NonPixelShaderResource")
	ResourceStatePixelShaderResource.Register("PixelShaderResource")
	ResourceStateStreamOut.Register("StreamOut")
	ResourceStateIndirectArgument.Register("IndirectArgument")
	ResourceStateCopyDest.Register("CopyDest")
	ResourceStateCopySource.Register("CopySource")
	ResourceStateResolveDest.Register("ResolveDest")
	ResourceStateResolveSource.Register("ResolveSource")
}

// AllSubresources addresses every subresource of a resource in a barrier or state query
const AllSubresources uint32 = 0xffffffff

// CPUDescriptorHandle addresses a descriptor slot in CPU-visible memory
type CPUDescriptorHandle struct {
	Ptr uintptr
}

// Offset returns the handle count slots past h, given the heap's increment size
func (h CPUDescriptorHandle) Offset(count, incrementSize int) CPUDescriptorHandle {
	return CPUDescriptorHandle{Ptr: uintptr(int(h.Ptr) + count*incrementSize)}
}

func (h CPUDescriptorHandle) IsNull() bool { return h.Ptr == 0 }

// GPUDescriptorHandle addresses a descriptor slot in a shader-visible heap
type GPUDescriptorHandle struct {
	Ptr uint64
}

// Offset returns the handle count slots past h, given the heap's increment size
func (h GPUDescriptorHandle) Offset(count, incrementSize int) GPUDescriptorHandle {
	return GPUDescriptorHandle{Ptr: uint64(int64(h.Ptr) + int64(count*incrementSize))}
}

func (h GPUDescriptorHandle) IsNull() bool { return h.Ptr == 0 }

type DescriptorHeapDesc struct {
	Type           DescriptorHeapType
	NumDescriptors int
	ShaderVisible  bool
	NodeMask       uint32
}

// HeapType selects the memory pool a committed resource is placed in
type HeapType uint32

const (
	HeapTypeDefault HeapType = iota
	HeapTypeUpload
	HeapTypeReadback
)

type ResourceDimension uint32

const (
	ResourceDimensionUnknown ResourceDimension = iota
	ResourceDimensionBuffer
	ResourceDimensionTexture1D
	ResourceDimensionTexture2D
	ResourceDimensionTexture3D
)

var resourceDimensionMapping = map[ResourceDimension]string{
	ResourceDimensionUnknown:   "Unknown",
	ResourceDimensionBuffer:    "Buffer",
	ResourceDimensionTexture1D: "Texture1D",
	ResourceDimensionTexture2D: "Texture2D",
	ResourceDimensionTexture3D: "Texture3D",
}

func (d ResourceDimension) String() string {
	return resourceDimensionMapping[d]
}

type ResourceFlags uint32

const (
	ResourceFlagAllowRenderTarget ResourceFlags = 1 << iota
	ResourceFlagAllowDepthStencil
	ResourceFlagAllowUnorderedAccess
	ResourceFlagDenyShaderResource
)

type ResourceDesc struct {
	Dimension ResourceDimension
	// Width is the size in bytes for buffers and the texel width for textures
	Width            int
	Height           int
	DepthOrArraySize int
	MipLevels        int
	Format           gputypes.TextureFormat
	SampleCount      int
	Flags            ResourceFlags
}

// BufferDesc builds the description of a buffer of the provided size
func BufferDesc(size int, flags ResourceFlags) ResourceDesc {
	return ResourceDesc{
		Dimension:        ResourceDimensionBuffer,
		Width:            size,
		Height:           1,
		DepthOrArraySize: 1,
		MipLevels:        1,
		Format:           gputypes.TextureFormatUndefined,
		SampleCount:      1,
		Flags:            flags,
	}
}

// ArraySize returns the number of array slices in the resource. 3D textures have one.
func (d ResourceDesc) ArraySize() int {
	if d.Dimension == ResourceDimensionTexture3D || d.DepthOrArraySize < 1 {
		return 1
	}
	return d.DepthOrArraySize
}

// SubresourceCount returns the number of independently-tracked subresources in the resource
func (d ResourceDesc) SubresourceCount() int {
	if d.Dimension == ResourceDimensionBuffer {
		return 1
	}
	mips := d.MipLevels
	if mips < 1 {
		mips = 1
	}
	return mips * d.ArraySize()
}

// CalcSubresource computes the subresource index of a mip slice within an array slice
func (d ResourceDesc) CalcSubresource(mipSlice, arraySlice int) uint32 {
	mips := d.MipLevels
	if mips < 1 {
		mips = 1
	}
	return uint32(mipSlice + arraySlice*mips)
}

type ClearValue struct {
	Format  gputypes.TextureFormat
	Color   [4]float32
	Depth   float32
	Stencil uint8
}

type ClearFlags uint32

const (
	ClearFlagDepth ClearFlags = 1 << iota
	ClearFlagStencil
)

type BarrierType uint32

const (
	BarrierTypeTransition BarrierType = iota
	BarrierTypeAliasing
	BarrierTypeUAV
)

var barrierTypeMapping = map[BarrierType]string{
	BarrierTypeTransition: "Transition",
	BarrierTypeAliasing:   "Aliasing",
	BarrierTypeUAV:        "UAV",
}

func (t BarrierType) String() string {
	return barrierTypeMapping[t]
}

// ResourceBarrier is a single barrier as submitted to CommandList.ResourceBarrier. Transition
// barriers use Resource, Subresource and the two states. UAV barriers use Resource. Aliasing
// barriers use AliasBefore and AliasAfter.
type ResourceBarrier struct {
	Type        BarrierType
	Resource    Resource
	Subresource uint32
	StateBefore ResourceState
	StateAfter  ResourceState

	AliasBefore Resource
	AliasAfter  Resource
}

func TransitionBarrier(resource Resource, before, after ResourceState, subresource uint32) ResourceBarrier {
	return ResourceBarrier{
		Type:        BarrierTypeTransition,
		Resource:    resource,
		Subresource: subresource,
		StateBefore: before,
		StateAfter:  after,
	}
}

func UAVBarrier(resource Resource) ResourceBarrier {
	return ResourceBarrier{
		Type:     BarrierTypeUAV,
		Resource: resource,
	}
}

func AliasingBarrier(before, after Resource) ResourceBarrier {
	return ResourceBarrier{
		Type:        BarrierTypeAliasing,
		AliasBefore: before,
		AliasAfter:  after,
	}
}

// FormatSupport describes which views may be created for a texture format
type FormatSupport uint32

const (
	FormatSupportShaderResource FormatSupport = 1 << iota
	FormatSupportRenderTarget
	FormatSupportDepthStencil
	FormatSupportUnorderedAccess
)

type ViewDimension uint32

const (
	ViewDimensionUnknown ViewDimension = iota
	ViewDimensionBuffer
	ViewDimensionTexture1D
	ViewDimensionTexture1DArray
	ViewDimensionTexture2D
	ViewDimensionTexture2DArray
	ViewDimensionTexture3D
)

type ShaderResourceViewDesc struct {
	Format              gputypes.TextureFormat
	Dimension           ViewDimension
	MostDetailedMip     int
	MipLevels           int
	FirstArraySlice     int
	ArraySize           int
	FirstElement        int
	NumElements         int
	StructureByteStride int
	Raw                 bool
}

type UnorderedAccessViewDesc struct {
	Format              gputypes.TextureFormat
	Dimension           ViewDimension
	MipSlice            int
	FirstArraySlice     int
	ArraySize           int
	FirstElement        int
	NumElements         int
	StructureByteStride int
	Raw                 bool
}

type RenderTargetViewDesc struct {
	Format    gputypes.TextureFormat
	Dimension ViewDimension
	MipSlice  int
}

type ConstantBufferViewDesc struct {
	BufferLocation uint64
	SizeInBytes    int
}

type VertexBufferView struct {
	BufferLocation uint64
	SizeInBytes    int
	StrideInBytes  int
}

type IndexBufferView struct {
	BufferLocation uint64
	SizeInBytes    int
	Format         gputypes.IndexFormat
}

// SubresourceFootprint describes the layout of one subresource's texels inside a buffer
type SubresourceFootprint struct {
	Offset   int
	Format   gputypes.TextureFormat
	Width    int
	Height   int
	Depth    int
	RowPitch int
}

type RootParameterType uint32

const (
	RootParameterTypeDescriptorTable RootParameterType = iota
	RootParameterType32BitConstants
	RootParameterTypeCBV
	RootParameterTypeSRV
	RootParameterTypeUAV
)

type DescriptorRangeType uint32

const (
	DescriptorRangeTypeSRV DescriptorRangeType = iota
	DescriptorRangeTypeUAV
	DescriptorRangeTypeCBV
	DescriptorRangeTypeSampler
)

// DescriptorRangeOffsetAppend places a descriptor range directly after the previous one in its table
const DescriptorRangeOffsetAppend = -1

type DescriptorRange struct {
	Type                              DescriptorRangeType
	NumDescriptors                    int
	BaseShaderRegister                int
	RegisterSpace                     int
	OffsetInDescriptorsFromTableStart int
}

type RootParameter struct {
	Type RootParameterType
	// Ranges is used by RootParameterTypeDescriptorTable
	Ranges []DescriptorRange
	// Num32BitValues is used by RootParameterType32BitConstants
	Num32BitValues int
	ShaderRegister int
	RegisterSpace  int
}

type RootSignatureDesc struct {
	Parameters []RootParameter
}
