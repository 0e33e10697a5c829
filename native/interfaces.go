package native

//go:generate mockgen -destination ./mocks/mocks.go github.com/vkngwrapper/recorder/native Fence,CommandQueue,SwapChain

import (
	"context"

	"github.com/gogpu/gputypes"
)

// Device creates every other native object and performs descriptor writes. Implementations
// must be safe to call from multiple goroutines.
type Device interface {
	CreateDescriptorHeap(desc DescriptorHeapDesc) (DescriptorHeap, error)
	// DescriptorHandleIncrementSize returns the distance between two adjacent descriptors in
	// heaps of the provided type. It is hardware dependent and must always be queried.
	DescriptorHandleIncrementSize(heapType DescriptorHeapType) int
	CopyDescriptors(dstStarts []CPUDescriptorHandle, dstSizes []int, srcStarts []CPUDescriptorHandle, srcSizes []int, heapType DescriptorHeapType)
	CopyDescriptorsSimple(count int, dst CPUDescriptorHandle, src CPUDescriptorHandle, heapType DescriptorHeapType)

	CreateCommittedResource(heap HeapType, desc ResourceDesc, initialState ResourceState, clearValue *ClearValue) (Resource, error)
	CreateCommandAllocator(listType CommandListType) (CommandAllocator, error)
	CreateCommandList(listType CommandListType, allocator CommandAllocator) (CommandList, error)
	CreateCommandQueue(listType CommandListType) (CommandQueue, error)
	CreateFence(initialValue uint64) (Fence, error)
	CreateRootSignature(desc RootSignatureDesc) (RootSignature, error)
	CheckFormatSupport(format gputypes.TextureFormat) (FormatSupport, error)

	CreateShaderResourceView(resource Resource, desc *ShaderResourceViewDesc, dst CPUDescriptorHandle)
	CreateUnorderedAccessView(resource Resource, counter Resource, desc *UnorderedAccessViewDesc, dst CPUDescriptorHandle)
	CreateRenderTargetView(resource Resource, desc *RenderTargetViewDesc, dst CPUDescriptorHandle)
	CreateDepthStencilView(resource Resource, dst CPUDescriptorHandle)
	CreateConstantBufferView(desc ConstantBufferViewDesc, dst CPUDescriptorHandle)
}

type Resource interface {
	Desc() ResourceDesc
	GPUVirtualAddress() uint64
	// Map returns CPU-visible memory for upload and readback resources
	Map() ([]byte, error)
	Unmap()
	SetName(name string)
	Name() string
	Release()
}

type DescriptorHeap interface {
	Desc() DescriptorHeapDesc
	CPUDescriptorHandleForHeapStart() CPUDescriptorHandle
	// GPUDescriptorHandleForHeapStart returns a null handle for heaps that are not shader visible
	GPUDescriptorHandleForHeapStart() GPUDescriptorHandle
	Release()
}

type CommandAllocator interface {
	Reset() error
	Release()
}

type RootSignature interface {
	Release()
}

type CommandList interface {
	Type() CommandListType
	Reset(allocator CommandAllocator) error
	Close() error

	ResourceBarrier(barriers []ResourceBarrier)

	CopyBufferRegion(dst Resource, dstOffset int, src Resource, srcOffset int, numBytes int)
	CopyResource(dst Resource, src Resource)
	CopyTextureRegion(dst Resource, dstSubresource uint32, src Resource, srcFootprint SubresourceFootprint)
	ResolveSubresource(dst Resource, dstSubresource uint32, src Resource, srcSubresource uint32, format gputypes.TextureFormat)

	IASetPrimitiveTopology(topology gputypes.PrimitiveTopology)
	IASetVertexBuffers(startSlot int, views []VertexBufferView)
	IASetIndexBuffer(view *IndexBufferView)

	SetDescriptorHeaps(heaps []DescriptorHeap)
	SetGraphicsRootSignature(rootSignature RootSignature)
	SetComputeRootSignature(rootSignature RootSignature)
	SetGraphicsRootDescriptorTable(rootIndex int, base GPUDescriptorHandle)
	SetComputeRootDescriptorTable(rootIndex int, base GPUDescriptorHandle)
	SetGraphicsRootConstantBufferView(rootIndex int, address uint64)
	SetComputeRootConstantBufferView(rootIndex int, address uint64)
	SetGraphicsRootShaderResourceView(rootIndex int, address uint64)
	SetComputeRootShaderResourceView(rootIndex int, address uint64)
	SetGraphicsRoot32BitConstants(rootIndex int, values []uint32, destOffset int)
	SetComputeRoot32BitConstants(rootIndex int, values []uint32, destOffset int)

	ClearRenderTargetView(rtv CPUDescriptorHandle, color [4]float32)
	ClearDepthStencilView(dsv CPUDescriptorHandle, flags ClearFlags, depth float32, stencil uint8)

	DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance int)
	DrawIndexedInstanced(indexCountPerInstance, instanceCount, startIndex, baseVertex, startInstance int)
	Dispatch(x, y, z int)

	Release()
}

type CommandQueue interface {
	Type() CommandListType
	ExecuteCommandLists(lists []CommandList)
	// Signal enqueues a GPU-side write of value to fence
	Signal(fence Fence, value uint64) error
	// Wait enqueues a GPU-side wait until fence reaches value
	Wait(fence Fence, value uint64) error
	Release()
}

type Fence interface {
	CompletedValue() uint64
	// Done returns a channel that is closed once the fence has reached value
	Done(value uint64) <-chan struct{}
	Release()
}

type SwapChain interface {
	BufferCount() int
	Buffer(index int) (Resource, error)
	CurrentBackBufferIndex() int
	Present(syncInterval int, allowTearing bool) error
	ResizeBuffers(bufferCount, width, height int) error
	Size() (width int, height int)
	Format() gputypes.TextureFormat
	TearingSupported() bool
	// WaitForFrameLatency blocks until the presentation engine can accept another frame
	WaitForFrameLatency(ctx context.Context) error
	Release()
}
