package fake

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/recorder/native"
)

func TestFenceDone(t *testing.T) {
	fence := NewFence(0)
	done := fence.Done(2)

	fence.Complete(1)
	select {
	case <-done:
		t.Fatal("fence completed early")
	default:
	}

	fence.Complete(3)
	<-done
	require.Equal(t, uint64(3), fence.CompletedValue())

	fence.Complete(2)
	require.Equal(t, uint64(3), fence.CompletedValue())
	<-fence.Done(1)
}

func TestManualQueueHoldsSignals(t *testing.T) {
	device := NewDevice()
	device.ManualFences = true

	queue, err := device.CreateCommandQueue(native.CommandListTypeDirect)
	require.NoError(t, err)
	fence, err := device.CreateFence(0)
	require.NoError(t, err)

	require.NoError(t, queue.Signal(fence, 1))
	require.NoError(t, queue.Signal(fence, 2))
	require.Equal(t, uint64(0), fence.CompletedValue())

	require.True(t, queue.(*CommandQueue).CompleteNext())
	require.Equal(t, uint64(1), fence.CompletedValue())

	queue.(*CommandQueue).CompletePending()
	require.Equal(t, uint64(2), fence.CompletedValue())
	require.False(t, queue.(*CommandQueue).CompleteNext())
}

func TestDescriptorCopiesReachShaderVisibleHeap(t *testing.T) {
	device := NewDevice()

	cpuHeap, err := device.CreateDescriptorHeap(native.DescriptorHeapDesc{Type: native.DescriptorHeapTypeCBVSRVUAV, NumDescriptors: 4})
	require.NoError(t, err)
	gpuHeap, err := device.CreateDescriptorHeap(native.DescriptorHeapDesc{Type: native.DescriptorHeapTypeCBVSRVUAV, NumDescriptors: 4, ShaderVisible: true})
	require.NoError(t, err)
	require.True(t, cpuHeap.GPUDescriptorHandleForHeapStart().IsNull())

	texture, err := device.CreateCommittedResource(native.HeapTypeDefault, native.ResourceDesc{
		Dimension:        native.ResourceDimensionTexture2D,
		Width:            4,
		Height:           4,
		DepthOrArraySize: 1,
		MipLevels:        1,
		Format:           gputypes.TextureFormatRGBA8Unorm,
	}, native.ResourceStateCommon, nil)
	require.NoError(t, err)

	increment := device.DescriptorHandleIncrementSize(native.DescriptorHeapTypeCBVSRVUAV)
	src := cpuHeap.CPUDescriptorHandleForHeapStart().Offset(1, increment)
	device.CreateShaderResourceView(texture, nil, src)

	dst := gpuHeap.CPUDescriptorHandleForHeapStart().Offset(2, increment)
	device.CopyDescriptorsSimple(1, dst, src, native.DescriptorHeapTypeCBVSRVUAV)

	descriptor, ok := device.DescriptorAtGPU(gpuHeap.GPUDescriptorHandleForHeapStart().Offset(2, increment))
	require.True(t, ok)
	require.Equal(t, DescriptorSRV, descriptor.Kind)
	require.Same(t, texture, descriptor.Resource)

	_, err = device.CreateDescriptorHeap(native.DescriptorHeapDesc{Type: native.DescriptorHeapTypeRTV, NumDescriptors: 4, ShaderVisible: true})
	require.Error(t, err)
}

func TestCommandListLifecycle(t *testing.T) {
	device := NewDevice()
	allocator, err := device.CreateCommandAllocator(native.CommandListTypeDirect)
	require.NoError(t, err)
	list, err := device.CreateCommandList(native.CommandListTypeDirect, allocator)
	require.NoError(t, err)

	list.Dispatch(1, 2, 3)
	require.Error(t, list.Reset(allocator))
	require.NoError(t, list.Close())
	require.Error(t, list.Close())
	require.Panics(t, func() { list.Dispatch(1, 1, 1) })

	require.NoError(t, list.Reset(allocator))
	require.Empty(t, list.(*CommandList).Commands)
}
