package dynheap_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/recorder/dynheap"
	"github.com/vkngwrapper/recorder/native"
	"github.com/vkngwrapper/recorder/native/fake"
)

type testLayout struct {
	mask   uint32
	counts map[int]int
}

func (l *testLayout) DescriptorTableBitMask(heapType native.DescriptorHeapType) uint32 {
	if heapType != native.DescriptorHeapTypeCBVSRVUAV {
		return 0
	}
	return l.mask
}

func (l *testLayout) NumDescriptors(rootIndex int) int { return l.counts[rootIndex] }

type testBinder struct {
	list  *fake.CommandList
	bound []native.DescriptorHeap
}

func (b *testBinder) SetDescriptorHeap(heapType native.DescriptorHeapType, heap native.DescriptorHeap) {
	b.bound = append(b.bound, heap)
	b.list.SetDescriptorHeaps([]native.DescriptorHeap{heap})
}

func (b *testBinder) Native() native.CommandList { return b.list }

type fixture struct {
	device    *fake.Device
	pool      *dynheap.HeapPool
	heap      *dynheap.Heap
	binder    *testBinder
	sources   native.CPUDescriptorHandle
	resources []native.Resource
	increment int
}

func newFixture(t *testing.T, descriptorsPerHeap int) *fixture {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	device := fake.NewDevice()

	pool, err := dynheap.NewHeapPool(logger, device, native.DescriptorHeapTypeCBVSRVUAV, descriptorsPerHeap, false)
	require.NoError(t, err)

	allocator, err := device.CreateCommandAllocator(native.CommandListTypeDirect)
	require.NoError(t, err)
	list, err := device.CreateCommandList(native.CommandListTypeDirect, allocator)
	require.NoError(t, err)

	cpuHeap, err := device.CreateDescriptorHeap(native.DescriptorHeapDesc{Type: native.DescriptorHeapTypeCBVSRVUAV, NumDescriptors: 16})
	require.NoError(t, err)

	f := &fixture{
		device:    device,
		pool:      pool,
		heap:      dynheap.NewHeap(logger, device, pool),
		binder:    &testBinder{list: list.(*fake.CommandList)},
		sources:   cpuHeap.CPUDescriptorHandleForHeapStart(),
		increment: device.DescriptorHandleIncrementSize(native.DescriptorHeapTypeCBVSRVUAV),
	}

	for i := 0; i < 16; i++ {
		texture, err := device.CreateCommittedResource(native.HeapTypeDefault, native.ResourceDesc{
			Dimension:        native.ResourceDimensionTexture2D,
			Width:            4,
			Height:           4,
			DepthOrArraySize: 1,
			MipLevels:        1,
			Format:           gputypes.TextureFormatRGBA8Unorm,
		}, native.ResourceStateCommon, nil)
		require.NoError(t, err)
		device.CreateShaderResourceView(texture, nil, f.sources.Offset(i, f.increment))
		f.resources = append(f.resources, texture)
	}

	return f
}

func (f *fixture) source(index int) native.CPUDescriptorHandle {
	return f.sources.Offset(index, f.increment)
}

func (f *fixture) tableBindings() []fake.Command {
	return f.binder.list.CommandsOf(fake.OpSetGraphicsDescriptorTable)
}

func TestHeapCommitsStagedTables(t *testing.T) {
	f := newFixture(t, 64)
	require.NoError(t, f.heap.ParseRootSignature(&testLayout{mask: 0b101, counts: map[int]int{0: 4, 2: 2}}))

	require.NoError(t, f.heap.StageDescriptors(0, 1, 2, f.source(3)))
	require.NoError(t, f.heap.StageDescriptors(2, 0, 2, f.source(8)))
	require.Equal(t, 6, f.heap.StaleDescriptorCount())

	require.NoError(t, f.heap.CommitStagedDescriptorsForDraw(f.binder))
	require.Equal(t, 0, f.heap.StaleDescriptorCount())
	require.Len(t, f.binder.bound, 1)

	bindings := f.tableBindings()
	require.Len(t, bindings, 2)
	require.Equal(t, 0, bindings[0].RootIndex)
	require.Equal(t, 2, bindings[1].RootIndex)
	require.Equal(t, bindings[0].GPUHandle.Offset(4, f.increment), bindings[1].GPUHandle)

	descriptor, ok := f.device.DescriptorAtGPU(bindings[0].GPUHandle.Offset(1, f.increment))
	require.True(t, ok)
	require.Same(t, f.resources[3], descriptor.Resource)
	descriptor, ok = f.device.DescriptorAtGPU(bindings[1].GPUHandle.Offset(1, f.increment))
	require.True(t, ok)
	require.Same(t, f.resources[9], descriptor.Resource)

	// Nothing is stale, so a second commit records nothing
	require.NoError(t, f.heap.CommitStagedDescriptorsForDraw(f.binder))
	require.Len(t, f.tableBindings(), 2)
}

func TestHeapOnlyCommitsStaleTables(t *testing.T) {
	f := newFixture(t, 64)
	require.NoError(t, f.heap.ParseRootSignature(&testLayout{mask: 0b11, counts: map[int]int{0: 2, 1: 2}}))

	require.NoError(t, f.heap.StageDescriptors(0, 0, 2, f.source(0)))
	require.NoError(t, f.heap.StageDescriptors(1, 0, 2, f.source(2)))
	require.NoError(t, f.heap.CommitStagedDescriptorsForDispatch(f.binder))

	require.NoError(t, f.heap.StageDescriptors(1, 1, 1, f.source(5)))
	require.Equal(t, 2, f.heap.StaleDescriptorCount())
	require.NoError(t, f.heap.CommitStagedDescriptorsForDispatch(f.binder))

	bindings := f.binder.list.CommandsOf(fake.OpSetComputeDescriptorTable)
	require.Len(t, bindings, 3)
	require.Equal(t, 1, bindings[2].RootIndex)

	// Descriptor 0 of the restaged table kept its earlier contents
	descriptor, ok := f.device.DescriptorAtGPU(bindings[2].GPUHandle)
	require.True(t, ok)
	require.Same(t, f.resources[2], descriptor.Resource)
	descriptor, ok = f.device.DescriptorAtGPU(bindings[2].GPUHandle.Offset(1, f.increment))
	require.True(t, ok)
	require.Same(t, f.resources[5], descriptor.Resource)
}

func TestHeapRolloverRestagesEveryTable(t *testing.T) {
	f := newFixture(t, 8)
	require.NoError(t, f.heap.ParseRootSignature(&testLayout{mask: 0b101, counts: map[int]int{0: 4, 2: 3}}))

	require.NoError(t, f.heap.StageDescriptors(0, 0, 4, f.source(0)))
	require.NoError(t, f.heap.StageDescriptors(2, 0, 3, f.source(4)))
	require.NoError(t, f.heap.CommitStagedDescriptorsForDraw(f.binder))
	require.Len(t, f.binder.bound, 1)

	// Only one slot is left, so restaging table 2 moves to a new heap
	require.NoError(t, f.heap.StageDescriptors(2, 0, 1, f.source(10)))
	require.NoError(t, f.heap.CommitStagedDescriptorsForDraw(f.binder))

	require.Len(t, f.binder.bound, 2)
	require.NotSame(t, f.binder.bound[0], f.binder.bound[1])
	require.Equal(t, 2, f.pool.HeapCount())

	bindings := f.tableBindings()
	require.Len(t, bindings, 4)
	require.Equal(t, 0, bindings[2].RootIndex)
	require.Equal(t, 2, bindings[3].RootIndex)
	require.Equal(t, f.binder.bound[1].GPUDescriptorHandleForHeapStart(), bindings[2].GPUHandle)

	descriptor, ok := f.device.DescriptorAtGPU(bindings[2].GPUHandle.Offset(3, f.increment))
	require.True(t, ok)
	require.Same(t, f.resources[3], descriptor.Resource)
	descriptor, ok = f.device.DescriptorAtGPU(bindings[3].GPUHandle)
	require.True(t, ok)
	require.Same(t, f.resources[10], descriptor.Resource)

	// The heap switch happens before any table of the new heap is bound
	ops := f.binder.list.Ops()
	require.Equal(t, []fake.Op{
		fake.OpSetDescriptorHeaps,
		fake.OpSetGraphicsDescriptorTable,
		fake.OpSetGraphicsDescriptorTable,
		fake.OpSetDescriptorHeaps,
		fake.OpSetGraphicsDescriptorTable,
		fake.OpSetGraphicsDescriptorTable,
	}, ops)
}

func TestHeapStagingErrors(t *testing.T) {
	f := newFixture(t, 8)

	err := f.heap.ParseRootSignature(&testLayout{mask: 0b11, counts: map[int]int{0: 6, 1: 6}})
	require.True(t, errors.Is(err, dynheap.ErrDescriptorTableTooLarge))

	require.NoError(t, f.heap.ParseRootSignature(&testLayout{mask: 0b10, counts: map[int]int{1: 4}}))

	err = f.heap.StageDescriptors(1, 2, 3, f.source(0))
	require.True(t, errors.Is(err, dynheap.ErrDescriptorTableTooLarge))

	require.Error(t, f.heap.StageDescriptors(0, 0, 1, f.source(0)))
	require.Error(t, f.heap.StageDescriptors(32, 0, 1, f.source(0)))
	require.Equal(t, 0, f.heap.StaleDescriptorCount())
}

func TestHeapCopyDescriptor(t *testing.T) {
	f := newFixture(t, 2)

	first, err := f.heap.CopyDescriptor(f.binder, f.source(7))
	require.NoError(t, err)
	second, err := f.heap.CopyDescriptor(f.binder, f.source(8))
	require.NoError(t, err)
	require.Equal(t, first.Offset(1, f.increment), second)

	third, err := f.heap.CopyDescriptor(f.binder, f.source(9))
	require.NoError(t, err)
	require.Len(t, f.binder.bound, 2)
	require.Equal(t, f.binder.bound[1].GPUDescriptorHandleForHeapStart(), third)

	descriptor, ok := f.device.DescriptorAtGPU(third)
	require.True(t, ok)
	require.Same(t, f.resources[9], descriptor.Resource)
}

func TestHeapResetReturnsHeapsAfterFence(t *testing.T) {
	f := newFixture(t, 4)
	require.NoError(t, f.heap.ParseRootSignature(&testLayout{mask: 0b1, counts: map[int]int{0: 4}}))
	require.NoError(t, f.heap.StageDescriptors(0, 0, 4, f.source(0)))
	require.NoError(t, f.heap.CommitStagedDescriptorsForDraw(f.binder))

	fence := fake.NewFence(0)
	f.heap.Reset(dynheap.Marker{Fence: fence, Value: 3})
	require.Equal(t, 0, f.heap.StaleDescriptorCount())
	require.Equal(t, 0, f.pool.AvailableCount())

	// Another list cannot have the heap until the fence is reached
	other := dynheap.NewHeap(slog.New(slog.NewJSONHandler(io.Discard, nil)), f.device, f.pool)
	_, err := other.CopyDescriptor(f.binder, f.source(0))
	require.NoError(t, err)
	require.Equal(t, 2, f.pool.HeapCount())

	fence.Complete(3)
	require.Equal(t, 1, f.pool.AvailableCount())

	other.Reset(dynheap.Marker{})
	require.Equal(t, 2, f.pool.AvailableCount())
	require.NoError(t, f.pool.Destroy())
}

func TestHeapPoolDestroyReportsHeapsInUse(t *testing.T) {
	f := newFixture(t, 4)
	_, err := f.heap.CopyDescriptor(f.binder, f.source(0))
	require.NoError(t, err)

	require.Error(t, f.pool.Destroy())
}

func TestHeapPoolRejectsNonShaderVisibleTypes(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	_, err := dynheap.NewHeapPool(logger, fake.NewDevice(), native.DescriptorHeapTypeRTV, 16, false)
	require.Error(t, err)
}
