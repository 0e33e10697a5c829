package descriptor_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/recorder/descriptor"
	"github.com/vkngwrapper/recorder/gfxutils"
	"github.com/vkngwrapper/recorder/native"
	"github.com/vkngwrapper/recorder/native/fake"
)

func newAllocator(t *testing.T, device *fake.Device, options descriptor.AllocatorOptions) *descriptor.Allocator {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	var allocator descriptor.Allocator
	require.NoError(t, allocator.Init(logger, device, native.DescriptorHeapTypeCBVSRVUAV, options))
	return &allocator
}

func TestAllocatorRetiresExhaustedPage(t *testing.T) {
	device := fake.NewDevice()
	allocator := newAllocator(t, device, descriptor.AllocatorOptions{DescriptorsPerPage: 16})

	first, err := allocator.Allocate(10)
	require.NoError(t, err)
	require.Equal(t, 10, first.Count())
	require.Equal(t, 6, first.Page().NumFreeHandles())
	require.Equal(t, 1, allocator.PageCount())

	second, err := allocator.Allocate(10)
	require.NoError(t, err)
	require.NotSame(t, first.Page(), second.Page())
	require.Equal(t, 2, allocator.PageCount())
	require.Equal(t, 1, allocator.RetiredPageCount())

	// The retired page still holds the first block
	require.False(t, first.Page().IsEmpty())
	require.Len(t, device.Heaps, 2)
	require.NoError(t, allocator.Validate())
}

func TestAllocatorHandlesUseQueriedIncrement(t *testing.T) {
	device := fake.NewDevice()
	device.SetIncrementSize(native.DescriptorHeapTypeCBVSRVUAV, 48)
	allocator := newAllocator(t, device, descriptor.AllocatorOptions{DescriptorsPerPage: 16})

	allocation, err := allocator.Allocate(3)
	require.NoError(t, err)

	base := device.Heaps[0].CPUDescriptorHandleForHeapStart()
	require.Equal(t, base, allocation.Handle(0))
	require.Equal(t, base.Ptr+96, allocation.Handle(2).Ptr)
	require.Panics(t, func() { allocation.Handle(3) })
}

func TestAllocatorTooLarge(t *testing.T) {
	device := fake.NewDevice()
	allocator := newAllocator(t, device, descriptor.AllocatorOptions{DescriptorsPerPage: 16, MaxDescriptorsPerHeap: 64})

	_, err := allocator.Allocate(65)
	require.Error(t, err)
	require.True(t, errors.Is(err, descriptor.ErrAllocationTooLarge))
	require.Equal(t, 0, allocator.PageCount())

	large, err := allocator.Allocate(40)
	require.NoError(t, err)
	require.Equal(t, 40, large.Page().Capacity())

	_, err = allocator.Allocate(0)
	require.Error(t, err)
}

func TestAllocatorDefersReuseUntilFence(t *testing.T) {
	device := fake.NewDevice()
	allocator := newAllocator(t, device, descriptor.AllocatorOptions{DescriptorsPerPage: 16})

	first, err := allocator.Allocate(16)
	require.NoError(t, err)
	firstPage := first.Page()
	firstHandle := first.Handle(0)

	first.Free(5)
	require.True(t, first.IsNull())

	// Fence 5 has not completed, so the slots cannot be handed out again
	allocator.ReleaseStaleDescriptors(4)
	require.False(t, firstPage.IsEmpty())

	second, err := allocator.Allocate(16)
	require.NoError(t, err)
	require.NotSame(t, firstPage, second.Page())
	require.NotEqual(t, firstHandle, second.Handle(0))

	allocator.ReleaseStaleDescriptors(5)
	require.True(t, firstPage.IsEmpty())

	// The active page is full, so the released page comes back into use
	third, err := allocator.Allocate(16)
	require.NoError(t, err)
	require.Same(t, firstPage, third.Page())
	require.Equal(t, firstHandle, third.Handle(0))
	require.Len(t, device.Heaps, 2)
	require.NoError(t, allocator.Validate())
}

func TestAllocatorFreeNullAllocation(t *testing.T) {
	var allocation descriptor.Allocation
	require.True(t, allocation.IsNull())
	allocation.Free(10)
}

func TestAllocatorDestroyReportsLiveAllocations(t *testing.T) {
	device := fake.NewDevice()
	allocator := newAllocator(t, device, descriptor.AllocatorOptions{DescriptorsPerPage: 8})

	_, err := allocator.Allocate(2)
	require.NoError(t, err)
	require.Error(t, allocator.Destroy())

	allocator = newAllocator(t, device, descriptor.AllocatorOptions{DescriptorsPerPage: 8})
	allocation, err := allocator.Allocate(2)
	require.NoError(t, err)
	allocation.Free(1)
	allocator.ReleaseStaleDescriptors(1)
	require.NoError(t, allocator.Destroy())
	require.True(t, device.Heaps[1].Released)
}

func TestAllocatorStatistics(t *testing.T) {
	device := fake.NewDevice()
	allocator := newAllocator(t, device, descriptor.AllocatorOptions{DescriptorsPerPage: 16})

	_, err := allocator.Allocate(4)
	require.NoError(t, err)
	_, err = allocator.Allocate(6)
	require.NoError(t, err)

	var stats gfxutils.DetailedStatistics
	stats.Clear()
	allocator.AddDetailedStatistics(&stats)
	require.Equal(t, 1, stats.PageCount)
	require.Equal(t, 16, stats.PageDescriptors)
	require.Equal(t, 2, stats.AllocationCount)
	require.Equal(t, 10, stats.AllocatedDescriptors)
	require.Equal(t, 4, stats.AllocationMin)
	require.Equal(t, 6, stats.AllocationMax)
	require.Equal(t, 1, stats.FreeRangeCount)

	writer := jwriter.NewWriter()
	allocator.PrintDetailedMap(&writer)
	require.NoError(t, writer.Error())

	var parsed map[string]map[string]any
	require.NoError(t, json.Unmarshal(writer.Bytes(), &parsed))
	require.Equal(t, true, parsed["0"]["Active"])
	require.Equal(t, float64(6), parsed["0"]["FreeDescriptors"])
}
