package gfxutils

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestAlignUp(t *testing.T) {
	require.Equal(t, 0, AlignUp(0, 16))
	require.Equal(t, 16, AlignUp(1, 16))
	require.Equal(t, 16, AlignUp(16, 16))
	require.Equal(t, 256, AlignUp(200, 256))
	require.Equal(t, uint64(512), AlignUp(uint64(257), 256))
}

func TestAlignDown(t *testing.T) {
	require.Equal(t, 0, AlignDown(15, 16))
	require.Equal(t, 32, AlignDown(47, 16))
}

func TestCheckPow2(t *testing.T) {
	require.NoError(t, CheckPow2(64, "size"))
	require.NoError(t, CheckPow2(uint(1), "size"))

	err := CheckPow2(48, "size")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotPowerOfTwo))
	require.Equal(t, "size is 48: number must be a power of two", err.Error())

	require.Error(t, CheckPow2(0, "size"))
}

func TestDetailedStatistics(t *testing.T) {
	var stats DetailedStatistics
	stats.Clear()
	stats.AddAllocation(4)
	stats.AddAllocation(10)
	stats.AddFreeRange(2)

	var other DetailedStatistics
	other.Clear()
	other.PageCount = 1
	other.PageDescriptors = 16
	other.AddAllocation(1)
	other.AddFreeRange(15)

	stats.AddDetailedStatistics(&other)
	require.Equal(t, 1, stats.PageCount)
	require.Equal(t, 3, stats.AllocationCount)
	require.Equal(t, 15, stats.AllocatedDescriptors)
	require.Equal(t, 1, stats.AllocationMin)
	require.Equal(t, 10, stats.AllocationMax)
	require.Equal(t, 2, stats.FreeRangeCount)
	require.Equal(t, 2, stats.FreeRangeSizeMin)
	require.Equal(t, 15, stats.FreeRangeSizeMax)
}
