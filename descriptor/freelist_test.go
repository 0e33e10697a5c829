package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFreeListBestFit(t *testing.T) {
	var list freeList
	list.Init(32)

	a, ok := list.Allocate(8)
	require.True(t, ok)
	require.Equal(t, 0, a)
	b, ok := list.Allocate(4)
	require.True(t, ok)
	require.Equal(t, 8, b)
	c, ok := list.Allocate(8)
	require.True(t, ok)
	require.Equal(t, 12, c)

	list.Release(a, 8)
	list.Release(b, 4)
	require.NoError(t, list.Validate())
	require.Equal(t, []freeRange{{offset: 0, size: 12}, {offset: 20, size: 12}}, list.ranges)

	// Both ranges fit 12, the first one is used
	d, ok := list.Allocate(12)
	require.True(t, ok)
	require.Equal(t, 0, d)

	_, ok = list.Allocate(13)
	require.False(t, ok)
	require.Equal(t, 12, list.LargestRange())
}

func TestFreeListMergesNeighbors(t *testing.T) {
	var list freeList
	list.Init(12)

	offsets := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		offset, ok := list.Allocate(4)
		require.True(t, ok)
		offsets = append(offsets, offset)
	}
	require.Equal(t, 0, list.FreeCount())
	require.Empty(t, list.ranges)

	list.Release(offsets[0], 4)
	list.Release(offsets[2], 4)
	require.Len(t, list.ranges, 2)

	list.Release(offsets[1], 4)
	require.Equal(t, []freeRange{{offset: 0, size: 12}}, list.ranges)
	require.True(t, list.IsEmpty())
	require.NoError(t, list.Validate())
}

func TestFreeListDoubleReleasePanics(t *testing.T) {
	var list freeList
	list.Init(8)

	offset, ok := list.Allocate(4)
	require.True(t, ok)
	list.Release(offset, 4)

	require.Panics(t, func() { list.Release(offset, 4) })
	require.Panics(t, func() { list.Release(2, 2) })
	require.Panics(t, func() { list.Release(6, 4) })
}

func TestFreeListValidate(t *testing.T) {
	list := freeList{
		ranges:    []freeRange{{offset: 0, size: 4}, {offset: 4, size: 4}},
		freeCount: 8,
		capacity:  8,
	}
	require.Error(t, list.Validate())

	list.ranges = []freeRange{{offset: 0, size: 4}}
	require.Error(t, list.Validate())
}
