package descriptor

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slices"
)

type freeRange struct {
	offset int
	size   int
}

func compareRangeOffsets(a, b freeRange) int {
	return a.offset - b.offset
}

// freeList tracks the unused slots of a page as an array of disjoint ranges ordered by offset.
// Adjacent ranges are always merged, so no two entries touch.
type freeList struct {
	ranges    []freeRange
	freeCount int
	capacity  int
}

func (l *freeList) Init(capacity int) {
	l.ranges = append(l.ranges[:0], freeRange{offset: 0, size: capacity})
	l.freeCount = capacity
	l.capacity = capacity
}

func (l *freeList) FreeCount() int { return l.freeCount }
func (l *freeList) Capacity() int { return l.capacity }
func (l *freeList) IsEmpty() bool { return l.freeCount == l.capacity }

// Allocate claims count contiguous slots from the smallest range that can hold them
func (l *freeList) Allocate(count int) (int, bool) {
	if count <= 0 || count > l.freeCount {
		return 0, false
	}

	best := -1
	for i := 0; i < len(l.ranges); i++ {
		size := l.ranges[i].size
		if size < count {
			continue
		}
		if best < 0 || size < l.ranges[best].size {
			best = i
		}
		if size == count {
			break
		}
	}

	if best < 0 {
		return 0, false
	}

	offset := l.ranges[best].offset
	if l.ranges[best].size == count {
		l.ranges = slices.Delete(l.ranges, best, best+1)
	} else {
		l.ranges[best].offset += count
		l.ranges[best].size -= count
	}
	l.freeCount -= count

	return offset, true
}

// Release returns count slots starting at offset to the list, merging with neighboring ranges
func (l *freeList) Release(offset, count int) {
	if offset < 0 || count <= 0 || offset+count > l.capacity {
		panic(fmt.Sprintf("released descriptor range [%d, %d) lies outside of a page with %d slots", offset, offset+count, l.capacity))
	}

	index, found := slices.BinarySearchFunc(l.ranges, freeRange{offset: offset}, compareRangeOffsets)
	if found {
		panic(fmt.Sprintf("descriptor range at offset %d was released while already free", offset))
	}

	mergePrev := false
	if index > 0 {
		prev := l.ranges[index-1]
		if prev.offset+prev.size > offset {
			panic(fmt.Sprintf("descriptor range at offset %d overlaps a free range at offset %d", offset, prev.offset))
		}
		mergePrev = prev.offset+prev.size == offset
	}

	mergeNext := false
	if index < len(l.ranges) {
		next := l.ranges[index]
		if offset+count > next.offset {
			panic(fmt.Sprintf("descriptor range at offset %d overlaps a free range at offset %d", offset, next.offset))
		}
		mergeNext = offset+count == next.offset
	}

	switch {
	case mergePrev && mergeNext:
		l.ranges[index-1].size += count + l.ranges[index].size
		l.ranges = slices.Delete(l.ranges, index, index+1)
	case mergePrev:
		l.ranges[index-1].size += count
	case mergeNext:
		l.ranges[index].offset = offset
		l.ranges[index].size += count
	default:
		l.ranges = slices.Insert(l.ranges, index, freeRange{offset: offset, size: count})
	}

	l.freeCount += count
}

// LargestRange returns the size of the biggest request that can currently succeed
func (l *freeList) LargestRange() int {
	largest := 0
	for _, r := range l.ranges {
		if r.size > largest {
			largest = r.size
		}
	}
	return largest
}

func (l *freeList) Validate() error {
	freeCount := 0
	end := -1
	for i, r := range l.ranges {
		if r.size <= 0 {
			return errors.Newf("free range %d has invalid size %d", i, r.size)
		}
		if r.offset <= end {
			return errors.Newf("free range %d at offset %d is out of order or touches the previous range", i, r.offset)
		}
		end = r.offset + r.size
		if end > l.capacity {
			return errors.Newf("free range %d ends at %d, past the page capacity %d", i, end, l.capacity)
		}
		freeCount += r.size
	}

	if freeCount != l.freeCount {
		return errors.Newf("free ranges cover %d slots but %d are recorded as free", freeCount, l.freeCount)
	}

	return nil
}
