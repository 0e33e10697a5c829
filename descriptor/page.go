package descriptor

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/recorder/gfxutils"
	"github.com/vkngwrapper/recorder/internal/utils"
	"github.com/vkngwrapper/recorder/native"
)

type staleRange struct {
	offset     int
	count      int
	fenceValue uint64
}

// Page is a fixed-capacity run of CPU-visible descriptor slots backed by a single native heap.
// Freed ranges are held back until the fence value they were freed with has completed.
type Page struct {
	id       int
	logger   *slog.Logger
	heapType native.DescriptorHeapType
	heap     native.DescriptorHeap

	base      native.CPUDescriptorHandle
	increment int

	mutex utils.OptionalMutex
	free  freeList
	stale []staleRange
	// live maps the offset of every allocation, stale ones included, to its size
	live *swiss.Map[int, int]
}

func (p *Page) Init(logger *slog.Logger, device native.Device, heapType native.DescriptorHeapType, numDescriptors int, id int, useMutex bool) error {
	if p.heap != nil {
		panic("attempting to initialize a descriptor page that is already in use")
	}

	heap, err := device.CreateDescriptorHeap(native.DescriptorHeapDesc{
		Type:           heapType,
		NumDescriptors: numDescriptors,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create %s descriptor heap with %d descriptors", heapType, numDescriptors)
	}

	p.id = id
	p.logger = logger
	p.heapType = heapType
	p.heap = heap
	p.base = heap.CPUDescriptorHandleForHeapStart()
	p.increment = device.DescriptorHandleIncrementSize(heapType)
	p.mutex.UseMutex = useMutex
	p.free.Init(numDescriptors)
	p.stale = p.stale[:0]
	p.live = swiss.NewMap[int, int](16)

	return nil
}

func (p *Page) ID() int { return p.id }
func (p *Page) HeapType() native.DescriptorHeapType { return p.heapType }
func (p *Page) Capacity() int { return p.free.Capacity() }

// NumFreeHandles returns the number of slots that are immediately available for allocation
func (p *Page) NumFreeHandles() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.free.FreeCount()
}

// HasSpace returns true if a contiguous run of count slots is available
func (p *Page) HasSpace(count int) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.free.LargestRange() >= count
}

// IsEmpty returns true when every slot in the page is free, including stale slots that
// have been released
func (p *Page) IsEmpty() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.free.IsEmpty()
}

// Allocate carves count contiguous slots out of the page. It returns false if the page
// cannot satisfy the request.
func (p *Page) Allocate(count int) (Allocation, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	offset, ok := p.free.Allocate(count)
	if !ok {
		return Allocation{}, false
	}
	p.live.Put(offset, count)
	gfxutils.DebugValidate(&p.free)

	return Allocation{
		handle:    p.base.Offset(offset, p.increment),
		count:     count,
		increment: p.increment,
		offset:    offset,
		page:      p,
	}, true
}

func (p *Page) freeAllocation(offset, count int, fenceValue uint64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.stale = append(p.stale, staleRange{offset: offset, count: count, fenceValue: fenceValue})
}

// ReleaseStaleDescriptors returns every freed range whose fence value has been reached to the
// page's free list. It returns the number of slots reclaimed.
func (p *Page) ReleaseStaleDescriptors(completedFenceValue uint64) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	reclaimed := 0
	kept := p.stale[:0]
	for _, stale := range p.stale {
		if stale.fenceValue > completedFenceValue {
			kept = append(kept, stale)
			continue
		}

		p.free.Release(stale.offset, stale.count)
		p.live.Delete(stale.offset)
		reclaimed += stale.count
	}
	p.stale = kept

	gfxutils.DebugValidate(&p.free)
	return reclaimed
}

func (p *Page) Destroy() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.heap == nil {
		panic("attempting to destroy a descriptor page that was never initialized")
	}

	if !p.free.IsEmpty() {
		p.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED DESCRIPTORS] descriptor page destroyed with live allocations",
			slog.Int("page", p.id),
			slog.String("heapType", p.heapType.String()),
			slog.Int("allocations", p.live.Count()),
			slog.Int("pendingRanges", len(p.stale)),
			slog.Int("usedSlots", p.free.Capacity()-p.free.FreeCount()),
		)
		return errors.Newf("descriptor page %d still holds %d allocations", p.id, p.live.Count())
	}

	p.heap.Release()
	p.heap = nil
	return nil
}

func (p *Page) Validate() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.heap == nil {
		return errors.New("descriptor page has no backing heap")
	}
	if p.increment <= 0 {
		return errors.Newf("descriptor page has invalid handle increment %d", p.increment)
	}
	if p.live.Count() < len(p.stale) {
		return errors.Newf("descriptor page has %d pending ranges but only %d allocations", len(p.stale), p.live.Count())
	}

	used := 0
	p.live.Iter(func(offset int, count int) bool {
		used += count
		return false
	})
	if used != p.free.Capacity()-p.free.FreeCount() {
		return errors.Newf("descriptor page allocations cover %d slots but %d are in use", used, p.free.Capacity()-p.free.FreeCount())
	}
	if p.live.Count() == 0 && !p.free.IsEmpty() {
		return errors.Newf("descriptor page has no allocations but only %d of %d slots are free", p.free.FreeCount(), p.free.Capacity())
	}

	return p.free.Validate()
}

func (p *Page) AddDetailedStatistics(stats *gfxutils.DetailedStatistics) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	stats.PageCount++
	stats.PageDescriptors += p.free.Capacity()
	p.live.Iter(func(offset int, count int) bool {
		stats.AddAllocation(count)
		return false
	})

	for _, r := range p.free.ranges {
		stats.AddFreeRange(r.size)
	}
}

func (p *Page) PrintDetailedMap(json jwriter.ObjectState) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	json.Name("HeapType").String(p.heapType.String())
	json.Name("TotalDescriptors").Int(p.free.Capacity())
	json.Name("FreeDescriptors").Int(p.free.FreeCount())
	json.Name("Allocations").Int(p.live.Count())
	json.Name("PendingRanges").Int(len(p.stale))

	rangeArray := json.Name("FreeRanges").Array()
	defer rangeArray.End()

	for _, r := range p.free.ranges {
		obj := rangeArray.Object()
		obj.Name("Offset").Int(r.offset)
		obj.Name("Size").Int(r.size)
		obj.End()
	}
}
