package descriptor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/recorder/gfxutils"
	"github.com/vkngwrapper/recorder/internal/utils"
	"github.com/vkngwrapper/recorder/native"
)

const (
	// DefaultDescriptorsPerPage is the size of a new page when AllocatorOptions.DescriptorsPerPage is 0
	DefaultDescriptorsPerPage int = 256
)

// DefaultMaxDescriptorsPerHeap returns the number of descriptors a single heap of the provided
// type may hold when AllocatorOptions.MaxDescriptorsPerHeap is 0
func DefaultMaxDescriptorsPerHeap(heapType native.DescriptorHeapType) int {
	switch heapType {
	case native.DescriptorHeapTypeCBVSRVUAV:
		return 1_000_000
	case native.DescriptorHeapTypeSampler:
		return 2048
	default:
		return 1 << 16
	}
}

type AllocatorOptions struct {
	// DescriptorsPerPage is the minimum size of each page the allocator creates
	DescriptorsPerPage int
	// MaxDescriptorsPerHeap is the largest request Allocate will accept
	MaxDescriptorsPerHeap int
	// ExternallySynchronized disables the allocator's internal mutexes. The consumer must
	// guarantee that the allocator and every allocation made from it are only used from one
	// goroutine at a time.
	ExternallySynchronized bool
}

// Allocator hands out blocks of CPU-visible descriptors of a single heap type. Blocks come from
// an active page; when the active page cannot satisfy a request it is retired and a retired page
// that has been completely released, or a brand new page, takes its place.
type Allocator struct {
	logger     *slog.Logger
	device     native.Device
	heapType   native.DescriptorHeapType
	pageSize   int
	maxPerHeap int
	useMutex   bool

	mutex      utils.OptionalMutex
	active     *Page
	retired    []*Page
	nextPageID int
}

func (a *Allocator) Init(logger *slog.Logger, device native.Device, heapType native.DescriptorHeapType, options AllocatorOptions) error {
	if heapType >= native.DescriptorHeapTypeCount {
		return errors.Newf("unknown descriptor heap type %d", heapType)
	}

	a.pageSize = options.DescriptorsPerPage
	if a.pageSize == 0 {
		a.pageSize = DefaultDescriptorsPerPage
	}
	a.maxPerHeap = options.MaxDescriptorsPerHeap
	if a.maxPerHeap == 0 {
		a.maxPerHeap = DefaultMaxDescriptorsPerHeap(heapType)
	}
	if a.pageSize < 1 || a.maxPerHeap < 1 {
		return errors.Newf("descriptor allocator sizes must be positive: page size %d, max per heap %d", a.pageSize, a.maxPerHeap)
	}
	if a.pageSize > a.maxPerHeap {
		return errors.Newf("descriptor page size %d exceeds the maximum heap size %d", a.pageSize, a.maxPerHeap)
	}

	a.logger = logger
	a.device = device
	a.heapType = heapType
	a.useMutex = !options.ExternallySynchronized
	a.mutex.UseMutex = a.useMutex
	a.active = nil
	a.retired = a.retired[:0]
	a.nextPageID = 0

	return nil
}

func (a *Allocator) HeapType() native.DescriptorHeapType { return a.heapType }

// Allocate returns a contiguous block of count descriptors. Requests larger than the maximum
// heap size fail with ErrAllocationTooLarge.
func (a *Allocator) Allocate(count int) (Allocation, error) {
	if count < 1 {
		return Allocation{}, errors.Newf("descriptor count must be positive, got %d", count)
	}
	if count > a.maxPerHeap {
		return Allocation{}, errors.Wrapf(ErrAllocationTooLarge, "requested %d %s descriptors with a limit of %d", count, a.heapType, a.maxPerHeap)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.active != nil {
		allocation, ok := a.active.Allocate(count)
		if ok {
			return allocation, nil
		}

		a.retired = append(a.retired, a.active)
		a.active = nil
	}

	for i, page := range a.retired {
		if page.Capacity() >= count && page.IsEmpty() {
			a.active = page
			a.retired = append(a.retired[:i], a.retired[i+1:]...)
			break
		}
	}

	if a.active == nil {
		page, err := a.createPage(gfxutils.Max(a.pageSize, count))
		if err != nil {
			return Allocation{}, err
		}
		a.active = page
	}

	allocation, ok := a.active.Allocate(count)
	if !ok {
		panic(fmt.Sprintf("descriptor page %d with %d free slots could not satisfy a request for %d descriptors", a.active.ID(), a.active.NumFreeHandles(), count))
	}

	return allocation, nil
}

func (a *Allocator) createPage(size int) (*Page, error) {
	page := &Page{}
	err := page.Init(a.logger, a.device, a.heapType, size, a.nextPageID, a.useMutex)
	if err != nil {
		return nil, err
	}
	a.nextPageID++

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::createPage",
		slog.String("heapType", a.heapType.String()),
		slog.Int("page", page.ID()),
		slog.Int("descriptors", size),
	)

	return page, nil
}

// ReleaseStaleDescriptors reclaims every freed block whose fence value is at or below
// completedFenceValue
func (a *Allocator) ReleaseStaleDescriptors(completedFenceValue uint64) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.active != nil {
		a.active.ReleaseStaleDescriptors(completedFenceValue)
	}
	for _, page := range a.retired {
		page.ReleaseStaleDescriptors(completedFenceValue)
	}
}

// PageCount returns the number of pages owned by the allocator, active and retired
func (a *Allocator) PageCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	count := len(a.retired)
	if a.active != nil {
		count++
	}
	return count
}

// RetiredPageCount returns the number of pages that are waiting to be released before they
// can be used again
func (a *Allocator) RetiredPageCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return len(a.retired)
}

func (a *Allocator) visitPages(visit func(page *Page)) {
	if a.active != nil {
		visit(a.active)
	}
	for _, page := range a.retired {
		visit(page)
	}
}

// Destroy releases every page. Pages that still contain allocations are logged and reported
// in the returned error.
func (a *Allocator) Destroy() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	var err error
	a.visitPages(func(page *Page) {
		err = errors.CombineErrors(err, page.Destroy())
	})
	a.active = nil
	a.retired = nil

	return err
}

func (a *Allocator) Validate() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	var err error
	a.visitPages(func(page *Page) {
		if err != nil {
			return
		}
		if page.HeapType() != a.heapType {
			err = errors.Newf("descriptor page %d has heap type %s in a %s allocator", page.ID(), page.HeapType(), a.heapType)
			return
		}
		err = page.Validate()
	})

	return err
}

func (a *Allocator) AddDetailedStatistics(stats *gfxutils.DetailedStatistics) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.visitPages(func(page *Page) {
		page.AddDetailedStatistics(stats)
	})
}

func (a *Allocator) PrintDetailedMap(writer *jwriter.Writer) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	objState := writer.Object()
	defer objState.End()

	a.visitPages(func(page *Page) {
		pageObj := objState.Name(strconv.Itoa(page.ID())).Object()
		pageObj.Name("Active").Bool(page == a.active)
		page.PrintDetailedMap(pageObj)
		pageObj.End()
	})
}
