package descriptor

import (
	"fmt"

	"github.com/vkngwrapper/recorder/native"
)

// Allocation is a contiguous block of CPU-visible descriptors carved from a Page. The zero value
// is a null allocation.
type Allocation struct {
	handle    native.CPUDescriptorHandle
	count     int
	increment int
	offset    int
	page      *Page
}

func (a *Allocation) IsNull() bool { return a.page == nil }
func (a *Allocation) Count() int { return a.count }
func (a *Allocation) Page() *Page { return a.page }

// Handle returns the CPU handle of the descriptor at the provided index within the block
func (a *Allocation) Handle(index int) native.CPUDescriptorHandle {
	if index < 0 || index >= a.count {
		panic(fmt.Sprintf("descriptor index %d is out of range for an allocation of %d descriptors", index, a.count))
	}
	return a.handle.Offset(index, a.increment)
}

// Free hands the block back to its page. The slots will not be reused until
// fenceValue has been reached and the owning allocator releases stale descriptors.
// Freeing a null allocation does nothing.
func (a *Allocation) Free(fenceValue uint64) {
	if a.page == nil {
		return
	}

	a.page.freeAllocation(a.offset, a.count, fenceValue)
	*a = Allocation{}
}
