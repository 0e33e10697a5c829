package upload

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/recorder/gfxutils"
	"github.com/vkngwrapper/recorder/native"
)

// DefaultPageSize is the page size used when Buffer.Init receives 0
const DefaultPageSize int = 2 * 1024 * 1024

// ErrAllocationTooLarge is returned when a single upload allocation cannot fit in one page
var ErrAllocationTooLarge = errors.New("upload allocation exceeds the upload page size")

// Allocation is a region of CPU-writable memory that the GPU can read from
type Allocation struct {
	// CPU is the mapped memory backing the allocation, exactly as long as the requested size
	CPU []byte
	// GPU is the GPU virtual address of the first byte of CPU
	GPU uint64
	// Resource and Offset locate the allocation for copy commands
	Resource native.Resource
	Offset   int
}

type page struct {
	resource native.Resource
	data     []byte
	base     uint64
	offset   int
}

func (p *page) hasSpace(size, alignment int) bool {
	return gfxutils.AlignUp(p.offset, alignment)+size <= len(p.data)
}

func (p *page) allocate(size, alignment int) Allocation {
	offset := gfxutils.AlignUp(p.offset, alignment)
	p.offset = offset + size

	return Allocation{
		CPU:      p.data[offset : offset+size : offset+size],
		GPU:      p.base + uint64(offset),
		Resource: p.resource,
		Offset:   offset,
	}
}

// Buffer is a linear allocator over a set of persistently-mapped upload pages. Memory is only
// reclaimed in bulk by Reset, which must not be called until the GPU has finished reading
// everything allocated since the last Reset.
type Buffer struct {
	device   native.Device
	pageSize int

	pages     []*page
	available []*page
	current   *page
}

func (b *Buffer) Init(device native.Device, pageSize int) error {
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize < 0 {
		return errors.Newf("upload page size must be positive, got %d", pageSize)
	}

	b.device = device
	b.pageSize = pageSize
	return nil
}

func (b *Buffer) PageSize() int { return b.pageSize }

// PageCount returns the number of pages the buffer has created
func (b *Buffer) PageCount() int { return len(b.pages) }

// Allocate returns size bytes of upload memory aligned to alignment, which must be a power of two
func (b *Buffer) Allocate(size, alignment int) (Allocation, error) {
	if size > b.pageSize {
		return Allocation{}, errors.Wrapf(ErrAllocationTooLarge, "requested %d bytes with a page size of %d", size, b.pageSize)
	}
	err := gfxutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return Allocation{}, err
	}

	if b.current == nil || !b.current.hasSpace(size, alignment) {
		b.current, err = b.requestPage()
		if err != nil {
			return Allocation{}, err
		}
	}

	return b.current.allocate(size, alignment), nil
}

func (b *Buffer) requestPage() (*page, error) {
	if len(b.available) > 0 {
		next := b.available[0]
		b.available = b.available[1:]
		return next, nil
	}

	resource, err := b.device.CreateCommittedResource(native.HeapTypeUpload, native.BufferDesc(b.pageSize, 0), native.ResourceStateGenericRead, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create upload page")
	}

	data, err := resource.Map()
	if err != nil {
		resource.Release()
		return nil, errors.Wrap(err, "failed to map upload page")
	}

	next := &page{
		resource: resource,
		data:     data,
		base:     resource.GPUVirtualAddress(),
	}
	b.pages = append(b.pages, next)
	return next, nil
}

// Reset makes every page available again
func (b *Buffer) Reset() {
	b.current = nil
	b.available = append(b.available[:0], b.pages...)
	for _, p := range b.pages {
		p.offset = 0
	}
}

// Destroy unmaps and releases every page
func (b *Buffer) Destroy() {
	for _, p := range b.pages {
		p.resource.Unmap()
		p.resource.Release()
	}
	b.pages = nil
	b.available = nil
	b.current = nil
}
