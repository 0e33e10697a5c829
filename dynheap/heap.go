package dynheap

import (
	"context"
	"log/slog"
	"math/bits"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/recorder/native"
)

// MaxDescriptorTables is the number of root parameters a heap can track as descriptor tables
const MaxDescriptorTables = 32

// ErrDescriptorTableTooLarge is returned when staged descriptors do not fit in their
// descriptor table, or a root signature's tables do not fit in the heap
var ErrDescriptorTableTooLarge = errors.New("descriptors exceed the capacity of the descriptor table")

// RootSignatureLayout describes the descriptor tables of a root signature
type RootSignatureLayout interface {
	// DescriptorTableBitMask returns a mask with one bit set for every root parameter that is a
	// descriptor table of the provided heap type
	DescriptorTableBitMask(heapType native.DescriptorHeapType) uint32
	// NumDescriptors returns the number of descriptors in the table at rootIndex
	NumDescriptors(rootIndex int) int
}

// Binder is the command list a heap commits into. SetDescriptorHeap is called whenever the heap
// switches to a new shader-visible heap, and must rebind all of the list's descriptor heaps.
type Binder interface {
	SetDescriptorHeap(heapType native.DescriptorHeapType, heap native.DescriptorHeap)
	Native() native.CommandList
}

type tableCache struct {
	numDescriptors int
	offset         int
}

// Heap stages CPU-visible descriptors for the descriptor tables of the bound root signature and
// copies them into a shader-visible heap right before a draw or dispatch. A Heap belongs to a
// single command list and is not safe for concurrent use.
type Heap struct {
	logger    *slog.Logger
	device    native.Device
	pool      *HeapPool
	heapType  native.DescriptorHeapType
	increment int

	handleCache []native.CPUDescriptorHandle
	tables      [MaxDescriptorTables]tableCache
	tableMask   uint32
	staleMask   uint32

	current    native.DescriptorHeap
	currentCPU native.CPUDescriptorHandle
	currentGPU native.GPUDescriptorHandle
	numFree    int
	used       []native.DescriptorHeap
}

// NewHeap creates a staging heap drawing shader-visible heaps from pool
func NewHeap(logger *slog.Logger, device native.Device, pool *HeapPool) *Heap {
	return &Heap{
		logger:      logger,
		device:      device,
		pool:        pool,
		heapType:    pool.HeapType(),
		increment:   device.DescriptorHandleIncrementSize(pool.HeapType()),
		handleCache: make([]native.CPUDescriptorHandle, pool.DescriptorsPerHeap()),
	}
}

func (h *Heap) HeapType() native.DescriptorHeapType { return h.heapType }

// ParseRootSignature lays out the staging cache for the descriptor tables of a newly bound
// root signature. Everything previously staged is discarded.
func (h *Heap) ParseRootSignature(layout RootSignatureLayout) error {
	h.staleMask = 0
	h.tableMask = layout.DescriptorTableBitMask(h.heapType)
	h.tables = [MaxDescriptorTables]tableCache{}

	offset := 0
	for mask := h.tableMask; mask != 0; mask &= mask - 1 {
		rootIndex := bits.TrailingZeros32(mask)
		numDescriptors := layout.NumDescriptors(rootIndex)

		h.tables[rootIndex] = tableCache{numDescriptors: numDescriptors, offset: offset}
		offset += numDescriptors
	}

	if offset > len(h.handleCache) {
		h.tableMask = 0
		h.tables = [MaxDescriptorTables]tableCache{}
		return errors.Wrapf(ErrDescriptorTableTooLarge, "root signature needs %d %s descriptors but a shader-visible heap holds %d", offset, h.heapType, len(h.handleCache))
	}

	for i := range h.handleCache[:offset] {
		h.handleCache[i] = native.CPUDescriptorHandle{}
	}

	return nil
}

// StageDescriptors copies the handles of count contiguous CPU-visible descriptors beginning
// at src into the table at rootIndex, starting offset descriptors into the table. Nothing is
// copied to the GPU until the next commit.
func (h *Heap) StageDescriptors(rootIndex, offset, count int, src native.CPUDescriptorHandle) error {
	if rootIndex < 0 || rootIndex >= MaxDescriptorTables {
		return errors.Newf("root index %d is outside of the %d trackable root parameters", rootIndex, MaxDescriptorTables)
	}
	if h.tableMask&(1<<uint(rootIndex)) == 0 {
		return errors.Newf("root parameter %d is not a %s descriptor table in the bound root signature", rootIndex, h.heapType)
	}

	table := h.tables[rootIndex]
	if offset < 0 || count < 0 || offset+count > table.numDescriptors {
		return errors.Wrapf(ErrDescriptorTableTooLarge, "staging %d descriptors at offset %d into root parameter %d with %d descriptors", count, offset, rootIndex, table.numDescriptors)
	}

	for i := 0; i < count; i++ {
		h.handleCache[table.offset+offset+i] = src.Offset(i, h.increment)
	}
	h.staleMask |= 1 << uint(rootIndex)

	return nil
}

// StaleDescriptorCount returns the number of descriptors the next commit will copy
func (h *Heap) StaleDescriptorCount() int {
	count := 0
	for mask := h.staleMask; mask != 0; mask &= mask - 1 {
		count += h.tables[bits.TrailingZeros32(mask)].numDescriptors
	}
	return count
}

func (h *Heap) requestHeap(binder Binder) error {
	heap, err := h.pool.Request()
	if err != nil {
		return err
	}

	if h.current != nil {
		h.logger.LogAttrs(context.Background(), slog.LevelDebug, "Heap::requestHeap rollover",
			slog.String("heapType", h.heapType.String()),
			slog.Int("freeDescriptors", h.numFree),
		)
	}

	h.current = heap
	h.used = append(h.used, heap)
	h.currentCPU = heap.CPUDescriptorHandleForHeapStart()
	h.currentGPU = heap.GPUDescriptorHandleForHeapStart()
	h.numFree = h.pool.DescriptorsPerHeap()

	binder.SetDescriptorHeap(h.heapType, heap)

	// Tables committed into the old heap are no longer visible, so they all have to be copied again
	h.staleMask = h.tableMask
	return nil
}

func (h *Heap) commitStagedDescriptors(binder Binder, setTable func(rootIndex int, base native.GPUDescriptorHandle)) error {
	numStale := h.StaleDescriptorCount()
	if numStale == 0 {
		return nil
	}

	if h.current == nil || numStale > h.numFree {
		err := h.requestHeap(binder)
		if err != nil {
			return err
		}
	}

	for mask := h.staleMask; mask != 0; mask &= mask - 1 {
		rootIndex := bits.TrailingZeros32(mask)
		table := h.tables[rootIndex]
		if table.numDescriptors == 0 {
			continue
		}

		h.device.CopyDescriptors(
			[]native.CPUDescriptorHandle{h.currentCPU}, []int{table.numDescriptors},
			h.handleCache[table.offset:table.offset+table.numDescriptors], nil,
			h.heapType,
		)
		setTable(rootIndex, h.currentGPU)

		h.currentCPU = h.currentCPU.Offset(table.numDescriptors, h.increment)
		h.currentGPU = h.currentGPU.Offset(table.numDescriptors, h.increment)
		h.numFree -= table.numDescriptors
	}
	h.staleMask = 0

	return nil
}

// CommitStagedDescriptorsForDraw copies every stale table into the shader-visible heap and binds
// it as a graphics root descriptor table
func (h *Heap) CommitStagedDescriptorsForDraw(binder Binder) error {
	return h.commitStagedDescriptors(binder, binder.Native().SetGraphicsRootDescriptorTable)
}

// CommitStagedDescriptorsForDispatch copies every stale table into the shader-visible heap and
// binds it as a compute root descriptor table
func (h *Heap) CommitStagedDescriptorsForDispatch(binder Binder) error {
	return h.commitStagedDescriptors(binder, binder.Native().SetComputeRootDescriptorTable)
}

// CopyDescriptor immediately copies a single CPU-visible descriptor into the shader-visible heap
// and returns its GPU handle
func (h *Heap) CopyDescriptor(binder Binder, src native.CPUDescriptorHandle) (native.GPUDescriptorHandle, error) {
	if h.current == nil || h.numFree < 1 {
		err := h.requestHeap(binder)
		if err != nil {
			return native.GPUDescriptorHandle{}, err
		}
	}

	gpu := h.currentGPU
	h.device.CopyDescriptorsSimple(1, h.currentCPU, src, h.heapType)

	h.currentCPU = h.currentCPU.Offset(1, h.increment)
	h.currentGPU = h.currentGPU.Offset(1, h.increment)
	h.numFree--

	return gpu, nil
}

// Reset discards all staged descriptors and hands every shader-visible heap used since the
// last reset back to the pool, to be reused once marker is reached
func (h *Heap) Reset(marker Marker) {
	h.pool.Retire(h.used, marker)

	h.used = h.used[:0]
	h.current = nil
	h.currentCPU = native.CPUDescriptorHandle{}
	h.currentGPU = native.GPUDescriptorHandle{}
	h.numFree = 0
	h.tableMask = 0
	h.staleMask = 0
	h.tables = [MaxDescriptorTables]tableCache{}
}
