package dynheap

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/recorder/internal/utils"
	"github.com/vkngwrapper/recorder/native"
)

// Marker identifies a point on a queue's fence timeline
type Marker struct {
	Fence native.Fence
	Value uint64
}

// Reached returns true once the GPU has passed the marker. A marker without a fence is
// always reached.
func (m Marker) Reached() bool {
	return m.Fence == nil || m.Fence.CompletedValue() >= m.Value
}

type retiredHeap struct {
	heap   native.DescriptorHeap
	marker Marker
}

// HeapPool owns the shader-visible descriptor heaps of one heap type and shares them between
// command lists. A heap handed back with Retire is not reused until its marker is reached.
type HeapPool struct {
	logger             *slog.Logger
	device             native.Device
	heapType           native.DescriptorHeapType
	descriptorsPerHeap int

	mutex     utils.OptionalMutex
	available []native.DescriptorHeap
	retired   []retiredHeap
	created   []native.DescriptorHeap
}

func NewHeapPool(logger *slog.Logger, device native.Device, heapType native.DescriptorHeapType, descriptorsPerHeap int, externallySynchronized bool) (*HeapPool, error) {
	if !heapType.ShaderVisible() {
		return nil, errors.Newf("%s descriptor heaps cannot be shader visible", heapType)
	}
	if descriptorsPerHeap < 1 {
		return nil, errors.Newf("shader-visible heaps must hold at least one descriptor, got %d", descriptorsPerHeap)
	}

	return &HeapPool{
		logger:             logger,
		device:             device,
		heapType:           heapType,
		descriptorsPerHeap: descriptorsPerHeap,
		mutex:              utils.OptionalMutex{UseMutex: !externallySynchronized},
	}, nil
}

func (p *HeapPool) HeapType() native.DescriptorHeapType { return p.heapType }
func (p *HeapPool) DescriptorsPerHeap() int { return p.descriptorsPerHeap }

// Request returns a heap whose previous users have all finished on the GPU, creating one if
// necessary
func (p *HeapPool) Request() (native.DescriptorHeap, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.reclaimLocked()

	if len(p.available) > 0 {
		heap := p.available[0]
		p.available = p.available[1:]
		return heap, nil
	}

	heap, err := p.device.CreateDescriptorHeap(native.DescriptorHeapDesc{
		Type:           p.heapType,
		NumDescriptors: p.descriptorsPerHeap,
		ShaderVisible:  true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create shader-visible %s heap", p.heapType)
	}
	p.created = append(p.created, heap)

	p.logger.LogAttrs(context.Background(), slog.LevelDebug, "HeapPool::Request created heap",
		slog.String("heapType", p.heapType.String()),
		slog.Int("descriptors", p.descriptorsPerHeap),
		slog.Int("heapCount", len(p.created)),
	)

	return heap, nil
}

func (p *HeapPool) reclaimLocked() {
	kept := p.retired[:0]
	for _, retired := range p.retired {
		if retired.marker.Reached() {
			p.available = append(p.available, retired.heap)
			continue
		}
		kept = append(kept, retired)
	}
	for i := len(kept); i < len(p.retired); i++ {
		p.retired[i] = retiredHeap{}
	}
	p.retired = kept
}

// Retire hands heaps back to the pool. They become available once marker is reached.
func (p *HeapPool) Retire(heaps []native.DescriptorHeap, marker Marker) {
	if len(heaps) == 0 {
		return
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, heap := range heaps {
		p.retired = append(p.retired, retiredHeap{heap: heap, marker: marker})
	}
}

// HeapCount returns the number of heaps the pool has created
func (p *HeapPool) HeapCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return len(p.created)
}

// AvailableCount returns the number of heaps that can be handed out without creating a new one
func (p *HeapPool) AvailableCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.reclaimLocked()
	return len(p.available)
}

// Destroy releases every heap the pool created. Heaps that are still in use by a command list
// or whose marker has not been reached are logged and reported in the returned error.
func (p *HeapPool) Destroy() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.reclaimLocked()

	outstanding := len(p.created) - len(p.available)
	for _, heap := range p.created {
		heap.Release()
	}
	p.created = nil
	p.available = nil
	p.retired = nil

	if outstanding > 0 {
		p.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED DESCRIPTORS] shader-visible heaps destroyed while in use",
			slog.String("heapType", p.heapType.String()),
			slog.Int("heaps", outstanding),
		)
		return errors.Newf("%d shader-visible %s heaps were still in use", outstanding, p.heapType)
	}

	return nil
}
