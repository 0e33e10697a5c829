package fake

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/recorder/native"
)

type DescriptorHeap struct {
	device    *Device
	desc      native.DescriptorHeapDesc
	increment int
	cpuStart  native.CPUDescriptorHandle
	gpuStart  native.GPUDescriptorHandle
	Released  bool
}

var _ native.DescriptorHeap = &DescriptorHeap{}

func (h *DescriptorHeap) Desc() native.DescriptorHeapDesc { return h.desc }
func (h *DescriptorHeap) CPUDescriptorHandleForHeapStart() native.CPUDescriptorHandle {
	return h.cpuStart
}
func (h *DescriptorHeap) GPUDescriptorHandleForHeapStart() native.GPUDescriptorHandle {
	return h.gpuStart
}
func (h *DescriptorHeap) Release() { h.Released = true }

type Resource struct {
	mutex        sync.Mutex
	desc         native.ResourceDesc
	heap         native.HeapType
	address      uint64
	data         []byte
	name         string
	mapCount     int
	InitialState native.ResourceState
	ClearValue   *native.ClearValue
	Released     bool
}

var _ native.Resource = &Resource{}

func (r *Resource) Desc() native.ResourceDesc { return r.desc }
func (r *Resource) HeapType() native.HeapType { return r.heap }
func (r *Resource) GPUVirtualAddress() uint64 { return r.address }
func (r *Resource) SetName(name string) { r.name = name }
func (r *Resource) Name() string { return r.name }
func (r *Resource) Release() { r.Released = true }

// Data returns the backing memory of an upload or readback buffer
func (r *Resource) Data() []byte {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.data
}

func (r *Resource) Map() ([]byte, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.data == nil {
		return nil, errors.Newf("resource %q is not CPU visible", r.name)
	}
	r.mapCount++
	return r.data, nil
}

func (r *Resource) Unmap() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.mapCount == 0 {
		panic("unmapping a resource that is not mapped")
	}
	r.mapCount--
}

type CommandAllocator struct {
	listType   native.CommandListType
	ResetCount int
	Released   bool
}

var _ native.CommandAllocator = &CommandAllocator{}

func (a *CommandAllocator) Reset() error {
	a.ResetCount++
	return nil
}

func (a *CommandAllocator) Release() { a.Released = true }

type RootSignature struct {
	Desc     native.RootSignatureDesc
	Released bool
}

var _ native.RootSignature = &RootSignature{}

func (s *RootSignature) Release() { s.Released = true }
