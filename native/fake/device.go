// Package fake provides a deterministic software implementation of the native interfaces. Every
// command is recorded into an inspectable log and fences complete on demand, which makes it
// suitable for tests and for running the recorder without a GPU.
package fake

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/vkngwrapper/recorder/native"
)

const (
	cpuHeapBase      uintptr = 0x10000
	gpuHeapBase      uint64  = 0x1_0000_0000
	resourceBase     uint64  = 0x10_0000_0000
	resourceAlign    uint64  = 0x10000
	heapAddressSlack         = 0x1000
)

// DescriptorKind identifies which view creation call wrote a descriptor
type DescriptorKind string

const (
	DescriptorSRV DescriptorKind = "SRV"
	DescriptorUAV DescriptorKind = "UAV"
	DescriptorRTV DescriptorKind = "RTV"
	DescriptorDSV DescriptorKind = "DSV"
	DescriptorCBV DescriptorKind = "CBV"
)

// Descriptor is the content of one descriptor slot
type Descriptor struct {
	Kind     DescriptorKind
	Resource native.Resource
	// Address is the buffer location of a constant buffer view
	Address uint64
	// MipSlice is set for UAVs and RTVs
	MipSlice int
}

// Device implements native.Device. The zero value is not usable, call NewDevice.
type Device struct {
	mutex sync.Mutex

	increments      [native.DescriptorHeapTypeCount]int
	nextCPUHeap     uintptr
	nextGPUHeap     uint64
	nextResource    uint64
	descriptors     map[uintptr]Descriptor
	formatOverrides map[gputypes.TextureFormat]native.FormatSupport

	// ManualFences makes queues created by this device hold signals until CompletePending
	// is called on them. Otherwise signals complete as soon as they are enqueued.
	ManualFences bool

	// FailCreateResource is returned from the next CreateCommittedResource call and cleared
	FailCreateResource error

	Heaps     []*DescriptorHeap
	Resources []*Resource
	Lists     []*CommandList
	Queues    []*CommandQueue
}

func NewDevice() *Device {
	return &Device{
		increments: [native.DescriptorHeapTypeCount]int{
			native.DescriptorHeapTypeCBVSRVUAV: 32,
			native.DescriptorHeapTypeSampler:   16,
			native.DescriptorHeapTypeRTV:       32,
			native.DescriptorHeapTypeDSV:       8,
		},
		nextCPUHeap:     cpuHeapBase,
		nextGPUHeap:     gpuHeapBase,
		nextResource:    resourceBase,
		descriptors:     make(map[uintptr]Descriptor),
		formatOverrides: make(map[gputypes.TextureFormat]native.FormatSupport),
	}
}

var _ native.Device = &Device{}

// SetIncrementSize overrides the descriptor stride reported for a heap type. Heaps created
// afterward use the new stride.
func (d *Device) SetIncrementSize(heapType native.DescriptorHeapType, size int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.increments[heapType] = size
}

// SetFormatSupport overrides the result of CheckFormatSupport for a format
func (d *Device) SetFormatSupport(format gputypes.TextureFormat, support native.FormatSupport) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.formatOverrides[format] = support
}

func (d *Device) DescriptorHandleIncrementSize(heapType native.DescriptorHeapType) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.increments[heapType]
}

func (d *Device) CreateDescriptorHeap(desc native.DescriptorHeapDesc) (native.DescriptorHeap, error) {
	if desc.NumDescriptors < 1 {
		return nil, errors.Newf("descriptor heap must hold at least one descriptor, got %d", desc.NumDescriptors)
	}
	if desc.ShaderVisible && !desc.Type.ShaderVisible() {
		return nil, errors.Newf("%s descriptor heaps cannot be shader visible", desc.Type)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	increment := d.increments[desc.Type]
	span := desc.NumDescriptors * increment

	heap := &DescriptorHeap{
		device:    d,
		desc:      desc,
		increment: increment,
		cpuStart:  native.CPUDescriptorHandle{Ptr: d.nextCPUHeap},
	}
	d.nextCPUHeap += uintptr(span + heapAddressSlack)

	if desc.ShaderVisible {
		heap.gpuStart = native.GPUDescriptorHandle{Ptr: d.nextGPUHeap}
		d.nextGPUHeap += uint64(span + heapAddressSlack)
	}

	d.Heaps = append(d.Heaps, heap)
	return heap, nil
}

func (d *Device) CopyDescriptorsSimple(count int, dst native.CPUDescriptorHandle, src native.CPUDescriptorHandle, heapType native.DescriptorHeapType) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	increment := d.increments[heapType]
	for i := 0; i < count; i++ {
		d.copyDescriptor(dst.Offset(i, increment), src.Offset(i, increment))
	}
}

func (d *Device) CopyDescriptors(dstStarts []native.CPUDescriptorHandle, dstSizes []int, srcStarts []native.CPUDescriptorHandle, srcSizes []int, heapType native.DescriptorHeapType) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	increment := d.increments[heapType]

	var sources []native.CPUDescriptorHandle
	for i, start := range srcStarts {
		size := 1
		if srcSizes != nil {
			size = srcSizes[i]
		}
		for j := 0; j < size; j++ {
			sources = append(sources, start.Offset(j, increment))
		}
	}

	next := 0
	for i, start := range dstStarts {
		size := 1
		if dstSizes != nil {
			size = dstSizes[i]
		}
		for j := 0; j < size && next < len(sources); j++ {
			d.copyDescriptor(start.Offset(j, increment), sources[next])
			next++
		}
	}
}

func (d *Device) copyDescriptor(dst, src native.CPUDescriptorHandle) {
	descriptor, ok := d.descriptors[src.Ptr]
	if !ok {
		delete(d.descriptors, dst.Ptr)
		return
	}
	d.descriptors[dst.Ptr] = descriptor
}

// DescriptorAt returns the descriptor written to a CPU handle
func (d *Device) DescriptorAt(handle native.CPUDescriptorHandle) (Descriptor, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	descriptor, ok := d.descriptors[handle.Ptr]
	return descriptor, ok
}

// DescriptorAtGPU returns the descriptor visible to shaders at a GPU handle
func (d *Device) DescriptorAtGPU(handle native.GPUDescriptorHandle) (Descriptor, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	for _, heap := range d.Heaps {
		if !heap.desc.ShaderVisible || handle.Ptr < heap.gpuStart.Ptr {
			continue
		}
		offset := handle.Ptr - heap.gpuStart.Ptr
		if offset >= uint64(heap.desc.NumDescriptors*heap.increment) {
			continue
		}

		descriptor, ok := d.descriptors[heap.cpuStart.Ptr+uintptr(offset)]
		return descriptor, ok
	}

	return Descriptor{}, false
}

func (d *Device) writeDescriptor(dst native.CPUDescriptorHandle, descriptor Descriptor) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.descriptors[dst.Ptr] = descriptor
}

func (d *Device) CreateCommittedResource(heap native.HeapType, desc native.ResourceDesc, initialState native.ResourceState, clearValue *native.ClearValue) (native.Resource, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.FailCreateResource != nil {
		err := d.FailCreateResource
		d.FailCreateResource = nil
		return nil, err
	}
	if desc.Dimension == native.ResourceDimensionUnknown {
		return nil, errors.New("resource dimension must be provided")
	}
	if desc.Width < 1 {
		return nil, errors.Newf("resource width must be positive, got %d", desc.Width)
	}

	resource := &Resource{
		desc:         desc,
		heap:         heap,
		InitialState: initialState,
		address:      d.nextResource,
	}
	if clearValue != nil {
		value := *clearValue
		resource.ClearValue = &value
	}
	if desc.Dimension == native.ResourceDimensionBuffer && heap != native.HeapTypeDefault {
		resource.data = make([]byte, desc.Width)
	}

	size := uint64(desc.Width)
	if desc.Dimension != native.ResourceDimensionBuffer {
		size = uint64(desc.Width) * uint64(max(desc.Height, 1)) * uint64(max(desc.DepthOrArraySize, 1)) * 4
	}
	d.nextResource += (size + resourceAlign - 1) &^ (resourceAlign - 1)

	d.Resources = append(d.Resources, resource)
	return resource, nil
}

func (d *Device) CreateCommandAllocator(listType native.CommandListType) (native.CommandAllocator, error) {
	return &CommandAllocator{listType: listType}, nil
}

func (d *Device) CreateCommandList(listType native.CommandListType, allocator native.CommandAllocator) (native.CommandList, error) {
	fakeAllocator, ok := allocator.(*CommandAllocator)
	if !ok {
		return nil, errors.New("command allocator was not created by the fake device")
	}
	if fakeAllocator.listType != listType {
		return nil, errors.Newf("a %s command list cannot be created from a %s allocator", listType, fakeAllocator.listType)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	list := &CommandList{
		device:    d,
		listType:  listType,
		allocator: fakeAllocator,
	}
	d.Lists = append(d.Lists, list)
	return list, nil
}

func (d *Device) CreateCommandQueue(listType native.CommandListType) (native.CommandQueue, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	queue := &CommandQueue{
		listType: listType,
		manual:   d.ManualFences,
	}
	d.Queues = append(d.Queues, queue)
	return queue, nil
}

func (d *Device) CreateFence(initialValue uint64) (native.Fence, error) {
	return NewFence(initialValue), nil
}

func (d *Device) CreateRootSignature(desc native.RootSignatureDesc) (native.RootSignature, error) {
	for i, parameter := range desc.Parameters {
		if parameter.Type == native.RootParameterTypeDescriptorTable && len(parameter.Ranges) == 0 {
			return nil, errors.Newf("root parameter %d is a descriptor table with no ranges", i)
		}
	}

	return &RootSignature{Desc: desc}, nil
}

func (d *Device) CheckFormatSupport(format gputypes.TextureFormat) (native.FormatSupport, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if support, ok := d.formatOverrides[format]; ok {
		return support, nil
	}

	switch format {
	case gputypes.TextureFormatUndefined:
		return 0, errors.New("cannot query support for an undefined format")
	case gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth32Float:
		return native.FormatSupportDepthStencil | native.FormatSupportShaderResource, nil
	case gputypes.TextureFormatBGRA8Unorm:
		return native.FormatSupportShaderResource | native.FormatSupportRenderTarget, nil
	default:
		return native.FormatSupportShaderResource | native.FormatSupportRenderTarget | native.FormatSupportUnorderedAccess, nil
	}
}

func (d *Device) CreateShaderResourceView(resource native.Resource, desc *native.ShaderResourceViewDesc, dst native.CPUDescriptorHandle) {
	d.writeDescriptor(dst, Descriptor{Kind: DescriptorSRV, Resource: resource})
}

func (d *Device) CreateUnorderedAccessView(resource native.Resource, counter native.Resource, desc *native.UnorderedAccessViewDesc, dst native.CPUDescriptorHandle) {
	descriptor := Descriptor{Kind: DescriptorUAV, Resource: resource}
	if desc != nil {
		descriptor.MipSlice = desc.MipSlice
	}
	d.writeDescriptor(dst, descriptor)
}

func (d *Device) CreateRenderTargetView(resource native.Resource, desc *native.RenderTargetViewDesc, dst native.CPUDescriptorHandle) {
	descriptor := Descriptor{Kind: DescriptorRTV, Resource: resource}
	if desc != nil {
		descriptor.MipSlice = desc.MipSlice
	}
	d.writeDescriptor(dst, descriptor)
}

func (d *Device) CreateDepthStencilView(resource native.Resource, dst native.CPUDescriptorHandle) {
	d.writeDescriptor(dst, Descriptor{Kind: DescriptorDSV, Resource: resource})
}

func (d *Device) CreateConstantBufferView(desc native.ConstantBufferViewDesc, dst native.CPUDescriptorHandle) {
	d.writeDescriptor(dst, Descriptor{Kind: DescriptorCBV, Address: desc.BufferLocation})
}
