package gfx

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
	"github.com/vkngwrapper/recorder/dynheap"
	"github.com/vkngwrapper/recorder/gfxutils"
	"github.com/vkngwrapper/recorder/native"
	"github.com/vkngwrapper/recorder/state"
	"github.com/vkngwrapper/recorder/upload"
)

const (
	constantBufferPlacementAlignment = 256
	textureDataPlacementAlignment    = 512
	textureDataPitchAlignment        = 256
	bufferDataAlignment              = 16
)

// CommandListStatus is where a command list is in its life cycle. Lists are created
// Recording, become Closed when Close is called, and Submitted when a queue executes them.
// Reset returns a list to Recording once the GPU has finished with it.
type CommandListStatus int

const (
	CommandListStatusRecording CommandListStatus = iota
	CommandListStatusClosed
	CommandListStatusSubmitted
)

var commandListStatusMapping = map[CommandListStatus]string{
	CommandListStatusRecording: "Recording",
	CommandListStatusClosed:    "Closed",
	CommandListStatusSubmitted: "Submitted",
}

func (s CommandListStatus) String() string {
	return commandListStatusMapping[s]
}

// SubresourceData is the CPU copy of one subresource's texels. Rows are RowPitch bytes apart.
type SubresourceData struct {
	Data     []byte
	RowPitch int
}

// TextureData is what a TextureLoader decodes
type TextureData struct {
	Desc         native.ResourceDesc
	Subresources []SubresourceData
}

// TextureLoader decodes a texture. It is only called when the texture is not already cached.
type TextureLoader func() (TextureData, error)

// CommandList records commands for one queue type. It tracks the state of every resource it
// touches, stages descriptors for the bound root signatures, and sub-allocates upload memory.
// A CommandList is not safe for concurrent use.
type CommandList struct {
	device    *Device
	listType  native.CommandListType
	native    native.CommandList
	allocator native.CommandAllocator
	status    CommandListStatus
	marker    dynheap.Marker

	tracker      *state.Tracker
	upload       upload.Buffer
	dynamicHeaps [native.DescriptorHeapTypeCount]*dynheap.Heap
	boundHeaps   [native.DescriptorHeapTypeCount]native.DescriptorHeap

	graphicsRootSignature *RootSignature
	computeRootSignature  *RootSignature

	tracked       *swiss.Map[uuid.UUID, *lifetime]
	intermediates []native.Resource
	followUp      *CommandList
}

var _ dynheap.Binder = &CommandList{}

func newCommandList(device *Device, listType native.CommandListType) (*CommandList, error) {
	allocator, err := device.native.CreateCommandAllocator(listType)
	if err != nil {
		return nil, deviceFailure(err, "failed to create %s command allocator", listType)
	}

	nativeList, err := device.native.CreateCommandList(listType, allocator)
	if err != nil {
		allocator.Release()
		return nil, deviceFailure(err, "failed to create %s command list", listType)
	}

	list := &CommandList{
		device:    device,
		listType:  listType,
		native:    nativeList,
		allocator: allocator,
		tracker:   state.NewTracker(device.registry),
		tracked:   swiss.NewMap[uuid.UUID, *lifetime](16),
	}

	err = list.upload.Init(device.native, device.options.UploadPageSize)
	if err != nil {
		nativeList.Release()
		allocator.Release()
		return nil, err
	}

	if listType != native.CommandListTypeCopy {
		for heapType, pool := range device.heapPools {
			if pool != nil {
				list.dynamicHeaps[heapType] = dynheap.NewHeap(device.logger, device.native, pool)
			}
		}
	}

	return list, nil
}

func (l *CommandList) Device() *Device { return l.device }
func (l *CommandList) Type() native.CommandListType { return l.listType }
func (l *CommandList) Native() native.CommandList { return l.native }
func (l *CommandList) Status() CommandListStatus { return l.status }

// TrackedObjectCount returns the number of resources and root signatures the list keeps alive
func (l *CommandList) TrackedObjectCount() int { return l.tracked.Count() }

func (l *CommandList) checkRecording(operation string) error {
	if l.status != CommandListStatusRecording {
		return errors.Wrapf(ErrInvalidState, "%s on a command list that is %s", operation, l.status)
	}
	return nil
}

func (l *CommandList) trackObject(object Tracked) {
	life := object.life()
	if _, ok := l.tracked.Get(life.id); ok {
		return
	}
	life.refs.Add(1)
	l.tracked.Put(life.id, life)
}

// SetDescriptorHeap binds a shader-visible heap and rebinds every other heap bound to the list
func (l *CommandList) SetDescriptorHeap(heapType native.DescriptorHeapType, heap native.DescriptorHeap) {
	if l.boundHeaps[heapType] == heap {
		return
	}
	l.boundHeaps[heapType] = heap

	heaps := make([]native.DescriptorHeap, 0, len(l.boundHeaps))
	for _, bound := range l.boundHeaps {
		if bound != nil {
			heaps = append(heaps, bound)
		}
	}
	l.native.SetDescriptorHeaps(heaps)
}

// TransitionBarrier requests that a resource, or one of its subresources, be in stateAfter
// before the next command that uses it. Barriers are batched until a draw, dispatch or copy
// flushes them, or immediately when flushBarriers is true.
func (l *CommandList) TransitionBarrier(resource TrackedResource, stateAfter native.ResourceState, subresource uint32, flushBarriers bool) error {
	err := l.checkRecording("TransitionBarrier")
	if err != nil {
		return err
	}
	if resource == nil || resource.Native() == nil {
		return errors.New("cannot transition a nil resource")
	}

	l.tracker.TransitionResource(resource, stateAfter, subresource)
	l.trackObject(resource)

	if flushBarriers {
		l.tracker.FlushResourceBarriers(l.native)
	}
	return nil
}

// UAVBarrier orders unordered access to a resource. A nil resource orders all unordered access.
func (l *CommandList) UAVBarrier(resource TrackedResource, flushBarriers bool) error {
	err := l.checkRecording("UAVBarrier")
	if err != nil {
		return err
	}

	var tracked state.Resource
	if resource != nil {
		tracked = resource
		l.trackObject(resource)
	}
	l.tracker.UAVBarrier(tracked)

	if flushBarriers {
		l.tracker.FlushResourceBarriers(l.native)
	}
	return nil
}

// AliasingBarrier indicates that after takes over memory shared with before. Either may be nil.
func (l *CommandList) AliasingBarrier(before, after TrackedResource, flushBarriers bool) error {
	err := l.checkRecording("AliasingBarrier")
	if err != nil {
		return err
	}

	var trackedBefore, trackedAfter state.Resource
	if before != nil {
		trackedBefore = before
		l.trackObject(before)
	}
	if after != nil {
		trackedAfter = after
		l.trackObject(after)
	}
	l.tracker.AliasBarrier(trackedBefore, trackedAfter)

	if flushBarriers {
		l.tracker.FlushResourceBarriers(l.native)
	}
	return nil
}

// FlushResourceBarriers records every batched barrier
func (l *CommandList) FlushResourceBarriers() error {
	err := l.checkRecording("FlushResourceBarriers")
	if err != nil {
		return err
	}

	l.tracker.FlushResourceBarriers(l.native)
	return nil
}

func (l *CommandList) CopyResource(dst, src TrackedResource) error {
	err := l.TransitionBarrier(dst, native.ResourceStateCopyDest, native.AllSubresources, false)
	if err != nil {
		return err
	}
	err = l.TransitionBarrier(src, native.ResourceStateCopySource, native.AllSubresources, true)
	if err != nil {
		return err
	}

	l.native.CopyResource(dst.Native(), src.Native())
	return nil
}

// ResolveSubresource resolves a multisampled subresource of src into dst
func (l *CommandList) ResolveSubresource(dst, src TrackedResource, dstSubresource, srcSubresource uint32) error {
	err := l.TransitionBarrier(dst, native.ResourceStateResolveDest, dstSubresource, false)
	if err != nil {
		return err
	}
	err = l.TransitionBarrier(src, native.ResourceStateResolveSource, srcSubresource, true)
	if err != nil {
		return err
	}

	l.native.ResolveSubresource(dst.Native(), dstSubresource, src.Native(), srcSubresource, dst.Native().Desc().Format)
	return nil
}

// allocateUpload returns upload memory for the list. Requests larger than an upload page get
// their own upload resource, which is released when the list is reset.
func (l *CommandList) allocateUpload(size, alignment int) (upload.Allocation, error) {
	allocation, err := l.upload.Allocate(size, alignment)
	if err == nil || !errors.Is(err, upload.ErrAllocationTooLarge) {
		return allocation, err
	}

	resource, err := l.device.createCommittedResource(native.HeapTypeUpload, native.BufferDesc(size, 0), native.ResourceStateGenericRead, nil, "Intermediate Upload Buffer")
	if err != nil {
		return upload.Allocation{}, err
	}
	data, err := resource.Map()
	if err != nil {
		resource.Release()
		return upload.Allocation{}, deviceFailure(err, "failed to map intermediate upload buffer")
	}
	l.intermediates = append(l.intermediates, resource)

	return upload.Allocation{
		CPU:      data[:size:size],
		GPU:      resource.GPUVirtualAddress(),
		Resource: resource,
	}, nil
}

func (l *CommandList) createBuffer(size int, flags native.ResourceFlags, name string) (native.Resource, error) {
	err := l.checkRecording("CopyBuffer")
	if err != nil {
		return nil, err
	}
	if size < 1 {
		return nil, errors.Newf("buffer %q must not be empty", name)
	}
	return l.device.createCommittedResource(native.HeapTypeDefault, native.BufferDesc(size, flags), native.ResourceStateCommon, nil, name)
}

// uploadBuffer registers a freshly created buffer and copies data into it through upload memory
func (l *CommandList) uploadBuffer(buffer TrackedResource, data []byte) error {
	l.device.registry.AddGlobalResourceState(buffer, native.ResourceStateCommon)

	allocation, err := l.allocateUpload(len(data), bufferDataAlignment)
	if err != nil {
		return err
	}
	copy(allocation.CPU, data)

	err = l.TransitionBarrier(buffer, native.ResourceStateCopyDest, native.AllSubresources, true)
	if err != nil {
		return err
	}
	l.native.CopyBufferRegion(buffer.Native(), 0, allocation.Resource, allocation.Offset, len(data))
	return nil
}

// CopyVertexBuffer creates a vertex buffer in the default heap and records a copy of data into it
func (l *CommandList) CopyVertexBuffer(data []byte, numVertices, stride int, name string) (*VertexBuffer, error) {
	if numVertices*stride != len(data) {
		return nil, errors.Newf("vertex buffer %q has %d bytes of data for %d vertices of %d bytes", name, len(data), numVertices, stride)
	}

	resource, err := l.createBuffer(len(data), 0, name)
	if err != nil {
		return nil, err
	}

	buffer := l.device.newVertexBuffer(resource, numVertices, stride, name)
	err = l.uploadBuffer(buffer, data)
	if err != nil {
		buffer.Release()
		return nil, err
	}
	return buffer, nil
}

// CopyIndexBuffer creates an index buffer in the default heap and records a copy of data into it
func (l *CommandList) CopyIndexBuffer(data []byte, format gputypes.IndexFormat, name string) (*IndexBuffer, error) {
	size, err := indexSize(format)
	if err != nil {
		return nil, err
	}
	if len(data)%size != 0 {
		return nil, errors.Newf("index buffer %q has %d bytes of data, which is not a whole number of %s indices", name, len(data), format)
	}

	resource, err := l.createBuffer(len(data), 0, name)
	if err != nil {
		return nil, err
	}

	buffer := l.device.newIndexBuffer(resource, len(data)/size, format, name)
	err = l.uploadBuffer(buffer, data)
	if err != nil {
		buffer.Release()
		return nil, err
	}
	return buffer, nil
}

// CopyConstantBuffer creates a constant buffer in the default heap and records a copy of data
// into it
func (l *CommandList) CopyConstantBuffer(data []byte, name string) (*ConstantBuffer, error) {
	resource, err := l.createBuffer(len(data), 0, name)
	if err != nil {
		return nil, err
	}

	buffer, err := l.device.newConstantBuffer(resource, name)
	if err != nil {
		resource.Release()
		return nil, err
	}
	err = l.uploadBuffer(buffer, data)
	if err != nil {
		buffer.Release()
		return nil, err
	}
	return buffer, nil
}

// CopyByteAddressBuffer creates a raw buffer in the default heap and records a copy of data into it
func (l *CommandList) CopyByteAddressBuffer(data []byte, flags native.ResourceFlags, name string) (*ByteAddressBuffer, error) {
	if len(data)%4 != 0 {
		return nil, errors.Newf("byte address buffer %q has %d bytes of data, which is not a whole number of words", name, len(data))
	}

	resource, err := l.createBuffer(len(data), flags, name)
	if err != nil {
		return nil, err
	}

	buffer, err := l.device.newByteAddressBuffer(resource, name)
	if err != nil {
		resource.Release()
		return nil, err
	}
	err = l.uploadBuffer(buffer, data)
	if err != nil {
		buffer.Release()
		return nil, err
	}
	return buffer, nil
}

// CopyStructuredBuffer creates a structured buffer in the default heap and records a copy of
// data into it
func (l *CommandList) CopyStructuredBuffer(data []byte, numElements, stride int, flags native.ResourceFlags, name string) (*StructuredBuffer, error) {
	if numElements*stride != len(data) {
		return nil, errors.Newf("structured buffer %q has %d bytes of data for %d elements of %d bytes", name, len(data), numElements, stride)
	}

	resource, err := l.createBuffer(len(data), flags, name)
	if err != nil {
		return nil, err
	}

	buffer, err := l.device.wrapStructuredBuffer(resource, numElements, stride, name)
	if err != nil {
		return nil, err
	}

	allocation, err := l.allocateUpload(len(data), bufferDataAlignment)
	if err == nil {
		copy(allocation.CPU, data)
		err = l.TransitionBarrier(buffer, native.ResourceStateCopyDest, native.AllSubresources, true)
	}
	if err != nil {
		buffer.Release()
		return nil, err
	}
	l.native.CopyBufferRegion(resource, 0, allocation.Resource, allocation.Offset, len(data))

	return buffer, nil
}

func mipExtent(extent, mip int) int {
	return max(extent>>uint(mip), 1)
}

// CopyTextureSubresource records copies of CPU texel data into consecutive subresources of a
// texture, starting with firstSubresource
func (l *CommandList) CopyTextureSubresource(texture *Texture, firstSubresource uint32, subresources []SubresourceData) error {
	err := l.checkRecording("CopyTextureSubresource")
	if err != nil {
		return err
	}

	desc := texture.Desc()
	if int(firstSubresource)+len(subresources) > desc.SubresourceCount() {
		return errors.Newf("texture %q has %d subresources, cannot copy %d starting at %d", texture.Name(), desc.SubresourceCount(), len(subresources), firstSubresource)
	}
	if len(subresources) == 0 {
		return nil
	}

	err = l.TransitionBarrier(texture, native.ResourceStateCopyDest, native.AllSubresources, true)
	if err != nil {
		return err
	}

	mipLevels := max(desc.MipLevels, 1)
	for i, subresource := range subresources {
		index := firstSubresource + uint32(i)
		mip := int(index) % mipLevels

		width := mipExtent(desc.Width, mip)
		height := mipExtent(desc.Height, mip)
		depth := 1
		if desc.Dimension == native.ResourceDimensionTexture3D {
			depth = mipExtent(desc.DepthOrArraySize, mip)
		}

		rows := height * depth
		if subresource.RowPitch < 1 || len(subresource.Data) < rows*subresource.RowPitch {
			return errors.Newf("subresource %d of texture %q needs %d rows of %d bytes, got %d bytes", index, texture.Name(), rows, subresource.RowPitch, len(subresource.Data))
		}

		rowPitch := gfxutils.AlignUp(subresource.RowPitch, textureDataPitchAlignment)
		allocation, err := l.allocateUpload(rowPitch*rows, textureDataPlacementAlignment)
		if err != nil {
			return err
		}
		for row := 0; row < rows; row++ {
			copy(allocation.CPU[row*rowPitch:], subresource.Data[row*subresource.RowPitch:(row+1)*subresource.RowPitch])
		}

		l.native.CopyTextureRegion(texture.Native(), index, allocation.Resource, native.SubresourceFootprint{
			Offset:   allocation.Offset,
			Format:   desc.Format,
			Width:    width,
			Height:   height,
			Depth:    depth,
			RowPitch: rowPitch,
		})
	}

	return nil
}

// LoadTexture returns the texture cached under key, or decodes it with loader, records the
// upload of its subresources and caches it
func (l *CommandList) LoadTexture(key string, loader TextureLoader) (*Texture, error) {
	texture, ok := l.device.CachedTexture(key)
	if ok {
		return texture, nil
	}

	err := l.checkRecording("LoadTexture")
	if err != nil {
		return nil, err
	}

	data, err := loader()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load texture %q", key)
	}

	texture, err = l.device.CreateTexture(data.Desc, nil, key)
	if err != nil {
		return nil, err
	}

	err = l.CopyTextureSubresource(texture, 0, data.Subresources)
	if err != nil {
		texture.Release()
		return nil, err
	}

	cached := l.device.cacheTexture(key, texture)
	if cached != texture {
		texture.Release()
	}
	return cached, nil
}

// ComputeFollowUp returns a compute command list that will be submitted to the compute queue
// right after this list, once the compute queue has waited for it. It is used for work, such as
// mip generation, that the list's own queue cannot perform.
func (l *CommandList) ComputeFollowUp() (*CommandList, error) {
	err := l.checkRecording("ComputeFollowUp")
	if err != nil {
		return nil, err
	}
	if l.listType == native.CommandListTypeCompute {
		return l, nil
	}

	if l.followUp == nil {
		l.followUp, err = l.device.CommandQueue(native.CommandListTypeCompute).GetCommandList()
		if err != nil {
			return nil, err
		}
	}
	return l.followUp, nil
}

func (l *CommandList) SetPrimitiveTopology(topology gputypes.PrimitiveTopology) error {
	err := l.checkRecording("SetPrimitiveTopology")
	if err != nil {
		return err
	}

	l.native.IASetPrimitiveTopology(topology)
	return nil
}

// SetVertexBuffers binds vertex buffers to consecutive input slots beginning at startSlot
func (l *CommandList) SetVertexBuffers(startSlot int, buffers ...*VertexBuffer) error {
	views := make([]native.VertexBufferView, 0, len(buffers))
	for _, buffer := range buffers {
		err := l.TransitionBarrier(buffer, native.ResourceStateVertexAndConstantBuffer, native.AllSubresources, false)
		if err != nil {
			return err
		}
		views = append(views, buffer.VertexBufferView())
	}

	l.native.IASetVertexBuffers(startSlot, views)
	return nil
}

func (l *CommandList) SetVertexBuffer(slot int, buffer *VertexBuffer) error {
	return l.SetVertexBuffers(slot, buffer)
}

// SetDynamicVertexBuffer copies vertex data into upload memory and binds it to slot
func (l *CommandList) SetDynamicVertexBuffer(slot int, numVertices, stride int, data []byte) error {
	err := l.checkRecording("SetDynamicVertexBuffer")
	if err != nil {
		return err
	}
	if numVertices*stride != len(data) {
		return errors.Newf("dynamic vertex buffer has %d bytes of data for %d vertices of %d bytes", len(data), numVertices, stride)
	}

	allocation, err := l.allocateUpload(len(data), bufferDataAlignment)
	if err != nil {
		return err
	}
	copy(allocation.CPU, data)

	l.native.IASetVertexBuffers(slot, []native.VertexBufferView{{
		BufferLocation: allocation.GPU,
		SizeInBytes:    len(data),
		StrideInBytes:  stride,
	}})
	return nil
}

func (l *CommandList) SetIndexBuffer(buffer *IndexBuffer) error {
	err := l.TransitionBarrier(buffer, native.ResourceStateIndexBuffer, native.AllSubresources, false)
	if err != nil {
		return err
	}

	view := buffer.IndexBufferView()
	l.native.IASetIndexBuffer(&view)
	return nil
}

// SetDynamicIndexBuffer copies index data into upload memory and binds it
func (l *CommandList) SetDynamicIndexBuffer(data []byte, format gputypes.IndexFormat) error {
	err := l.checkRecording("SetDynamicIndexBuffer")
	if err != nil {
		return err
	}
	size, err := indexSize(format)
	if err != nil {
		return err
	}
	if len(data)%size != 0 {
		return errors.Newf("dynamic index buffer has %d bytes of data, which is not a whole number of %s indices", len(data), format)
	}

	allocation, err := l.allocateUpload(len(data), size)
	if err != nil {
		return err
	}
	copy(allocation.CPU, data)

	l.native.IASetIndexBuffer(&native.IndexBufferView{
		BufferLocation: allocation.GPU,
		SizeInBytes:    len(data),
		Format:         format,
	})
	return nil
}

func (l *CommandList) allocateDynamic(operation string, data []byte, alignment int) (upload.Allocation, error) {
	err := l.checkRecording(operation)
	if err != nil {
		return upload.Allocation{}, err
	}

	allocation, err := l.allocateUpload(len(data), alignment)
	if err != nil {
		return upload.Allocation{}, err
	}
	copy(allocation.CPU, data)
	return allocation, nil
}

// SetGraphicsDynamicConstantBuffer copies data into upload memory and binds it as the root
// constant buffer view at rootIndex
func (l *CommandList) SetGraphicsDynamicConstantBuffer(rootIndex int, data []byte) error {
	allocation, err := l.allocateDynamic("SetGraphicsDynamicConstantBuffer", data, constantBufferPlacementAlignment)
	if err != nil {
		return err
	}

	l.native.SetGraphicsRootConstantBufferView(rootIndex, allocation.GPU)
	return nil
}

func (l *CommandList) SetComputeDynamicConstantBuffer(rootIndex int, data []byte) error {
	allocation, err := l.allocateDynamic("SetComputeDynamicConstantBuffer", data, constantBufferPlacementAlignment)
	if err != nil {
		return err
	}

	l.native.SetComputeRootConstantBufferView(rootIndex, allocation.GPU)
	return nil
}

// SetGraphicsDynamicStructuredBuffer copies data into upload memory and binds it as the root
// shader resource view at rootIndex
func (l *CommandList) SetGraphicsDynamicStructuredBuffer(rootIndex int, data []byte) error {
	allocation, err := l.allocateDynamic("SetGraphicsDynamicStructuredBuffer", data, bufferDataAlignment)
	if err != nil {
		return err
	}

	l.native.SetGraphicsRootShaderResourceView(rootIndex, allocation.GPU)
	return nil
}

func (l *CommandList) SetComputeDynamicStructuredBuffer(rootIndex int, data []byte) error {
	allocation, err := l.allocateDynamic("SetComputeDynamicStructuredBuffer", data, bufferDataAlignment)
	if err != nil {
		return err
	}

	l.native.SetComputeRootShaderResourceView(rootIndex, allocation.GPU)
	return nil
}

func (l *CommandList) SetGraphics32BitConstants(rootIndex int, values []uint32) error {
	err := l.checkRecording("SetGraphics32BitConstants")
	if err != nil {
		return err
	}

	l.native.SetGraphicsRoot32BitConstants(rootIndex, values, 0)
	return nil
}

func (l *CommandList) SetCompute32BitConstants(rootIndex int, values []uint32) error {
	err := l.checkRecording("SetCompute32BitConstants")
	if err != nil {
		return err
	}

	l.native.SetComputeRoot32BitConstants(rootIndex, values, 0)
	return nil
}

func (l *CommandList) parseRootSignature(rootSignature *RootSignature) error {
	for _, heap := range l.dynamicHeaps {
		if heap == nil {
			continue
		}
		err := heap.ParseRootSignature(rootSignature)
		if err != nil {
			return err
		}
	}
	return nil
}

// SetGraphicsRootSignature binds a root signature for draws. Descriptors staged for the
// previous root signature are discarded. Binding the root signature that is already bound
// does nothing.
func (l *CommandList) SetGraphicsRootSignature(rootSignature *RootSignature) error {
	err := l.checkRecording("SetGraphicsRootSignature")
	if err != nil {
		return err
	}
	if l.graphicsRootSignature == rootSignature {
		return nil
	}

	err = l.parseRootSignature(rootSignature)
	if err != nil {
		return err
	}
	l.graphicsRootSignature = rootSignature
	l.native.SetGraphicsRootSignature(rootSignature.native)
	l.trackObject(rootSignature)
	return nil
}

// SetComputeRootSignature binds a root signature for dispatches
func (l *CommandList) SetComputeRootSignature(rootSignature *RootSignature) error {
	err := l.checkRecording("SetComputeRootSignature")
	if err != nil {
		return err
	}
	if l.computeRootSignature == rootSignature {
		return nil
	}

	err = l.parseRootSignature(rootSignature)
	if err != nil {
		return err
	}
	l.computeRootSignature = rootSignature
	l.native.SetComputeRootSignature(rootSignature.native)
	l.trackObject(rootSignature)
	return nil
}

func (l *CommandList) stage(heapType native.DescriptorHeapType, rootIndex, offset int, handle native.CPUDescriptorHandle) error {
	heap := l.dynamicHeaps[heapType]
	if heap == nil {
		return errors.Wrapf(ErrInvalidState, "%s command lists cannot bind descriptor tables", l.listType)
	}
	return heap.StageDescriptors(rootIndex, offset, 1, handle)
}

func (l *CommandList) transitionRange(resource TrackedResource, stateAfter native.ResourceState, firstSubresource, numSubresources uint32) {
	if numSubresources == native.AllSubresources || (firstSubresource == 0 && int(numSubresources) >= resource.Native().Desc().SubresourceCount()) {
		l.tracker.TransitionResource(resource, stateAfter, native.AllSubresources)
		return
	}
	for i := uint32(0); i < numSubresources; i++ {
		l.tracker.TransitionResource(resource, stateAfter, firstSubresource+i)
	}
}

// SetShaderResourceView transitions a range of subresources to stateAfter and stages the
// resource's shader resource view into the descriptor table at rootIndex
func (l *CommandList) SetShaderResourceView(rootIndex, descriptorOffset int, resource ShaderResource, stateAfter native.ResourceState, firstSubresource, numSubresources uint32) error {
	err := l.checkRecording("SetShaderResourceView")
	if err != nil {
		return err
	}

	handle, err := resource.ShaderResourceView()
	if err != nil {
		return err
	}
	err = l.stage(native.DescriptorHeapTypeCBVSRVUAV, rootIndex, descriptorOffset, handle)
	if err != nil {
		return err
	}

	l.transitionRange(resource, stateAfter, firstSubresource, numSubresources)
	l.trackObject(resource)
	return nil
}

// SetUnorderedAccessView transitions a subresource to stateAfter and stages its unordered access
// view into the descriptor table at rootIndex
func (l *CommandList) SetUnorderedAccessView(rootIndex, descriptorOffset int, resource UnorderedAccessResource, stateAfter native.ResourceState, subresource uint32) error {
	err := l.checkRecording("SetUnorderedAccessView")
	if err != nil {
		return err
	}

	handle, err := resource.UnorderedAccessView(subresource)
	if err != nil {
		return err
	}
	err = l.stage(native.DescriptorHeapTypeCBVSRVUAV, rootIndex, descriptorOffset, handle)
	if err != nil {
		return err
	}

	l.tracker.TransitionResource(resource, stateAfter, subresource)
	l.trackObject(resource)
	return nil
}

// SetConstantBufferView stages a constant buffer's view into the descriptor table at rootIndex
func (l *CommandList) SetConstantBufferView(rootIndex, descriptorOffset int, buffer *ConstantBuffer) error {
	err := l.checkRecording("SetConstantBufferView")
	if err != nil {
		return err
	}

	err = l.stage(native.DescriptorHeapTypeCBVSRVUAV, rootIndex, descriptorOffset, buffer.ConstantBufferView())
	if err != nil {
		return err
	}

	l.tracker.TransitionResource(buffer, native.ResourceStateVertexAndConstantBuffer, native.AllSubresources)
	l.trackObject(buffer)
	return nil
}

// CopyDescriptor copies a single CPU-visible descriptor into the list's shader-visible heap and
// returns its GPU handle
func (l *CommandList) CopyDescriptor(heapType native.DescriptorHeapType, src native.CPUDescriptorHandle) (native.GPUDescriptorHandle, error) {
	err := l.checkRecording("CopyDescriptor")
	if err != nil {
		return native.GPUDescriptorHandle{}, err
	}
	if heapType >= native.DescriptorHeapTypeCount || l.dynamicHeaps[heapType] == nil {
		return native.GPUDescriptorHandle{}, errors.Newf("%s command lists have no shader-visible %s heap", l.listType, heapType)
	}

	return l.dynamicHeaps[heapType].CopyDescriptor(l, src)
}

// ClearTexture clears a texture's render target view
func (l *CommandList) ClearTexture(texture *Texture, color [4]float32) error {
	rtv, err := texture.RenderTargetView()
	if err != nil {
		return err
	}
	err = l.TransitionBarrier(texture, native.ResourceStateRenderTarget, native.AllSubresources, true)
	if err != nil {
		return err
	}

	l.native.ClearRenderTargetView(rtv, color)
	return nil
}

// ClearDepthStencilTexture clears a texture's depth stencil view
func (l *CommandList) ClearDepthStencilTexture(texture *Texture, flags native.ClearFlags, depth float32, stencil uint8) error {
	dsv, err := texture.DepthStencilView()
	if err != nil {
		return err
	}
	err = l.TransitionBarrier(texture, native.ResourceStateDepthWrite, native.AllSubresources, true)
	if err != nil {
		return err
	}

	l.native.ClearDepthStencilView(dsv, flags, depth, stencil)
	return nil
}

func (l *CommandList) prepareDraw(operation string) error {
	err := l.checkRecording(operation)
	if err != nil {
		return err
	}

	l.tracker.FlushResourceBarriers(l.native)
	for _, heap := range l.dynamicHeaps {
		if heap == nil {
			continue
		}
		err = heap.CommitStagedDescriptorsForDraw(l)
		if err != nil {
			return err
		}
	}
	return nil
}

// Draw flushes batched barriers, commits staged descriptors and records a non-indexed draw
func (l *CommandList) Draw(vertexCount, instanceCount, startVertex, startInstance int) error {
	err := l.prepareDraw("Draw")
	if err != nil {
		return err
	}

	l.native.DrawInstanced(vertexCount, instanceCount, startVertex, startInstance)
	return nil
}

// DrawIndexed flushes batched barriers, commits staged descriptors and records an indexed draw
func (l *CommandList) DrawIndexed(indexCount, instanceCount, startIndex, baseVertex, startInstance int) error {
	err := l.prepareDraw("DrawIndexed")
	if err != nil {
		return err
	}

	l.native.DrawIndexedInstanced(indexCount, instanceCount, startIndex, baseVertex, startInstance)
	return nil
}

// Dispatch flushes batched barriers, commits staged descriptors and records a compute dispatch
func (l *CommandList) Dispatch(x, y, z int) error {
	err := l.checkRecording("Dispatch")
	if err != nil {
		return err
	}
	if l.listType == native.CommandListTypeCopy {
		return errors.Wrap(ErrInvalidState, "copy command lists cannot dispatch")
	}

	l.tracker.FlushResourceBarriers(l.native)
	for _, heap := range l.dynamicHeaps {
		if heap == nil {
			continue
		}
		err = heap.CommitStagedDescriptorsForDispatch(l)
		if err != nil {
			return err
		}
	}

	l.native.Dispatch(x, y, z)
	return nil
}

// Close flushes batched barriers and closes the native list. Transitions whose prior state was
// unknown while recording are resolved against the global registry and recorded into pending,
// which must be executed immediately before this list. The list's final resource states are
// then committed to the registry. It returns true if any barriers were recorded into pending.
//
// The device's registry must be locked. CommandQueue.ExecuteCommandLists does this; Close only
// needs to be called directly by code that submits native lists itself. pending may be nil
// only when the list has no unresolved transitions.
func (l *CommandList) Close(pending *CommandList) (bool, error) {
	err := l.closeNative(pending)
	if err != nil {
		return false, err
	}
	return l.commit(pending) > 0, nil
}

// closeNative flushes batched barriers and closes the native list without touching the registry
func (l *CommandList) closeNative(pending *CommandList) error {
	err := l.checkRecording("Close")
	if err != nil {
		return err
	}
	if pending == nil && l.tracker.NumPendingTransitions() > 0 {
		return errors.Wrapf(ErrInvalidState, "%d transitions need a pending command list to be resolved into", l.tracker.NumPendingTransitions())
	}
	if pending != nil && pending.status != CommandListStatusRecording {
		return errors.Wrapf(ErrInvalidState, "pending command list is %s", pending.status)
	}

	l.tracker.FlushResourceBarriers(l.native)
	err = l.native.Close()
	if err != nil {
		return deviceFailure(err, "failed to close %s command list", l.listType)
	}
	l.status = CommandListStatusClosed
	return nil
}

// commit resolves pending transitions into pending and commits the final states. The list
// must have been closed by closeNative and the registry must be locked.
func (l *CommandList) commit(pending *CommandList) int {
	numPending := 0
	if pending != nil {
		numPending = l.tracker.FlushPendingResourceBarriers(pending.native)
	}
	l.tracker.CommitFinalResourceStates()
	return numPending
}

func (l *CommandList) markSubmitted(marker dynheap.Marker) {
	l.status = CommandListStatusSubmitted
	l.marker = marker
}

// Reset prepares the list for recording again. A submitted list can only be reset once the GPU
// has finished executing it.
func (l *CommandList) Reset() error {
	switch l.status {
	case CommandListStatusRecording:
		return errors.Wrap(ErrInvalidState, "a command list that is still recording cannot be reset")
	case CommandListStatusSubmitted:
		if !l.marker.Reached() {
			return errors.Wrapf(ErrInvalidState, "command list is still executing: fence value %d has not been reached", l.marker.Value)
		}
	}

	err := l.allocator.Reset()
	if err != nil {
		return deviceFailure(err, "failed to reset %s command allocator", l.listType)
	}
	err = l.native.Reset(l.allocator)
	if err != nil {
		return deviceFailure(err, "failed to reset %s command list", l.listType)
	}

	l.clear()
	l.status = CommandListStatusRecording
	return nil
}

// clear drops everything the list recorded and every reference it holds
func (l *CommandList) clear() {
	l.tracker.Reset()
	l.upload.Reset()

	for _, resource := range l.intermediates {
		resource.Unmap()
		resource.Release()
	}
	l.intermediates = l.intermediates[:0]

	for _, heap := range l.dynamicHeaps {
		if heap != nil {
			heap.Reset(l.marker)
		}
	}
	l.boundHeaps = [native.DescriptorHeapTypeCount]native.DescriptorHeap{}
	l.graphicsRootSignature = nil
	l.computeRootSignature = nil

	if l.followUp != nil {
		l.followUp.destroy()
		l.followUp = nil
	}

	if l.tracked.Count() > 0 {
		l.tracked.Iter(func(id uuid.UUID, life *lifetime) bool {
			life.refs.Add(-1)
			return false
		})
		l.tracked = swiss.NewMap[uuid.UUID, *lifetime](16)
		l.device.collectGarbage()
	}

	l.marker = dynheap.Marker{}
}

func (l *CommandList) destroy() {
	if l.status == CommandListStatusRecording {
		_ = l.native.Close()
	}
	l.clear()
	l.upload.Destroy()
	l.native.Release()
	l.allocator.Release()
}
