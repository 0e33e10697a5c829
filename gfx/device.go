package gfx

import (
	"context"
	"log/slog"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/recorder/descriptor"
	"github.com/vkngwrapper/recorder/dynheap"
	"github.com/vkngwrapper/recorder/gfxutils"
	"github.com/vkngwrapper/recorder/internal/utils"
	"github.com/vkngwrapper/recorder/native"
	"github.com/vkngwrapper/recorder/state"
)

type deferredRelease struct {
	life    *lifetime
	release func()
}

// Device owns everything that is shared between command lists: the command queues, the CPU
// descriptor allocators, the pools of shader-visible heaps, and the registry of global
// resource states.
type Device struct {
	logger   *slog.Logger
	native   native.Device
	options  CreateOptions
	useMutex bool

	registry   *state.Registry
	allocators [native.DescriptorHeapTypeCount]descriptor.Allocator
	heapPools  [native.DescriptorHeapTypeCount]*dynheap.HeapPool

	directQueue  *CommandQueue
	computeQueue *CommandQueue
	copyQueue    *CommandQueue

	deferredMutex utils.OptionalMutex
	deferred      []deferredRelease

	textureMutex utils.OptionalRWMutex
	textures     *swiss.Map[string, *Texture]
}

// New creates a new Device
//
// logger - Receives diagnostics such as descriptor page creation and resources that are still
// alive when the device is destroyed
//
// device - The native device that every object will be created from
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, device native.Device, options CreateOptions) (*Device, error) {
	err := options.Validate()
	if err != nil {
		return nil, err
	}
	options = options.withDefaults()
	useMutex := options.Flags&CreateExternallySynchronized == 0

	d := &Device{
		logger:        logger,
		native:        device,
		options:       options,
		useMutex:      useMutex,
		registry:      state.NewRegistry(!useMutex),
		deferredMutex: utils.OptionalMutex{UseMutex: useMutex},
		textureMutex:  utils.OptionalRWMutex{UseMutex: useMutex},
		textures:      swiss.NewMap[string, *Texture](16),
	}

	for heapType := native.DescriptorHeapType(0); heapType < native.DescriptorHeapTypeCount; heapType++ {
		err = d.allocators[heapType].Init(logger, device, heapType, descriptor.AllocatorOptions{
			DescriptorsPerPage:     options.Descriptors[heapType].DescriptorsPerPage,
			MaxDescriptorsPerHeap:  options.Descriptors[heapType].MaxDescriptorsPerHeap,
			ExternallySynchronized: !useMutex,
		})
		if err != nil {
			return nil, err
		}
	}

	d.heapPools[native.DescriptorHeapTypeCBVSRVUAV], err = dynheap.NewHeapPool(logger, device, native.DescriptorHeapTypeCBVSRVUAV, options.ShaderVisibleDescriptors, !useMutex)
	if err != nil {
		return nil, err
	}
	d.heapPools[native.DescriptorHeapTypeSampler], err = dynheap.NewHeapPool(logger, device, native.DescriptorHeapTypeSampler, options.ShaderVisibleSamplers, !useMutex)
	if err != nil {
		return nil, err
	}

	d.directQueue, err = newCommandQueue(d, native.CommandListTypeDirect)
	if err != nil {
		return nil, err
	}
	d.computeQueue, err = newCommandQueue(d, native.CommandListTypeCompute)
	if err != nil {
		return nil, err
	}
	d.copyQueue, err = newCommandQueue(d, native.CommandListTypeCopy)
	if err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Device) Native() native.Device { return d.native }
func (d *Device) Options() CreateOptions { return d.options }

// Registry returns the global resource state registry shared by every command list on the device
func (d *Device) Registry() *state.Registry { return d.registry }

// CommandQueue returns the device's queue for the provided command list type
func (d *Device) CommandQueue(listType native.CommandListType) *CommandQueue {
	switch listType {
	case native.CommandListTypeCompute:
		return d.computeQueue
	case native.CommandListTypeCopy:
		return d.copyQueue
	default:
		return d.directQueue
	}
}

// Flush waits until every queue is idle. It returns false if a queue did not become idle
// within CreateOptions.FenceTimeout.
func (d *Device) Flush() (bool, error) {
	idle := true
	for _, queue := range []*CommandQueue{d.directQueue, d.computeQueue, d.copyQueue} {
		flushed, err := queue.Flush()
		if err != nil {
			return false, err
		}
		idle = idle && flushed
	}
	return idle, nil
}

func (d *Device) DescriptorHandleIncrementSize(heapType native.DescriptorHeapType) int {
	return d.native.DescriptorHandleIncrementSize(heapType)
}

// AllocateDescriptors returns count contiguous CPU-visible descriptors of the provided type
func (d *Device) AllocateDescriptors(heapType native.DescriptorHeapType, count int) (descriptor.Allocation, error) {
	if heapType >= native.DescriptorHeapTypeCount {
		return descriptor.Allocation{}, errors.Newf("unknown descriptor heap type %d", heapType)
	}
	return d.allocators[heapType].Allocate(count)
}

// descriptorFenceValue is the direct queue fence value that the next frame's work will be
// signaled with. Descriptors freed now may still be read by work up to that point.
func (d *Device) descriptorFenceValue() uint64 {
	return d.directQueue.LastSignaledValue() + 1
}

func (d *Device) freeDescriptors(allocation *descriptor.Allocation) {
	allocation.Free(d.descriptorFenceValue())
}

// takeDescriptors nulls the provided allocations and returns a function that frees them. The
// fence value is read when the function runs.
func (d *Device) takeDescriptors(allocations ...*descriptor.Allocation) func() {
	var taken []descriptor.Allocation
	for _, allocation := range allocations {
		if !allocation.IsNull() {
			taken = append(taken, *allocation)
		}
		*allocation = descriptor.Allocation{}
	}
	if len(taken) == 0 {
		return nil
	}

	return func() {
		for i := range taken {
			d.freeDescriptors(&taken[i])
		}
	}
}

// ReleaseStaleDescriptors reclaims every freed descriptor whose direct queue fence value is at
// or below completedFenceValue, and releases native objects that are no longer referenced by
// any command list
func (d *Device) ReleaseStaleDescriptors(completedFenceValue uint64) {
	for heapType := range d.allocators {
		d.allocators[heapType].ReleaseStaleDescriptors(completedFenceValue)
	}
	d.collectGarbage()
}

func (d *Device) releaseWhenUnused(life *lifetime, release func()) {
	if release == nil {
		return
	}
	if life.refs.Load() == 0 {
		release()
		return
	}

	d.deferredMutex.Lock()
	defer d.deferredMutex.Unlock()

	d.deferred = append(d.deferred, deferredRelease{life: life, release: release})
}

// collectGarbage runs every deferred release whose object is no longer referenced. Releases run
// outside the lock since they can defer further releases.
func (d *Device) collectGarbage() {
	d.deferredMutex.Lock()
	var ready []func()
	kept := d.deferred[:0]
	for _, entry := range d.deferred {
		if entry.life.refs.Load() > 0 {
			kept = append(kept, entry)
			continue
		}
		ready = append(ready, entry.release)
	}
	for i := len(kept); i < len(d.deferred); i++ {
		d.deferred[i] = deferredRelease{}
	}
	d.deferred = kept
	d.deferredMutex.Unlock()

	for _, release := range ready {
		release()
	}
}

// DeferredReleaseCount returns the number of native objects that have been released by the
// application but are still referenced by a command list
func (d *Device) DeferredReleaseCount() int {
	d.deferredMutex.Lock()
	defer d.deferredMutex.Unlock()

	return len(d.deferred)
}

func (d *Device) createCommittedResource(heap native.HeapType, desc native.ResourceDesc, initialState native.ResourceState, clearValue *native.ClearValue, name string) (native.Resource, error) {
	resource, err := d.native.CreateCommittedResource(heap, desc, initialState, clearValue)
	if err != nil {
		return nil, deviceFailure(err, "failed to create resource %q", name)
	}
	return resource, nil
}

// CreateTexture creates a texture in the default heap, in the common state
func (d *Device) CreateTexture(desc native.ResourceDesc, clearValue *native.ClearValue, name string) (*Texture, error) {
	if desc.Dimension == native.ResourceDimensionBuffer || desc.Dimension == native.ResourceDimensionUnknown {
		return nil, errors.Newf("texture %q cannot have dimension %s", name, desc.Dimension)
	}

	resource, err := d.createCommittedResource(native.HeapTypeDefault, desc, native.ResourceStateCommon, clearValue, name)
	if err != nil {
		return nil, err
	}

	texture, err := d.newTexture(resource, clearValue, name, true)
	if err != nil {
		resource.Release()
		return nil, err
	}
	d.registry.AddGlobalResourceState(texture, native.ResourceStateCommon)

	return texture, nil
}

// CreateByteAddressBuffer creates an uninitialized raw buffer in the default heap
func (d *Device) CreateByteAddressBuffer(size int, flags native.ResourceFlags, name string) (*ByteAddressBuffer, error) {
	resource, err := d.createCommittedResource(native.HeapTypeDefault, native.BufferDesc(gfxutils.AlignUp(size, 4), flags), native.ResourceStateCommon, nil, name)
	if err != nil {
		return nil, err
	}

	buffer, err := d.newByteAddressBuffer(resource, name)
	if err != nil {
		resource.Release()
		return nil, err
	}
	d.registry.AddGlobalResourceState(buffer, native.ResourceStateCommon)

	return buffer, nil
}

// CreateStructuredBuffer creates an uninitialized structured buffer in the default heap. Buffers
// that allow unordered access get a counter buffer.
func (d *Device) CreateStructuredBuffer(numElements, stride int, flags native.ResourceFlags, name string) (*StructuredBuffer, error) {
	if numElements < 1 || stride < 1 {
		return nil, errors.Newf("structured buffer %q must have a positive size, got %d elements of %d bytes", name, numElements, stride)
	}

	resource, err := d.createCommittedResource(native.HeapTypeDefault, native.BufferDesc(numElements*stride, flags), native.ResourceStateCommon, nil, name)
	if err != nil {
		return nil, err
	}

	return d.wrapStructuredBuffer(resource, numElements, stride, name)
}

func (d *Device) wrapStructuredBuffer(resource native.Resource, numElements, stride int, name string) (*StructuredBuffer, error) {
	var counter native.Resource
	var err error
	if resource.Desc().Flags&native.ResourceFlagAllowUnorderedAccess != 0 {
		counter, err = d.createCommittedResource(native.HeapTypeDefault, native.BufferDesc(4, native.ResourceFlagAllowUnorderedAccess), native.ResourceStateCommon, nil, name+" Counter")
		if err != nil {
			resource.Release()
			return nil, err
		}
	}

	buffer, err := d.newStructuredBuffer(resource, counter, numElements, stride, name)
	if err != nil {
		resource.Release()
		if counter != nil {
			counter.Release()
		}
		return nil, err
	}
	d.registry.AddGlobalResourceState(buffer, native.ResourceStateCommon)
	if buffer.counter != nil {
		d.registry.AddGlobalResourceState(buffer.counter, native.ResourceStateCommon)
	}

	return buffer, nil
}

// CachedTexture returns the texture previously loaded under key
func (d *Device) CachedTexture(key string) (*Texture, bool) {
	d.textureMutex.RLock()
	defer d.textureMutex.RUnlock()

	return d.textures.Get(key)
}

func (d *Device) cacheTexture(key string, texture *Texture) *Texture {
	d.textureMutex.Lock()
	defer d.textureMutex.Unlock()

	existing, ok := d.textures.Get(key)
	if ok {
		return existing
	}
	d.textures.Put(key, texture)
	return texture
}

// EvictTexture removes a texture from the cache and releases it
func (d *Device) EvictTexture(key string) {
	d.textureMutex.Lock()
	texture, ok := d.textures.Get(key)
	if ok {
		d.textures.Delete(key)
	}
	d.textureMutex.Unlock()

	if ok {
		texture.Release()
	}
}

func (d *Device) CalculateStatistics(stats *gfxutils.DetailedStatistics) {
	stats.Clear()
	for heapType := range d.allocators {
		d.allocators[heapType].AddDetailedStatistics(stats)
	}
}

func printStatistics(json jwriter.ObjectState, stats *gfxutils.DetailedStatistics) {
	json.Name("Pages").Int(stats.PageCount)
	json.Name("PageDescriptors").Int(stats.PageDescriptors)
	json.Name("Allocations").Int(stats.AllocationCount)
	json.Name("AllocatedDescriptors").Int(stats.AllocatedDescriptors)
	json.Name("FreeRanges").Int(stats.FreeRangeCount)

	if stats.AllocationCount > 0 {
		json.Name("AllocationSizeMin").Int(stats.AllocationMin)
		json.Name("AllocationSizeMax").Int(stats.AllocationMax)
	}
	if stats.FreeRangeCount > 0 {
		json.Name("FreeRangeSizeMin").Int(stats.FreeRangeSizeMin)
		json.Name("FreeRangeSizeMax").Int(stats.FreeRangeSizeMax)
	}
}

// BuildStatsString returns a JSON document describing the device's descriptor allocators,
// shader-visible heaps and queues. When detailedMap is true, every descriptor page and the
// global state of every resource are included.
func (d *Device) BuildStatsString(detailedMap bool) string {
	writer := jwriter.NewWriter()
	root := writer.Object()

	var total gfxutils.DetailedStatistics
	d.CalculateStatistics(&total)
	totalObj := root.Name("Total").Object()
	printStatistics(totalObj, &total)
	totalObj.End()

	heapsObj := root.Name("DescriptorHeaps").Object()
	for heapType := native.DescriptorHeapType(0); heapType < native.DescriptorHeapTypeCount; heapType++ {
		allocator := &d.allocators[heapType]

		var stats gfxutils.DetailedStatistics
		stats.Clear()
		allocator.AddDetailedStatistics(&stats)

		heapObj := heapsObj.Name(heapType.String()).Object()
		statsObj := heapObj.Name("Stats").Object()
		printStatistics(statsObj, &stats)
		statsObj.End()

		if pool := d.heapPools[heapType]; pool != nil {
			poolObj := heapObj.Name("ShaderVisible").Object()
			poolObj.Name("DescriptorsPerHeap").Int(pool.DescriptorsPerHeap())
			poolObj.Name("Heaps").Int(pool.HeapCount())
			poolObj.Name("Available").Int(pool.AvailableCount())
			poolObj.End()
		}

		if detailedMap {
			heapObj.Name("Pages")
			allocator.PrintDetailedMap(&writer)
		}
		heapObj.End()
	}
	heapsObj.End()

	queuesObj := root.Name("Queues").Object()
	for _, queue := range []*CommandQueue{d.directQueue, d.computeQueue, d.copyQueue} {
		queueObj := queuesObj.Name(queue.Type().String()).Object()
		queue.printStats(queueObj)
		queueObj.End()
	}
	queuesObj.End()

	root.Name("TrackedResources").Int(d.registry.Count())
	if detailedMap {
		root.Name("ResourceStates")
		d.registry.PrintDetailedMap(&writer)
	}

	root.End()

	return string(writer.Bytes())
}

func (d *Device) Validate() error {
	for heapType := range d.allocators {
		err := d.allocators[heapType].Validate()
		if err != nil {
			return errors.Wrapf(err, "%s descriptor allocator", native.DescriptorHeapType(heapType))
		}
	}
	return nil
}

// Destroy waits for the GPU to go idle and releases everything the device created. Descriptors
// and shader-visible heaps that are still allocated are logged and reported in the returned
// error.
func (d *Device) Destroy() error {
	idle, err := d.Flush()
	if err != nil {
		return err
	}
	if !idle {
		d.logger.LogAttrs(context.Background(), slog.LevelWarn, "Device::Destroy GPU did not become idle before destruction")
	}

	var textures []*Texture
	d.textureMutex.Lock()
	d.textures.Iter(func(key string, texture *Texture) bool {
		textures = append(textures, texture)
		return false
	})
	d.textures = swiss.NewMap[string, *Texture](16)
	d.textureMutex.Unlock()
	for _, texture := range textures {
		texture.Release()
	}

	for _, queue := range []*CommandQueue{d.directQueue, d.computeQueue, d.copyQueue} {
		err = errors.CombineErrors(err, queue.destroy())
	}

	d.ReleaseStaleDescriptors(math.MaxUint64)

	for heapType := range d.allocators {
		err = errors.CombineErrors(err, d.allocators[heapType].Destroy())
	}
	for _, pool := range d.heapPools {
		if pool != nil {
			err = errors.CombineErrors(err, pool.Destroy())
		}
	}

	return err
}
