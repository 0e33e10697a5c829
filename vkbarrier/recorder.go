package vkbarrier

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/recorder/internal/utils"
	"github.com/vkngwrapper/recorder/native"
)

const queueFamilyIgnored = -1

// CommandBuffer is the part of core1_0.CommandBuffer that the Recorder records into
type CommandBuffer interface {
	CmdPipelineBarrier(srcStageMask, dstStageMask core1_0.PipelineStageFlags, dependencies core1_0.DependencyFlags, memoryBarriers []core1_0.MemoryBarrier, bufferMemoryBarriers []core1_0.BufferMemoryBarrier, imageMemoryBarriers []core1_0.ImageMemoryBarrier) error
}

type object struct {
	image       core1_0.Image
	buffer      core1_0.Buffer
	presentable bool
}

// Objects maps native resources to the Vulkan images and buffers that back them. It is safe
// to use from multiple goroutines unless it was created externally synchronized.
type Objects struct {
	mutex   utils.OptionalRWMutex
	objects *swiss.Map[native.Resource, object]
}

func NewObjects(externallySynchronized bool) *Objects {
	return &Objects{
		mutex:   utils.OptionalRWMutex{UseMutex: !externallySynchronized},
		objects: swiss.NewMap[native.Resource, object](16),
	}
}

// AddImage registers the image behind a texture. Swap chain images should be presentable so
// that the common state translates to the present layout.
func (o *Objects) AddImage(resource native.Resource, image core1_0.Image, presentable bool) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.objects.Put(resource, object{image: image, presentable: presentable})
}

func (o *Objects) AddBuffer(resource native.Resource, buffer core1_0.Buffer) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.objects.Put(resource, object{buffer: buffer})
}

func (o *Objects) Remove(resource native.Resource) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.objects.Delete(resource)
}

func (o *Objects) Count() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	return o.objects.Count()
}

func (o *Objects) lookup(resource native.Resource) (object, bool) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	return o.objects.Get(resource)
}

// Recorder records batches of resource barriers into a Vulkan command buffer as a single
// pipeline barrier each. It is a barrier sink for the state tracker.
//
// ResourceBarrier cannot return an error, so the first failure is kept and reported by Err.
// Batches recorded after a failure are dropped.
type Recorder struct {
	objects *Objects
	buffer  CommandBuffer
	err     error
}

func NewRecorder(objects *Objects, buffer CommandBuffer) *Recorder {
	return &Recorder{objects: objects, buffer: buffer}
}

func (r *Recorder) Err() error { return r.err }

// Batch is the translation of a batch of resource barriers into one vkCmdPipelineBarrier call
type Batch struct {
	SrcStages core1_0.PipelineStageFlags
	DstStages core1_0.PipelineStageFlags

	MemoryBarriers []core1_0.MemoryBarrier
	BufferBarriers []core1_0.BufferMemoryBarrier
	ImageBarriers  []core1_0.ImageMemoryBarrier
}

func (b *Batch) Empty() bool {
	return len(b.MemoryBarriers) == 0 && len(b.BufferBarriers) == 0 && len(b.ImageBarriers) == 0
}

// Translate converts resource barriers into a pipeline barrier batch. Transitions of
// resources missing from objects are an error.
func (o *Objects) Translate(barriers []native.ResourceBarrier) (Batch, error) {
	var batch Batch

	for _, barrier := range barriers {
		switch barrier.Type {
		case native.BarrierTypeTransition:
			err := o.translateTransition(&batch, barrier)
			if err != nil {
				return Batch{}, err
			}
		case native.BarrierTypeUAV:
			shaderStages := core1_0.PipelineStageVertexShader | core1_0.PipelineStageFragmentShader | core1_0.PipelineStageComputeShader
			batch.SrcStages |= shaderStages
			batch.DstStages |= shaderStages
			batch.MemoryBarriers = append(batch.MemoryBarriers, core1_0.MemoryBarrier{
				SrcAccessMask: core1_0.AccessShaderWrite,
				DstAccessMask: core1_0.AccessShaderRead | core1_0.AccessShaderWrite,
			})
		case native.BarrierTypeAliasing:
			batch.SrcStages |= core1_0.PipelineStageAllCommands
			batch.DstStages |= core1_0.PipelineStageAllCommands
			batch.MemoryBarriers = append(batch.MemoryBarriers, core1_0.MemoryBarrier{
				SrcAccessMask: core1_0.AccessMemoryWrite,
				DstAccessMask: core1_0.AccessMemoryRead | core1_0.AccessMemoryWrite,
			})
		default:
			return Batch{}, errors.Newf("unknown barrier type %d", barrier.Type)
		}
	}

	if batch.SrcStages == 0 {
		batch.SrcStages = core1_0.PipelineStageTopOfPipe
	}
	if batch.DstStages == 0 {
		batch.DstStages = core1_0.PipelineStageBottomOfPipe
	}
	return batch, nil
}

func (o *Objects) translateTransition(batch *Batch, barrier native.ResourceBarrier) error {
	obj, ok := o.lookup(barrier.Resource)
	if !ok {
		return errors.Newf("no vulkan object is registered for resource %q", barrier.Resource.Name())
	}

	before := StateAccess(barrier.StateBefore, obj.presentable)
	after := StateAccess(barrier.StateAfter, obj.presentable)
	batch.SrcStages |= before.Stages
	batch.DstStages |= after.Stages

	if obj.buffer != nil {
		batch.BufferBarriers = append(batch.BufferBarriers, core1_0.BufferMemoryBarrier{
			SrcAccessMask:       before.Access,
			DstAccessMask:       after.Access,
			SrcQueueFamilyIndex: queueFamilyIgnored,
			DstQueueFamilyIndex: queueFamilyIgnored,
			Buffer:              obj.buffer,
			Offset:              0,
			Size:                barrier.Resource.Desc().Width,
		})
		return nil
	}

	batch.ImageBarriers = append(batch.ImageBarriers, core1_0.ImageMemoryBarrier{
		SrcAccessMask:       before.Access,
		DstAccessMask:       after.Access,
		OldLayout:           before.Layout,
		NewLayout:           after.Layout,
		SrcQueueFamilyIndex: queueFamilyIgnored,
		DstQueueFamilyIndex: queueFamilyIgnored,
		Image:               obj.image,
		SubresourceRange:    subresourceRange(barrier.Resource.Desc(), barrier.Subresource),
	})
	return nil
}

func subresourceRange(desc native.ResourceDesc, subresource uint32) core1_0.ImageSubresourceRange {
	aspect := core1_0.ImageAspectColor
	if desc.Format.IsDepthStencil() {
		aspect = 0
		if desc.Format.HasDepth() {
			aspect |= core1_0.ImageAspectDepth
		}
		if desc.Format.HasStencil() {
			aspect |= core1_0.ImageAspectStencil
		}
	}

	mips := max(desc.MipLevels, 1)
	if subresource == native.AllSubresources {
		return core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     mips,
			BaseArrayLayer: 0,
			LayerCount:     desc.ArraySize(),
		}
	}

	return core1_0.ImageSubresourceRange{
		AspectMask:     aspect,
		BaseMipLevel:   int(subresource) % mips,
		LevelCount:     1,
		BaseArrayLayer: int(subresource) / mips,
		LayerCount:     1,
	}
}

// ResourceBarrier translates barriers and records them as one pipeline barrier
func (r *Recorder) ResourceBarrier(barriers []native.ResourceBarrier) {
	if r.err != nil || len(barriers) == 0 {
		return
	}

	batch, err := r.objects.Translate(barriers)
	if err != nil {
		r.err = err
		return
	}

	err = r.buffer.CmdPipelineBarrier(batch.SrcStages, batch.DstStages, 0, batch.MemoryBarriers, batch.BufferBarriers, batch.ImageBarriers)
	if err != nil {
		r.err = errors.Wrap(err, "failed to record pipeline barrier")
	}
}
