package gfx

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/vkngwrapper/recorder/native"
)

// lifetime counts the command lists that reference an object. An object released while it is
// referenced is kept alive by the device until every list referencing it has been reset.
type lifetime struct {
	id       uuid.UUID
	refs     atomic.Int32
	released atomic.Bool
}

func (l *lifetime) ID() uuid.UUID { return l.id }
func (l *lifetime) life() *lifetime { return l }

// Tracked is an object whose lifetime a command list can extend
type Tracked interface {
	ID() uuid.UUID
	life() *lifetime
}

// TrackedResource is a resource whose state and lifetime a command list can track
type TrackedResource interface {
	Tracked
	Native() native.Resource
}

// ShaderResource is a resource that can be bound through a shader resource view
type ShaderResource interface {
	TrackedResource
	ShaderResourceView() (native.CPUDescriptorHandle, error)
}

// UnorderedAccessResource is a resource that can be bound through an unordered access view.
// Buffers only have a view for subresource 0.
type UnorderedAccessResource interface {
	TrackedResource
	UnorderedAccessView(subresource uint32) (native.CPUDescriptorHandle, error)
}

// Resource is the common part of every buffer and texture. Its ID stays the same when the
// native resource is recreated, which is what the state registry keys on.
type Resource struct {
	lifetime
	device     *Device
	native     native.Resource
	clearValue *native.ClearValue
	name       string
	// owned is false for resources whose native object belongs to someone else, such as
	// swap chain buffers
	owned bool
}

func (r *Resource) init(device *Device, resource native.Resource, clearValue *native.ClearValue, name string, owned bool) {
	r.id = uuid.New()
	r.device = device
	r.native = resource
	r.clearValue = clearValue
	r.owned = owned
	r.SetName(name)
}

func (r *Resource) Native() native.Resource { return r.native }
func (r *Resource) Desc() native.ResourceDesc { return r.native.Desc() }
func (r *Resource) Name() string { return r.name }
func (r *Resource) IsValid() bool { return r.native != nil }

func (r *Resource) SetName(name string) {
	r.name = name
	if r.native != nil && name != "" {
		r.native.SetName(name)
	}
}

// ClearValue returns the optimized clear value the resource was created with, if any
func (r *Resource) ClearValue() *native.ClearValue { return r.clearValue }

// replace swaps in a new native resource after releasing the old one. The resource keeps its ID.
// freeViews releases the views of the old resource and runs along with it.
func (r *Resource) replace(resource native.Resource, freeViews func()) {
	r.device.releaseWhenUnused(&r.lifetime, combineReleasers(freeViews, r.nativeReleaser()))
	r.native = resource
	r.SetName(r.name)
}

func (r *Resource) nativeReleaser() func() {
	resource := r.native
	if resource == nil || !r.owned {
		return nil
	}
	return resource.Release
}

func combineReleasers(releasers ...func()) func() {
	var kept []func()
	for _, release := range releasers {
		if release != nil {
			kept = append(kept, release)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return func() {
		for _, release := range kept {
			release()
		}
	}
}

// release forgets the resource's global state, frees its views and releases the native
// resource once no command list references it. Everything is kept until then since a list that
// staged one of the views copies it when it draws, and submitting a list that references the
// resource commits to its state.
func (r *Resource) release(freeViews func()) {
	if r.released.Swap(true) {
		return
	}

	releaseNative := r.nativeReleaser()
	r.device.releaseWhenUnused(&r.lifetime, func() {
		if freeViews != nil {
			freeViews()
		}
		r.device.registry.RemoveGlobalResourceState(r)
		if releaseNative != nil {
			releaseNative()
		}
	})
}
