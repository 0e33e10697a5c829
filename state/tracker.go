package state

import (
	"github.com/dolthub/swiss"
	"github.com/google/uuid"
	"github.com/vkngwrapper/recorder/native"
)

// BarrierSink receives batches of barriers. native.CommandList satisfies it.
type BarrierSink interface {
	ResourceBarrier(barriers []native.ResourceBarrier)
}

type pendingTransition struct {
	resource    Resource
	subresource uint32
	stateAfter  native.ResourceState
}

// Tracker records the barriers needed by a single command list. Barriers between states the
// list itself established are emitted directly. The first transition of each resource cannot
// be resolved until the list is submitted, since only then is the resource's prior state
// known, so it is kept as a pending transition and resolved against the Registry.
//
// A Tracker belongs to one command list and is not safe for concurrent use.
type Tracker struct {
	registry *Registry

	pending  []pendingTransition
	barriers []native.ResourceBarrier
	final    *swiss.Map[uuid.UUID, *finalState]
}

func NewTracker(registry *Registry) *Tracker {
	return &Tracker{
		registry: registry,
		final:    swiss.NewMap[uuid.UUID, *finalState](16),
	}
}

func (t *Tracker) Registry() *Registry { return t.registry }

// NumBarriers returns the number of barriers waiting for FlushResourceBarriers
func (t *Tracker) NumBarriers() int { return len(t.barriers) }

// NumPendingTransitions returns the number of transitions waiting to be resolved at submission
func (t *Tracker) NumPendingTransitions() int { return len(t.pending) }

// FinalState returns the state the tracker will leave a subresource in, if known
func (t *Tracker) FinalState(resource Resource, subresource uint32) (native.ResourceState, bool) {
	final, ok := t.final.Get(resource.ID())
	if !ok {
		return native.ResourceStateCommon, false
	}
	return final.lookup(subresource)
}

// TransitionResource requests that a resource, or one of its subresources, be in stateAfter
// before the next draw, dispatch or copy. Requesting the state a subresource is already known to
// be in emits nothing.
func (t *Tracker) TransitionResource(resource Resource, stateAfter native.ResourceState, subresource uint32) {
	id := resource.ID()
	final, ok := t.final.Get(id)
	if !ok {
		final = &finalState{resource: resource}
		t.final.Put(id, final)
	}

	if subresource == native.AllSubresources && len(final.state.Subresources) > 0 {
		count := resource.Native().Desc().SubresourceCount()
		for sub := 0; sub < count; sub++ {
			t.transitionSubresource(final, stateAfter, uint32(sub))
		}
	} else {
		t.transitionSubresource(final, stateAfter, subresource)
	}

	final.set(stateAfter, subresource)
}

func (t *Tracker) transitionSubresource(final *finalState, stateAfter native.ResourceState, subresource uint32) {
	stateBefore, known := final.lookup(subresource)
	if !known {
		t.pending = append(t.pending, pendingTransition{
			resource:    final.resource,
			subresource: subresource,
			stateAfter:  stateAfter,
		})
		return
	}

	if stateBefore != stateAfter {
		t.barriers = append(t.barriers, native.TransitionBarrier(final.resource.Native(), stateBefore, stateAfter, subresource))
	}
}

// UAVBarrier orders unordered access to a resource. A nil resource orders all unordered access.
func (t *Tracker) UAVBarrier(resource Resource) {
	var nativeResource native.Resource
	if resource != nil {
		nativeResource = resource.Native()
	}
	t.barriers = append(t.barriers, native.UAVBarrier(nativeResource))
}

// AliasBarrier indicates a change in which of two placed resources occupy the same memory.
// Either may be nil.
func (t *Tracker) AliasBarrier(before, after Resource) {
	var nativeBefore, nativeAfter native.Resource
	if before != nil {
		nativeBefore = before.Native()
	}
	if after != nil {
		nativeAfter = after.Native()
	}
	t.barriers = append(t.barriers, native.AliasingBarrier(nativeBefore, nativeAfter))
}

// FlushResourceBarriers records every queued barrier into sink in a single batch
func (t *Tracker) FlushResourceBarriers(sink BarrierSink) {
	if len(t.barriers) == 0 {
		return
	}

	sink.ResourceBarrier(t.barriers)
	t.barriers = t.barriers[:0]
}

// FlushPendingResourceBarriers resolves each pending transition against the registry and records
// the resulting barriers into sink, which is expected to execute before the tracker's own
// command list. It returns the number of barriers recorded. The registry must be locked.
func (t *Tracker) FlushPendingResourceBarriers(sink BarrierSink) int {
	t.registry.mustBeLocked("FlushPendingResourceBarriers")

	var resolved []native.ResourceBarrier
	for _, pending := range t.pending {
		global, ok := t.registry.lockedState(pending.resource.ID())
		if !ok {
			global = &ResourceState{State: native.ResourceStateCommon}
		}

		nativeResource := pending.resource.Native()
		if pending.subresource == native.AllSubresources && len(global.Subresources) > 0 {
			count := nativeResource.Desc().SubresourceCount()
			for sub := 0; sub < count; sub++ {
				stateBefore := global.Get(uint32(sub))
				if stateBefore != pending.stateAfter {
					resolved = append(resolved, native.TransitionBarrier(nativeResource, stateBefore, pending.stateAfter, uint32(sub)))
				}
			}
			continue
		}

		stateBefore := global.Get(pending.subresource)
		if stateBefore != pending.stateAfter {
			resolved = append(resolved, native.TransitionBarrier(nativeResource, stateBefore, pending.stateAfter, pending.subresource))
		}
	}

	if len(resolved) > 0 {
		sink.ResourceBarrier(resolved)
	}
	t.pending = t.pending[:0]

	return len(resolved)
}

// CommitFinalResourceStates writes the state every tracked resource was left in back to the
// registry. The registry must be locked.
func (t *Tracker) CommitFinalResourceStates() {
	t.registry.mustBeLocked("CommitFinalResourceStates")

	t.final.Iter(func(id uuid.UUID, final *finalState) bool {
		t.registry.commitLocked(id, final)
		return false
	})
	t.final = swiss.NewMap[uuid.UUID, *finalState](16)
}

// Reset discards everything the tracker has recorded
func (t *Tracker) Reset() {
	t.pending = t.pending[:0]
	t.barriers = t.barriers[:0]
	if t.final.Count() > 0 {
		t.final = swiss.NewMap[uuid.UUID, *finalState](16)
	}
}
