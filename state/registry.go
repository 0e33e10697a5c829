package state

import (
	"strconv"

	"github.com/dolthub/swiss"
	"github.com/google/uuid"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/recorder/internal/utils"
	"github.com/vkngwrapper/recorder/native"
)

// Registry holds the authoritative state of every live resource on a device. Trackers resolve
// their pending barriers against it and commit their final states into it while it is locked,
// which is what orders state changes by submission rather than by recording.
type Registry struct {
	mutex  utils.OptionalMutex
	states *swiss.Map[uuid.UUID, *ResourceState]
}

// NewRegistry creates an empty registry. When externallySynchronized is true the registry does
// not take a mutex in Lock, but Lock must still bracket resolve and commit calls.
func NewRegistry(externallySynchronized bool) *Registry {
	return &Registry{
		mutex:  utils.OptionalMutex{UseMutex: !externallySynchronized},
		states: swiss.NewMap[uuid.UUID, *ResourceState](64),
	}
}

// Lock takes the registry lock. Trackers can only flush pending barriers and commit final
// states between Lock and Unlock.
func (r *Registry) Lock() {
	r.mutex.Lock()
}

func (r *Registry) Unlock() {
	r.mutex.Unlock()
}

func (r *Registry) mustBeLocked(operation string) {
	if !r.mutex.Held() {
		panic(operation + " requires the resource state registry to be locked")
	}
}

// AddGlobalResourceState registers a resource in the provided state, replacing any state it
// previously had
func (r *Registry) AddGlobalResourceState(resource Resource, state native.ResourceState) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.states.Put(resource.ID(), &ResourceState{State: state})
}

// RemoveGlobalResourceState forgets a resource. It should be called when the resource is
// destroyed or its native object is replaced.
func (r *Registry) RemoveGlobalResourceState(resource Resource) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.states.Delete(resource.ID())
}

// GlobalState returns a copy of the registered state of a resource
func (r *Registry) GlobalState(resource Resource) (ResourceState, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	state, ok := r.states.Get(resource.ID())
	if !ok {
		return ResourceState{}, false
	}
	return *state.clone(), true
}

func (r *Registry) Count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.states.Count()
}

func (r *Registry) lockedState(id uuid.UUID) (*ResourceState, bool) {
	return r.states.Get(id)
}

func (r *Registry) commitLocked(id uuid.UUID, final *finalState) {
	if final.whole {
		r.states.Put(id, final.state.clone())
		return
	}

	global, ok := r.states.Get(id)
	if !ok {
		global = &ResourceState{State: native.ResourceStateCommon}
		r.states.Put(id, global)
	}
	for subresource, state := range final.state.Subresources {
		global.Set(state, subresource)
	}
}

func (r *Registry) PrintDetailedMap(writer *jwriter.Writer) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	objState := writer.Object()
	defer objState.End()

	r.states.Iter(func(id uuid.UUID, state *ResourceState) bool {
		resourceObj := objState.Name(id.String()).Object()
		resourceObj.Name("State").String(state.State.String())
		if len(state.Subresources) > 0 {
			subObj := resourceObj.Name("Subresources").Object()
			for subresource, subState := range state.Subresources {
				subObj.Name(strconv.FormatUint(uint64(subresource), 10)).String(subState.String())
			}
			subObj.End()
		}
		resourceObj.End()
		return false
	})
}
