package state

import (
	"github.com/google/uuid"
	"github.com/vkngwrapper/recorder/native"
)

// Resource is anything whose state can be tracked. The identity must be stable for the life of
// the resource, even if its native object is recreated.
type Resource interface {
	ID() uuid.UUID
	Native() native.Resource
}

// ResourceState is the state of a whole resource plus any subresources that have diverged from it
type ResourceState struct {
	State        native.ResourceState
	Subresources map[uint32]native.ResourceState
}

// Set changes the state of a single subresource, or of every subresource when subresource is
// native.AllSubresources
func (s *ResourceState) Set(state native.ResourceState, subresource uint32) {
	if subresource == native.AllSubresources {
		s.State = state
		s.Subresources = nil
		return
	}

	if s.Subresources == nil {
		s.Subresources = make(map[uint32]native.ResourceState)
	}
	s.Subresources[subresource] = state
}

// Get returns the state of a subresource. For native.AllSubresources, or for subresources
// that have not diverged, the whole-resource state is returned.
func (s *ResourceState) Get(subresource uint32) native.ResourceState {
	if subresource != native.AllSubresources {
		if state, ok := s.Subresources[subresource]; ok {
			return state
		}
	}
	return s.State
}

// Uniform returns true if no subresource has a state that differs from the whole resource
func (s *ResourceState) Uniform() bool {
	for _, state := range s.Subresources {
		if state != s.State {
			return false
		}
	}
	return true
}

func (s *ResourceState) clone() *ResourceState {
	c := &ResourceState{State: s.State}
	if len(s.Subresources) > 0 {
		c.Subresources = make(map[uint32]native.ResourceState, len(s.Subresources))
		for sub, state := range s.Subresources {
			c.Subresources[sub] = state
		}
	}
	return c
}

// finalState is what a tracker knows about a resource after the barriers recorded so far.
// Until the whole resource has been transitioned, only the subresources in the map are known.
type finalState struct {
	resource Resource
	state    ResourceState
	whole    bool
}

func (f *finalState) lookup(subresource uint32) (native.ResourceState, bool) {
	if subresource != native.AllSubresources {
		if state, ok := f.state.Subresources[subresource]; ok {
			return state, true
		}
	}
	return f.state.State, f.whole
}

func (f *finalState) set(state native.ResourceState, subresource uint32) {
	if subresource == native.AllSubresources {
		f.whole = true
	}
	f.state.Set(state, subresource)
}
