package fake

import (
	"sync"

	"github.com/vkngwrapper/recorder/native"
)

type Fence struct {
	mutex     sync.Mutex
	completed uint64
	waiters   map[uint64][]chan struct{}
	Released  bool
}

var _ native.Fence = &Fence{}

func NewFence(initialValue uint64) *Fence {
	return &Fence{
		completed: initialValue,
		waiters:   make(map[uint64][]chan struct{}),
	}
}

func (f *Fence) CompletedValue() uint64 {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.completed
}

func (f *Fence) Done(value uint64) <-chan struct{} {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	done := make(chan struct{})
	if f.completed >= value {
		close(done)
		return done
	}

	f.waiters[value] = append(f.waiters[value], done)
	return done
}

// Complete advances the fence to value as if the GPU had signaled it. Values lower than the
// current completed value are ignored.
func (f *Fence) Complete(value uint64) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if value <= f.completed {
		return
	}
	f.completed = value

	for waitValue, channels := range f.waiters {
		if waitValue > value {
			continue
		}
		for _, done := range channels {
			close(done)
		}
		delete(f.waiters, waitValue)
	}
}

func (f *Fence) Release() { f.Released = true }
