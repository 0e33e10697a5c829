package utils

import (
	"sync"
	"sync/atomic"
)

// OptionalMutex is a mutex that can be switched off for callers that synchronize externally.
// It remembers whether it is held either way, so that code which must only run under the lock
// can assert that it does.
type OptionalMutex struct {
	Mutex    sync.Mutex
	UseMutex bool

	held atomic.Bool
}

func (m *OptionalMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
	m.held.Store(true)
}

func (m *OptionalMutex) Unlock() {
	m.held.Store(false)
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}

// Held returns true between Lock and Unlock
func (m *OptionalMutex) Held() bool {
	return m.held.Load()
}

type OptionalRWMutex struct {
	Mutex    sync.RWMutex
	UseMutex bool
}

func (m *OptionalRWMutex) TryLock() bool {
	if m.UseMutex {
		return m.Mutex.TryLock()
	}

	return true
}

func (m *OptionalRWMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalRWMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}

func (m *OptionalRWMutex) RLock() {
	if m.UseMutex {
		m.Mutex.RLock()
	}
}

func (m *OptionalRWMutex) RUnlock() {
	if m.UseMutex {
		m.Mutex.RUnlock()
	}
}
