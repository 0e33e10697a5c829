package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptionalMutexHeld(t *testing.T) {
	for _, useMutex := range []bool{true, false} {
		m := OptionalMutex{UseMutex: useMutex}
		require.False(t, m.Held())
		m.Lock()
		require.True(t, m.Held())
		m.Unlock()
		require.False(t, m.Held())
	}
}

func TestOptionalRWMutexDisabled(t *testing.T) {
	m := OptionalRWMutex{}
	require.True(t, m.TryLock())
	require.True(t, m.TryLock())
	m.Unlock()
	m.RLock()
	m.RUnlock()
}

func TestOptionalRWMutexEnabled(t *testing.T) {
	m := OptionalRWMutex{UseMutex: true}
	require.True(t, m.TryLock())
	require.False(t, m.TryLock())
	m.Unlock()
}
