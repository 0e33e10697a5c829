package gfx

import (
	stderrors "errors"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestDeviceFailureIsClassifiable(t *testing.T) {
	nativeErr := errors.New("device removed")
	err := deviceFailure(nativeErr, "failed to signal %s queue fence to %d", "direct", 3)

	require.True(t, stderrors.Is(err, ErrDeviceFailure))
	require.True(t, errors.Is(err, ErrDeviceFailure))
	require.Contains(t, err.Error(), "failed to signal direct queue fence to 3")
	require.Contains(t, err.Error(), "device removed")
	require.False(t, errors.Is(err, ErrInvalidState))
}
