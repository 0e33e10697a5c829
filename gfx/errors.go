package gfx

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrDeviceFailure wraps every error returned by the native device, queue or command list.
	// These are not recoverable.
	ErrDeviceFailure = errors.New("native device failure")
	// ErrInvalidView is returned when a resource is asked for a view it does not support
	ErrInvalidView = errors.New("resource does not support the requested view")
	// ErrInvalidState is returned when a command list is used in a way its current status does
	// not permit
	ErrInvalidState = errors.New("command list status does not permit the operation")
)

// deviceFailure wraps ErrDeviceFailure so that both errors.Is implementations see it. The
// native error is kept in the message and as a secondary error for %+v.
func deviceFailure(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return errors.WithSecondaryError(errors.Wrapf(ErrDeviceFailure, "%s: %v", msg, err), err)
}
