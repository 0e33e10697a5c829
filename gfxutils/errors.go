package gfxutils

import "github.com/cockroachdb/errors"

// ErrNotPowerOfTwo is returned from CheckPow2 if the number being tested is not a power of two
var ErrNotPowerOfTwo = errors.New("number must be a power of two")
