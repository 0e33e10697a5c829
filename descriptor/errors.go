package descriptor

import "github.com/cockroachdb/errors"

// ErrAllocationTooLarge is returned from Allocator.Allocate when more descriptors are requested
// than a single descriptor heap of that type may hold
var ErrAllocationTooLarge = errors.New("descriptor allocation exceeds the maximum heap size")
