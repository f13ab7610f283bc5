// File: txpath/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package txpath

import "errors"

var (
	// ErrNoBuffer is returned by Send when the pool has no free buffer. The
	// path stays throttled until the pool reports availability.
	ErrNoBuffer = errors.New("txpath: no free buffer")

	// ErrDropped is returned by Send when the packet could not be queued and
	// the policy chose not to make room.
	ErrDropped = errors.New("txpath: packet dropped")
)
