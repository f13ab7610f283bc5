// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for the packet queue.

package pktq

import "errors"

var (
	// ErrFull indicates the precedence lane or the whole queue is at capacity.
	// It is an expected outcome under load; drop or sacrifice policy belongs
	// to the caller.
	ErrFull = errors.New("pktq: queue full")

	// ErrNotEmpty indicates an operation that requires an empty queue.
	ErrNotEmpty = errors.New("pktq: queue not empty")
)
