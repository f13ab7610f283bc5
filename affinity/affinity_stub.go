//go:build !linux && !windows
// +build !linux,!windows

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.
// Returns error to indicate unavailability.

package affinity

import (
	"github.com/pkg/errors"

	"github.com/momentics/hioload-pktq/api"
)

// setAffinityPlatform is a stub for platforms where CPU affinity is not supported.
func setAffinityPlatform(cpuID int) error {
	return errors.Wrapf(api.ErrNotFound, "affinity: not supported on this platform (cpu %d)", cpuID)
}
