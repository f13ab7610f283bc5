// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files (affinity_linux.go, affinity_windows.go, etc.) guarded by build tags.

package affinity

import (
	"runtime"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-pktq/api"
)

// SetAffinity pins the current OS thread to a given logical CPU on supported platforms.
// The caller must hold the thread with runtime.LockOSThread for the pin to
// stay with the goroutine. On unsupported platforms returns an error.
func SetAffinity(cpuID int) error {
	if cpuID < 0 || cpuID >= runtime.NumCPU() {
		return errors.Wrapf(api.ErrInvalidArgument, "affinity: cpu %d not in [0, %d)", cpuID, runtime.NumCPU())
	}
	return setAffinityPlatform(cpuID)
}

// Pin locks the calling goroutine to its OS thread and pins that thread to
// cpuID. A negative cpuID leaves the thread unpinned but still locked. The
// returned function undoes the lock.
func Pin(cpuID int) (func(), error) {
	runtime.LockOSThread()
	if cpuID < 0 {
		return runtime.UnlockOSThread, nil
	}
	if err := SetAffinity(cpuID); err != nil {
		runtime.UnlockOSThread()
		return func() {}, err
	}
	return runtime.UnlockOSThread, nil
}
