//go:build windows
// +build windows

// control/platform_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows-specific debug probes.

package control

import (
	"runtime"

	"golang.org/x/sys/windows"
)

// RegisterPlatformProbes sets Windows-specific debug probes. Processor
// count spans every processor group, unlike runtime.NumCPU.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	dp.RegisterProbe("platform.processors", func() any {
		return int(windows.GetActiveProcessorCount(windows.ALL_PROCESSOR_GROUPS))
	})
	dp.RegisterProbe("platform.pagesize", func() any {
		return windows.Getpagesize()
	})
}
