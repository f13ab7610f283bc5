//go:build windows
// +build windows

// File: pkt/alloc_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Windows-specific packet buffer allocator using VirtualAlloc.

package pkt

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"

	"github.com/momentics/hioload-pktq/api"
)

type virtualAllocator struct{}

func newPageAllocator() api.Allocator {
	return virtualAllocator{}
}

func (virtualAllocator) Alloc(size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return nil, errors.Wrap(err, "VirtualAlloc")
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func (virtualAllocator) Free(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	_ = windows.VirtualFree(uintptr(unsafe.Pointer(&buf[:1][0])), 0, windows.MEM_RELEASE)
}
