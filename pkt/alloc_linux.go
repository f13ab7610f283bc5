//go:build linux
// +build linux

// File: pkt/alloc_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux-specific packet buffer allocator using anonymous mmap.

package pkt

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-pktq/api"
)

// mmapAllocator maps each buffer as a private anonymous region.
type mmapAllocator struct{}

func newPageAllocator() api.Allocator {
	return mmapAllocator{}
}

func (mmapAllocator) Alloc(size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "mmap")
	}
	return buf, nil
}

func (mmapAllocator) Free(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	_ = unix.Munmap(buf[:cap(buf)])
}
