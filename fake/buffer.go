// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake buffer allocator for testing ownership and failure paths.

package fake

import (
	"errors"
	"sync"

	"github.com/momentics/hioload-pktq/api"
)

// ErrAllocFailed is returned once the allocator's budget is spent.
var ErrAllocFailed = errors.New("fake: allocation failed")

// Allocator is a fake api.Allocator that counts outstanding buffers and can
// be told to fail after a number of successful allocations.
type Allocator struct {
	mu          sync.Mutex
	budget      int // successful allocations left; <0 means unlimited
	allocated   int64
	freed       int64
	outstanding int64
}

var _ api.Allocator = (*Allocator)(nil)

// NewAllocator creates an allocator that never fails.
func NewAllocator() *Allocator {
	return &Allocator{budget: -1}
}

// NewFailingAllocator creates an allocator that fails after n allocations.
func NewFailingAllocator(n int) *Allocator {
	return &Allocator{budget: n}
}

// SetBudget resets the number of allocations allowed before failing.
// A negative budget means unlimited.
func (a *Allocator) SetBudget(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.budget = n
}

// Alloc implements api.Allocator.
func (a *Allocator) Alloc(size int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.budget == 0 {
		return nil, ErrAllocFailed
	}
	if a.budget > 0 {
		a.budget--
	}
	a.allocated++
	a.outstanding++
	return make([]byte, size), nil
}

// Free implements api.Allocator.
func (a *Allocator) Free(buf []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freed++
	a.outstanding--
}

// Outstanding returns the number of buffers allocated and not yet freed.
func (a *Allocator) Outstanding() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outstanding
}

// Allocated returns the total number of successful allocations.
func (a *Allocator) Allocated() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocated
}

// Freed returns the total number of frees.
func (a *Allocator) Freed() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.freed
}
