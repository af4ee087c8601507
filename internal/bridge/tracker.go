package bridge

import (
	"context"
	"sync"
)

// Stats counts allocations observed by a TrackedModule.
type Stats struct {
	// Allocations made by the host through Allocate.
	Allocations int
	// ModuleResults is the number of result regions returned by Parse.
	ModuleResults int
	// Releases forwarded to the module.
	Releases int
	// Live regions not yet released.
	Live int
}

// Balanced reports whether every acquired region has been released.
func (s Stats) Balanced() bool {
	return s.Live == 0 && s.Releases == s.Allocations+s.ModuleResults
}

// TrackedModule decorates a Module and checks region lifetimes: every
// released pointer must be live, and is live at most once.
type TrackedModule struct {
	inner Module

	mu    sync.Mutex
	stats Stats

	// live maps a pointer to the lengths of live regions starting there.
	// Zero-length regions may share a pointer with the next allocation.
	live map[uint32][]uint32

	// results holds result pointers whose length is only known at release.
	results map[uint32]int
}

// Track wraps mod with lifetime accounting.
func Track(mod Module) *TrackedModule {
	return &TrackedModule{
		inner:   mod,
		live:    make(map[uint32][]uint32),
		results: make(map[uint32]int),
	}
}

// Allocate forwards to the wrapped module and records the region.
func (t *TrackedModule) Allocate(ctx context.Context, length uint32) (uint32, error) {
	ptr, err := t.inner.Allocate(ctx, length)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.live[ptr] = append(t.live[ptr], length)
	t.stats.Allocations++
	t.stats.Live++

	return ptr, nil
}

// Parse forwards to the wrapped module and records the result region.
func (t *TrackedModule) Parse(ctx context.Context, namePtr, nameLen, textPtr, textLen uint32) (uint32, error) {
	ptr, err := t.inner.Parse(ctx, namePtr, nameLen, textPtr, textLen)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.results[ptr]++
	t.stats.ModuleResults++
	t.stats.Live++

	return ptr, nil
}

// Release rejects pointers that are not live, then forwards.
func (t *TrackedModule) Release(ctx context.Context, ptr, length uint32) error {
	t.mu.Lock()
	if !t.forget(ptr, length) {
		t.mu.Unlock()
		return &ReleaseError{Address: ptr, Length: length, Reason: "region is not live"}
	}
	t.stats.Releases++
	t.stats.Live--
	t.mu.Unlock()

	return t.inner.Release(ctx, ptr, length)
}

// forget removes a live region. Host regions must match their length;
// module results are accepted at any length. Caller holds t.mu.
func (t *TrackedModule) forget(ptr, length uint32) bool {
	lengths := t.live[ptr]
	for i, l := range lengths {
		if l != length {
			continue
		}
		lengths = append(lengths[:i], lengths[i+1:]...)
		if len(lengths) == 0 {
			delete(t.live, ptr)
		} else {
			t.live[ptr] = lengths
		}
		return true
	}

	if t.results[ptr] > 0 {
		t.results[ptr]--
		if t.results[ptr] == 0 {
			delete(t.results, ptr)
		}
		return true
	}

	return false
}

// Memory returns the wrapped module memory.
func (t *TrackedModule) Memory() Memory {
	return t.inner.Memory()
}

// Stats returns a snapshot of the counters.
func (t *TrackedModule) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
