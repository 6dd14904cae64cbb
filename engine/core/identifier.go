package core

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type resourceEntry struct {
	id       uuid.UUID
	label    string
	release  func()
	released bool
}

// ResourceRegistry owns the release functions of created resources and runs
// each of them exactly once, newest first.
type ResourceRegistry struct {
	mu      sync.Mutex
	entries []*resourceEntry
	index   map[uuid.UUID]*resourceEntry
}

func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{
		index: make(map[uuid.UUID]*resourceEntry),
	}
}

// Track registers a release function and returns the id it is known by.
func (r *ResourceRegistry) Track(label string, release func()) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &resourceEntry{
		id:      uuid.New(),
		label:   label,
		release: release,
	}
	r.entries = append(r.entries, e)
	r.index[e.id] = e
	return e.id
}

// Release runs the release function of a single resource ahead of ReleaseAll.
func (r *ResourceRegistry) Release(id uuid.UUID) error {
	r.mu.Lock()
	e, ok := r.index[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("resource registry: id '%s' is not tracked. Nothing was done", id)
	}
	if e.released {
		r.mu.Unlock()
		return fmt.Errorf("resource registry: '%s' (%s) already released. Nothing was done", e.label, id)
	}
	e.released = true
	r.mu.Unlock()

	LogDebug("releasing %s (%s)", e.label, id)
	e.release()
	return nil
}

// ReleaseAll releases every live resource in reverse registration order and
// returns how many were released.
func (r *ResourceRegistry) ReleaseAll() int {
	r.mu.Lock()
	pending := make([]*resourceEntry, 0, len(r.entries))
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if !e.released {
			e.released = true
			pending = append(pending, e)
		}
	}
	r.entries = nil
	r.index = make(map[uuid.UUID]*resourceEntry)
	r.mu.Unlock()

	for _, e := range pending {
		LogDebug("releasing %s (%s)", e.label, e.id)
		e.release()
	}
	return len(pending)
}

// Live returns the number of tracked resources not yet released.
func (r *ResourceRegistry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if !e.released {
			n++
		}
	}
	return n
}
