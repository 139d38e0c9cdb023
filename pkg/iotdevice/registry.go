package iotdevice

import (
	"fmt"
	"sync"
)

// serviceEntry binds a service to its reported-value baseline.
//
// mu serialises detection, reporting, baseline updates, and platform
// writes for this one service.
type serviceEntry struct {
	id  string
	svc Service

	mu       sync.Mutex
	snapshot map[string]any
	// loaded is set once the persisted baseline has been consulted.
	loaded bool
}

// Registry maps service IDs to services.
//
// Entries live in an insertion-ordered arena indexed by ID. Entries are
// never removed, so an index stays valid for the registry's lifetime.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	entries []*serviceEntry
	index   map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[string]int),
	}
}

// Register adds a service under id with an empty baseline.
//
// Returns ErrDuplicateService if id is taken (the existing service is kept),
// or ErrInvalidService for an empty id or nil service.
func (r *Registry) Register(id string, svc Service) error {
	if id == "" {
		return fmt.Errorf("%w: empty service id", ErrInvalidService)
	}
	if svc == nil {
		return fmt.Errorf("%w: nil service %q", ErrInvalidService, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateService, id)
	}

	r.index[id] = len(r.entries)
	r.entries = append(r.entries, &serviceEntry{
		id:       id,
		svc:      svc,
		snapshot: make(map[string]any),
	})
	return nil
}

// Lookup returns the service registered under id.
// Absence is reported through the bool, not as an error.
func (r *Registry) Lookup(id string) (Service, bool) {
	e, ok := r.entry(id)
	if !ok {
		return nil, false
	}
	return e.svc, true
}

// IDs returns the registered service IDs in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.id
	}
	return ids
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// entry returns the arena slot for id.
func (r *Registry) entry(id string) (*serviceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.entries[i], true
}

// all returns every entry in registration order.
func (r *Registry) all() []*serviceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*serviceEntry(nil), r.entries...)
}
