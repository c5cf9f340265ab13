// Package registry tracks which manipulator IDs are currently registered
// against which binding, and the handful of per-manipulator flags that
// live alongside registration rather than inside a binding (component
// C3). It is deliberately dumb: it holds no movement state and makes no
// binding calls beyond the registration check itself.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/virtualbrainlab/ephys-link/internal/binding"
	"github.com/virtualbrainlab/ephys-link/internal/brokererr"
)

// Entry is the per-manipulator bookkeeping the registry owns.
type Entry struct {
	ID           string
	InsideBrain  bool
	Calibrated   bool
}

// Registry is safe for concurrent use.
type Registry struct {
	bind binding.Binding

	mu      sync.RWMutex
	entries map[string]*Entry
}

// New builds an empty registry bound to a single vendor binding. The
// spec's broker owns exactly one binding for its process lifetime, so the
// registry does not need to track one.
func New(bind binding.Binding) *Registry {
	return &Registry{bind: bind, entries: make(map[string]*Entry)}
}

// Register adds id if it is a valid, connected, not-yet-registered
// manipulator ID known to the binding. Registration is idempotent-unsafe
// by design: a second call for the same id returns ALREADY_REGISTERED.
func (r *Registry) Register(ctx context.Context, id string) error {
	if !r.bind.ValidID(id) {
		return brokererr.New(brokererr.InvalidID, id)
	}

	connected, err := r.bind.GetManipulators(ctx)
	if err != nil {
		return brokererr.Internalf("%v", err)
	}
	if !contains(connected, id) {
		return brokererr.New(brokererr.NotConnected, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return brokererr.New(brokererr.AlreadyRegistered, id)
	}
	r.entries[id] = &Entry{ID: id}
	return nil
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// Unregister removes id. Unregistering an unknown id is a no-op success.
// Session teardown does not go through Unregister; it calls Reset.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	return nil
}

// Get returns the entry for id, or NOT_REGISTERED.
func (r *Registry) Get(id string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, brokererr.New(brokererr.NotRegistered, id)
	}
	cp := *e
	return &cp, nil
}

// List returns every registered ID, sorted for deterministic wire output.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetInsideBrain records whether id's probe tip is inside the brain. The
// arbiter consults this to restrict set_position to the depth axis; it
// never mutates it.
func (r *Registry) SetInsideBrain(id string, inside bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return brokererr.New(brokererr.NotRegistered, id)
	}
	e.InsideBrain = inside
	return nil
}

// SetCalibrated records that id has completed (or bypassed) calibration.
func (r *Registry) SetCalibrated(id string, calibrated bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return brokererr.New(brokererr.NotRegistered, id)
	}
	e.Calibrated = calibrated
	return nil
}

// Reset clears every entry. Called on session disconnect so a new client
// starts from a clean registry.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*Entry)
}
