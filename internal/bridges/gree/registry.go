package gree

import "sync"

// Registry is the set of managed devices, each with its session. It is
// written by setup and discovery and read by the poller, dispatcher and
// status API. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Session
	byAddr map[string]string // host:port -> id
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*Session),
		byAddr: make(map[string]string),
	}
}

// Add inserts a session. It returns false, leaving the registry unchanged,
// when the device ID or address is already present.
func (r *Registry) Add(s *Session) bool {
	dev := s.Device()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[dev.ID()]; exists {
		return false
	}
	if _, exists := r.byAddr[dev.Address()]; exists {
		return false
	}
	r.byID[dev.ID()] = s
	r.byAddr[dev.Address()] = dev.ID()
	r.order = append(r.order, dev.ID())
	return true
}

// Get returns the session for a device ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// GetByAddress returns the session for a host:port address.
func (r *Registry) GetByAddress(addr string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byAddr[addr]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

// List returns all sessions in insertion order.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Snapshots returns a read-only copy of every device, in insertion order.
func (r *Registry) Snapshots() []Snapshot {
	sessions := r.List()
	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Device().Snapshot())
	}
	return out
}

// Snapshot returns a read-only copy of one device.
func (r *Registry) Snapshot(id string) (Snapshot, bool) {
	s, ok := r.Get(id)
	if !ok {
		return Snapshot{}, false
	}
	return s.Device().Snapshot(), true
}
