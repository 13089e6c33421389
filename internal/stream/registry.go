package stream

import "sync"

// Kind names a stream channel variant.
type Kind string

const (
	// KindStandard pushes unit totals plus the model list.
	KindStandard Kind = "standard"
	// KindHourly additionally pushes the hourly breakdown.
	KindHourly Kind = "hourly"
)

// Registry tracks active sessions per channel kind. Sessions add and remove
// only themselves; there is no cross-session coordination.
type Registry struct {
	mu       sync.Mutex
	sessions map[Kind]map[*Session]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[Kind]map[*Session]struct{})}
}

// Add registers a session under its channel kind.
func (r *Registry) Add(kind Kind, s *Session) {
	if r == nil || s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[kind]; !ok {
		r.sessions[kind] = make(map[*Session]struct{})
	}
	r.sessions[kind][s] = struct{}{}
}

// Remove unregisters a session. Removing an absent session is a no-op, so
// the single teardown path stays idempotent.
func (r *Registry) Remove(kind Kind, s *Session) {
	if r == nil || s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if clients, ok := r.sessions[kind]; ok {
		delete(clients, s)
		if len(clients) == 0 {
			delete(r.sessions, kind)
		}
	}
}

// Count returns the number of active sessions for a kind.
func (r *Registry) Count(kind Kind) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[kind])
}

// Counts snapshots active session counts per channel kind.
func (r *Registry) Counts() map[string]int {
	out := map[string]int{
		string(KindStandard): 0,
		string(KindHourly):   0,
	}
	if r == nil {
		return out
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for kind, clients := range r.sessions {
		out[string(kind)] = len(clients)
	}
	return out
}
