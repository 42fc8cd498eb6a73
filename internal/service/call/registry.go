package call

import (
	"sync"

	"github.com/zhouzirui/helpline/backend/internal/model/call"
)

// Registry is the in-memory store of live caller sessions, keyed by
// session id. It is the only shared structure between the transport
// handlers and the operator surface; nothing survives a restart.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*call.Session
}

// NewRegistry creates an empty registry, constructed once at startup
// and passed to every handler.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*call.Session)}
}

// Register adds a session under its id.
func (r *Registry) Register(s *call.Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

// Get looks a session up by id.
func (r *Registry) Get(id string) (*call.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes a session entry. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Waiting snapshots all callers still waiting for an operator,
// excluding operator connections.
func (r *Registry) Waiting() []call.WaitingCaller {
	r.mu.RLock()
	defer r.mu.RUnlock()

	callers := make([]call.WaitingCaller, 0, len(r.sessions))
	for _, s := range r.sessions {
		if info, ok := s.WaitingSnapshot(); ok {
			callers = append(callers, info)
		}
	}
	return callers
}

// Active snapshots all callers currently bridged to the AI backend,
// excluding operator connections.
func (r *Registry) Active() []call.ActiveCaller {
	r.mu.RLock()
	defer r.mu.RUnlock()

	callers := make([]call.ActiveCaller, 0, len(r.sessions))
	for _, s := range r.sessions {
		if info, ok := s.ActiveSnapshot(); ok {
			callers = append(callers, info)
		}
	}
	return callers
}
