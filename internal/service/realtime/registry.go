package realtime

import (
	"sync"
	"time"

	"github.com/zhouzirui/realtime-relay/backend/internal/metrics"
)

// Registry tracks live sessions so they can be reaped or closed on shutdown.
// Sessions are never exposed over HTTP.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Add tracks a session. It reports false, leaving the registry untouched,
// when the id is already taken.
func (r *Registry) Add(sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sess.ID]; exists {
		return false
	}
	r.sessions[sess.ID] = sess
	metrics.ActiveSessions.Inc()
	return true
}

// Get looks a session up by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	return sess, ok
}

// Remove stops tracking a session and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	metrics.ActiveSessions.Dec()
	return true
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns the tracked sessions.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}

// Idle returns sessions with no channel activity since cutoff.
func (r *Registry) Idle(cutoff time.Time) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Session
	for _, sess := range r.sessions {
		if sess.idleSince(cutoff) {
			out = append(out, sess)
		}
	}
	return out
}
