package mcp

import "sync"

// SessionRegistry maps loop IDs to the MCP session that drives them.
// Populated when a session starts a loop or records an iteration.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string // loopID → sessionID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

// Register associates a loop ID with a session ID.
// A later session recording the same loop takes it over.
func (r *SessionRegistry) Register(loopID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[loopID] = sessionID
}

// SessionFor returns the session ID for the given loop, if connected.
func (r *SessionRegistry) SessionFor(loopID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.sessions[loopID]
	return sid, ok
}

// Forget drops the mapping for one loop once it can no longer emit events.
func (r *SessionRegistry) Forget(loopID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, loopID)
}

// Remove deletes all loop mappings for the given session ID.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for lid, sid := range r.sessions {
		if sid == sessionID {
			delete(r.sessions, lid)
		}
	}
}

// Len returns the number of tracked loops.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
