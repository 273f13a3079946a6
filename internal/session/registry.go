package session

import (
	"sync"

	"go-chatbot/internal/identity"
)

// Registry is the process-local allow-list of live sessions, keyed by the
// SHA-1 of the token. It does not survive a restart.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]identity.User
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]identity.User)}
}

func (r *Registry) Put(key string, u identity.User) {
	r.mu.Lock()
	r.sessions[key] = u
	r.mu.Unlock()
}

func (r *Registry) Get(key string) (identity.User, bool) {
	r.mu.RLock()
	u, ok := r.sessions[key]
	r.mu.RUnlock()
	return u, ok
}

func (r *Registry) Delete(key string) {
	r.mu.Lock()
	delete(r.sessions, key)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
