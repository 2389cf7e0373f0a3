package live

import (
	"sync"
)

// Registry tracks the open live connection of each session. A session holds at most
// one connection: registering a new one closes the previous socket.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*conn)}
}

func (r *Registry) add(sessionID string, c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.conns[sessionID]; ok && old != c {
		old.close()
	}
	r.conns[sessionID] = c
}

// remove drops c if it is still the registered connection for the session.
func (r *Registry) remove(sessionID string, c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.conns[sessionID]; ok && current == c {
		delete(r.conns, sessionID)
	}
	c.close()
}

// Len returns the number of open connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll closes every connection. Used on server shutdown, since hijacked
// sockets are not closed by http.Server.Shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sessionID, c := range r.conns {
		c.close()
		delete(r.conns, sessionID)
	}
}
