package hub

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// Registry tracks every live connection by ID.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// add registers c. It reports false when the ID is already taken.
func (r *Registry) add(c *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.conns[c.id]; dup {
		return false
	}
	r.conns[c.id] = c
	return true
}

func (r *Registry) get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// remove unregisters id and returns the connection that was removed.
func (r *Registry) remove(id string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	return c, ok
}

// Contains reports whether id is currently registered.
func (r *Registry) Contains(id string) bool {
	_, ok := r.get(id)
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns the state of every connection, ordered by ID.
func (r *Registry) Snapshot() []ConnectionInfo {
	out := make([]ConnectionInfo, 0, r.Len())
	for _, c := range r.all() {
		out = append(out, c.Info())
	}
	slices.SortFunc(out, func(a, b ConnectionInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// idleSince returns connections whose last activity is before cutoff.
func (r *Registry) idleSince(cutoff time.Time) []*Connection {
	var idle []*Connection
	for _, c := range r.all() {
		c.mu.Lock()
		seen := c.lastSeen
		c.mu.Unlock()
		if seen.Before(cutoff) {
			idle = append(idle, c)
		}
	}
	return idle
}

func (r *Registry) all() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
