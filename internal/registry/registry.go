// Package registry is the routing table for live connections. It maps
// connection ids to their outbound queues, the authenticated user bound to
// each connection, and the connection's current channel. All fan-out goes
// through here; no other package touches a connection's queue directly.
package registry

import (
	"sync"

	"github.com/darkrelay/darkrelay/pkg/protocol"
)

type entry struct {
	queue   *Queue
	user    *protocol.UserInfo
	channel string
}

// Registry tracks every live connection.
type Registry struct {
	mu      sync.RWMutex
	clients map[uint64]*entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{clients: make(map[uint64]*entry)}
}

// Add registers a connection and returns its outbound queue. The caller
// owns the single consumer side of the queue.
func (r *Registry) Add(connID uint64) *Queue {
	q := newQueue()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[connID] = &entry{queue: q}
	return q
}

// Remove drops a connection and closes its queue. Queued messages remain
// poppable so the writer can drain before the socket closes.
func (r *Registry) Remove(connID uint64) {
	r.mu.Lock()
	e, ok := r.clients[connID]
	delete(r.clients, connID)
	r.mu.Unlock()

	if ok {
		e.queue.Close()
	}
}

// SetUser binds the authenticated user to a connection. Re-login rebinds.
func (r *Registry) SetUser(connID uint64, user protocol.UserInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.clients[connID]; ok {
		e.user = &user
	}
}

// User returns the user bound to a connection.
func (r *Registry) User(connID uint64) (protocol.UserInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.clients[connID]
	if !ok || e.user == nil {
		return protocol.UserInfo{}, false
	}
	return *e.user, true
}

// SetChannel records the connection's current channel; empty clears it.
func (r *Registry) SetChannel(connID uint64, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.clients[connID]; ok {
		e.channel = channel
	}
}

// Channel returns the connection's current channel, or empty.
func (r *Registry) Channel(connID uint64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.clients[connID]; ok {
		return e.channel
	}
	return ""
}

// Send queues msg for one connection. Unknown or closing connections are
// reported as false; the caller treats that as an already-gone peer.
func (r *Registry) Send(connID uint64, msg protocol.ServerMessage) bool {
	r.mu.RLock()
	e, ok := r.clients[connID]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	return e.queue.Push(msg)
}

// SendMany queues msg for each connection and returns how many accepted
// it. The message value is shared; callers must not mutate it afterwards.
func (r *Registry) SendMany(connIDs []uint64, msg protocol.ServerMessage) int {
	sent := 0
	for _, id := range connIDs {
		if r.Send(id, msg) {
			sent++
		}
	}
	return sent
}

// FindByUserID returns every live connection bound to a user. A user with
// several clients is several connections.
func (r *Registry) FindByUserID(userID protocol.UserID) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []uint64
	for id, e := range r.clients {
		if e.user != nil && e.user.ID == userID {
			conns = append(conns, id)
		}
	}
	return conns
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// TotalQueueDepth sums the outbound queue depths across connections. Fed
// to the queue depth gauge on scrape.
func (r *Registry) TotalQueueDepth() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, e := range r.clients {
		total += e.queue.Len()
	}
	return float64(total)
}
