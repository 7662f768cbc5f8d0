// Package presence tracks which user is reachable over which realtime
// connection in this process.
package presence

import "sync"

// Conn is a live realtime connection able to receive a typed event.
type Conn interface {
	ID() string
	Send(eventType string, payload any) error
}

// Registry maps user IDs to their most recent connection. A connection's ID
// is kept in a reverse index so a disconnect can unregister without knowing
// the user.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]Conn
	byConn map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]Conn),
		byConn: make(map[string]string),
	}
}

// Register binds userID to conn. The latest connection wins: a previous
// connection for the same user is dropped from the index but not closed.
func (r *Registry) Register(userID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byUser[userID]; ok {
		delete(r.byConn, prev.ID())
	}
	// A connection re-announcing as another user leaves its old binding.
	if prevUser, ok := r.byConn[conn.ID()]; ok && prevUser != userID {
		delete(r.byUser, prevUser)
	}
	r.byUser[userID] = conn
	r.byConn[conn.ID()] = userID
}

func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.byUser[userID]; ok {
		delete(r.byConn, conn.ID())
		delete(r.byUser, userID)
	}
}

// UnregisterConn removes the binding owned by connID. It is a no-op when the
// user has since registered a newer connection.
func (r *Registry) UnregisterConn(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	if conn, ok := r.byUser[userID]; ok && conn.ID() == connID {
		delete(r.byUser, userID)
	}
}

func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byUser[userID]
	return conn, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
