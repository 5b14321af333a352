// Package chatsocket serves the scolding chat over a websocket.
package chatsocket

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Registry tracks open chat sockets per user so they can be closed when the
// user's conversation or account goes away.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Register adds conn for userID under connID.
func (r *Registry) Register(userID, connID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[userID]; !exists {
		r.active[userID] = make(map[string]*websocket.Conn)
	}
	r.active[userID][connID] = conn
	slog.Info("Chat socket registered", "user_id", userID, "conn_id", connID)
}

// Unregister removes conn if it is still the one registered under connID.
func (r *Registry) Unregister(userID, connID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conns, ok := r.active[userID]; ok {
		if current, exists := conns[connID]; exists && current == conn {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(r.active, userID)
			}
			slog.Info("Chat socket unregistered", "user_id", userID, "conn_id", connID)
		}
	}
}

// CloseUser closes and forgets every socket held by userID.
func (r *Registry) CloseUser(userID string) {
	r.mu.Lock()
	conns, ok := r.active[userID]
	delete(r.active, userID)
	r.mu.Unlock()
	if !ok {
		return
	}

	for id, conn := range conns {
		_ = conn.Close(websocket.StatusNormalClosure, "conversation closed")
		slog.Info("Chat socket closed", "user_id", userID, "conn_id", id)
	}
}

// Count returns the number of open sockets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, conns := range r.active {
		n += len(conns)
	}
	return n
}
