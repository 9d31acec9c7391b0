// internal/registry/registry.go
package registry

import (
	"sync"

	"github.com/jason-s-yu/codebreak/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Registry maps player ids to live connections and back. It is the only place
// that knows whether a player is currently reachable.
type Registry struct {
	mu       sync.RWMutex
	byPlayer map[string]*Conn
	byConn   map[*Conn]string

	log *logrus.Entry
}

// New returns an empty registry.
func New(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		byPlayer: make(map[string]*Conn),
		byConn:   make(map[*Conn]string),
		log:      logger.WithField("component", "registry"),
	}
}

// Bind maps playerID to c, replacing both directions of any earlier mapping.
// It returns the connection previously bound to playerID, if any; closing it is
// up to the caller.
func (r *Registry) Bind(playerID string, c *Conn) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	// a connection speaks for at most one player
	if prevPlayer, ok := r.byConn[c]; ok && prevPlayer != playerID {
		delete(r.byPlayer, prevPlayer)
	}

	old := r.byPlayer[playerID]
	if old != nil && old != c {
		delete(r.byConn, old)
	} else {
		old = nil
	}

	r.byPlayer[playerID] = c
	r.byConn[c] = playerID
	return old
}

// Lookup returns the connection bound to playerID.
func (r *Registry) Lookup(playerID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byPlayer[playerID]
	return c, ok
}

// PlayerOf returns the player bound to c.
func (r *Registry) PlayerOf(c *Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byConn[c]
	return p, ok
}

// Unbind removes c. It returns the player c was bound to, and false when c was
// not bound (for example because a reconnect already superseded it).
func (r *Registry) Unbind(c *Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	playerID, ok := r.byConn[c]
	if !ok {
		return "", false
	}
	delete(r.byConn, c)
	if r.byPlayer[playerID] == c {
		delete(r.byPlayer, playerID)
	}
	return playerID, true
}

// Release forgets playerID while leaving its connection open, so the client can
// create or join another room over the same socket.
func (r *Registry) Release(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byPlayer[playerID]; ok {
		delete(r.byPlayer, playerID)
		if r.byConn[c] == playerID {
			delete(r.byConn, c)
		}
	}
}

// Send delivers msg to playerID if reachable. It never blocks.
func (r *Registry) Send(playerID string, msg protocol.Message) {
	c, ok := r.Lookup(playerID)
	if !ok {
		return
	}
	if !c.Write(msg) {
		r.log.WithFields(logrus.Fields{
			"player": playerID,
			"conn":   c.ID,
			"type":   msg.Type(),
		}).Warn("dropped outbound message")
	}
}

// Len returns the number of bound players.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPlayer)
}
