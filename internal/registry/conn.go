// internal/registry/conn.go
package registry

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codebreak/internal/protocol"
)

// DefaultBuffer is the outbound queue length of a connection.
const DefaultBuffer = 32

// Conn is one live client connection. The transport drains OutChan; everything
// else only ever calls Write.
type Conn struct {
	ID      uuid.UUID
	Remote  string
	OutChan chan protocol.Message

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewConn creates a connection. cancel is invoked when the connection is closed
// from the server side and may be nil.
func NewConn(remote string, cancel context.CancelFunc) *Conn {
	return &Conn{
		ID:      uuid.New(),
		Remote:  remote,
		OutChan: make(chan protocol.Message, DefaultBuffer),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Write queues msg without blocking. It reports false when the connection is
// closed or its queue is full and the message was dropped.
func (c *Conn) Write(msg protocol.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.OutChan <- msg:
		return true
	default:
		return false
	}
}

// Close marks the connection closed and cancels its context. OutChan is never
// closed so concurrent writers cannot panic.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
	})
}

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}
