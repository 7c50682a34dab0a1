package websocket

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bhandras/smln/internal/logger"
	"github.com/bhandras/smln/internal/wire"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when writing to a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// Socket is the write side of a client transport. *gorilla.Conn satisfies it.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection is the per-socket state: a stable id, the socket itself and the
// identity bound by a successful auth.
//
// The identity is set at most once and never cleared.
type Connection struct {
	id           string
	socket       Socket
	writeTimeout time.Duration

	// gorilla permits a single concurrent writer.
	writeMu sync.Mutex
	closed  atomic.Bool

	mu     sync.RWMutex
	userID string
}

func newConnection(socket Socket, writeTimeout time.Duration) *Connection {
	return &Connection{
		id:           uuid.NewString(),
		socket:       socket,
		writeTimeout: writeTimeout,
	}
}

// ID returns the connection id.
func (c *Connection) ID() string { return c.id }

// UserID returns the bound identity, or "" before auth.
func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Authenticated reports whether an identity is bound.
func (c *Connection) Authenticated() bool {
	return c.UserID() != ""
}

// bind sets the identity. It reports false if one was already set.
func (c *Connection) bind(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID != "" {
		return false
	}
	c.userID = userID
	return true
}

// Closed reports whether the socket is known to be dead.
func (c *Connection) Closed() bool { return c.closed.Load() }

// Close releases the socket. It is safe to call more than once.
func (c *Connection) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.socket.Close()
}

func (c *Connection) write(data []byte) error {
	if c.Closed() {
		return ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.socket.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			c.closed.Store(true)
			return err
		}
	}
	if err := c.socket.WriteMessage(gorilla.TextMessage, data); err != nil {
		// A failed write leaves the gorilla connection unusable.
		c.closed.Store(true)
		return err
	}
	return nil
}

// Respond sends the terminal response of handler name.
//
// Transport failures are logged and swallowed: the read loop notices the dead
// socket on its own. Only encoding failures are returned.
func (c *Connection) Respond(name string, st wire.Status, args wire.Args) error {
	return c.deliver(wire.NewResponse(wire.TypeName(name), st, args))
}

// Push sends an unsolicited frame with the same failure policy as Respond.
func (c *Connection) Push(resp wire.Response) error {
	return c.deliver(resp)
}

func (c *Connection) deliver(resp wire.Response) error {
	data, err := wire.Encode(resp)
	if err != nil {
		return fmt.Errorf("encode %s: %w", resp.Type, err)
	}
	if err := c.write(data); err != nil {
		logger.Warnf("[ws] conn %s: send %s failed: %v", c.id, resp.Type, err)
	}
	return nil
}

func (c *Connection) String() string {
	if uid := c.UserID(); uid != "" {
		return c.id + "/" + uid
	}
	return c.id
}
