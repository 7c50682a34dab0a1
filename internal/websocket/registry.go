package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bhandras/smln/internal/logger"
	"github.com/bhandras/smln/internal/store"
	"github.com/bhandras/smln/internal/wire"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrAlreadyAuthorized is returned by Authorize when the identity is
	// bound to another live connection.
	ErrAlreadyAuthorized = errors.New("identity already has a live connection")
	// ErrNotBound is returned by UnregisterAuthorized when the identity is
	// not bound to the given connection.
	ErrNotBound = errors.New("identity not bound to connection")
)

// Registry is the in-process presence directory.
//
// Every live connection is in exactly one of pending (not yet authenticated)
// or online (identity -> connection). Bindings whose socket died are evicted
// lazily, on the next lookup of that identity.
//
// The mutex is never held while writing to a socket or calling the store.
// Presence transitions of one identity (auth binding, disconnect teardown)
// are serialized by a separate per-identity lock, see lockIdentity.
type Registry struct {
	store store.Store

	mu      sync.Mutex
	pending map[*Connection]struct{}
	online  map[string]*Connection
	locks   map[string]*identityLock
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

// Stats is a point-in-time count of tracked connections.
type Stats struct {
	Pending int `json:"pending"`
	Online  int `json:"online"`
}

// NewRegistry creates an empty registry. The store supplies presence state
// for activity broadcasts.
func NewRegistry(s store.Store) *Registry {
	return &Registry{
		store:   s,
		pending: make(map[*Connection]struct{}),
		online:  make(map[string]*Connection),
		locks:   make(map[string]*identityLock),
	}
}

// lockIdentity blocks until the caller owns userID's presence transitions
// and returns the matching unlock. The store write and the registry binding
// of one transition then cannot interleave with another transition of the
// same identity.
func (r *Registry) lockIdentity(userID string) (unlock func()) {
	r.mu.Lock()
	l, ok := r.locks[userID]
	if !ok {
		l = &identityLock{}
		r.locks[userID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		r.mu.Lock()
		defer r.mu.Unlock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, userID)
		}
	}
}

// Register tracks a freshly accepted connection as unauthenticated.
func (r *Registry) Register(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[c] = struct{}{}
}

// Authorize moves c from pending to online under userID and binds the
// identity to c.
//
// Of two concurrent calls for one identity exactly one wins. A binding whose
// socket is already closed does not block a new one. On failure c stays
// pending.
func (r *Registry) Authorize(c *Connection, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.online[userID]; ok && cur != c {
		if !cur.Closed() {
			return ErrAlreadyAuthorized
		}
		logger.Debugf("[registry] evicting closed connection %s of %s", cur.ID(), userID)
		delete(r.online, userID)
	}
	if !c.bind(userID) && c.UserID() != userID {
		return fmt.Errorf("connection %s already bound to %s", c.ID(), c.UserID())
	}
	delete(r.pending, c)
	r.online[userID] = c
	return nil
}

// UnregisterUnauthorized forgets a connection that never authenticated.
func (r *Registry) UnregisterUnauthorized(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, c)
}

// UnregisterAuthorized removes the binding of userID if it points at c.
func (r *Registry) UnregisterAuthorized(userID string, c *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.online[userID]; !ok || cur != c {
		return ErrNotBound
	}
	delete(r.online, userID)
	return nil
}

// Lookup returns the connection bound to userID without liveness checks.
func (r *Registry) Lookup(userID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.online[userID]
	return c, ok
}

// CheckOnline returns the live connection bound to userID. A binding whose
// socket is closed is evicted and reported offline.
func (r *Registry) CheckOnline(userID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.online[userID]
	if !ok {
		return nil, false
	}
	if c.Closed() {
		logger.Debugf("[registry] evicting closed connection %s of %s", c.ID(), userID)
		delete(r.online, userID)
		return nil, false
	}
	return c, true
}

// BroadcastActivityUpdate pushes userID's current presence, read from the
// store, to every other online connection. The record is read once per
// broadcast and every peer receives the same frame.
func (r *Registry) BroadcastActivityUpdate(ctx context.Context, userID string) error {
	u, found, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load presence of %s: %w", userID, err)
	}
	if !found {
		return nil
	}
	push := activityUpdate(u)

	r.mu.Lock()
	peers := make([]string, 0, len(r.online))
	for id := range r.online {
		if id != userID {
			peers = append(peers, id)
		}
	}
	r.mu.Unlock()

	var g errgroup.Group
	for _, id := range peers {
		g.Go(func() error {
			r.deliver(id, push)
			return nil
		})
	}
	return g.Wait()
}

// DeliverMessage pushes a received message to userID if it is online. It
// reports whether a push was attempted.
func (r *Registry) DeliverMessage(userID string, msg store.Message) bool {
	return r.deliver(userID, messageReceived(msg))
}

// DeliverReadReceipt tells userID that readerID has read their messages.
func (r *Registry) DeliverReadReceipt(userID, readerID string) bool {
	return r.deliver(userID, messagesRead(readerID))
}

func (r *Registry) deliver(userID string, push wire.Response) bool {
	c, ok := r.CheckOnline(userID)
	if !ok {
		return false
	}
	if err := c.Push(push); err != nil {
		logger.Errorf("[registry] push %s to %s: %v", push.Type, userID, err)
	}
	return true
}

// Connections returns a snapshot of every tracked connection.
func (r *Registry) Connections() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Connection, 0, len(r.pending)+len(r.online))
	for c := range r.pending {
		out = append(out, c)
	}
	for _, c := range r.online {
		out = append(out, c)
	}
	return out
}

// Stats returns the current pending and online counts.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Pending: len(r.pending), Online: len(r.online)}
}
