// Package websocket is the real-time messaging hub: the dispatch table and
// request middleware, per-socket connection state, the presence registry and
// the gorilla/websocket transport that feeds them.
package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/bhandras/smln/internal/logger"
	"github.com/bhandras/smln/internal/store"
	"github.com/bhandras/smln/internal/wire"
)

// HubConfig tunes request handling.
type HubConfig struct {
	// RequestTimeout bounds each request, including its fan-out.
	RequestTimeout time.Duration
	// WriteTimeout bounds each socket write.
	WriteTimeout time.Duration
}

// Hub owns the process-wide registry and dispatch table and drives
// connections through their lifecycle.
type Hub struct {
	store      store.Store
	registry   *Registry
	dispatcher *Dispatcher
	cfg        HubConfig
}

// NewHub builds a hub with the full handler catalogue registered.
func NewHub(s store.Store, cfg HubConfig) *Hub {
	h := &Hub{
		store:      s,
		registry:   NewRegistry(s),
		dispatcher: NewDispatcher(),
		cfg:        cfg,
	}
	h.registerHandlers()
	return h
}

// Registry returns the hub's presence registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Open wraps an accepted socket and registers it as unauthenticated.
func (h *Hub) Open(socket Socket) *Connection {
	c := newConnection(socket, h.cfg.WriteTimeout)
	h.registry.Register(c)
	logger.Debugf("[ws] conn %s opened", c.ID())
	return c
}

// HandleFrame decodes one raw frame and dispatches it. It returns once the
// handler and any fan-out it started have finished.
func (h *Hub) HandleFrame(ctx context.Context, c *Connection, raw []byte) {
	ctx, cancel := h.requestContext(ctx)
	defer cancel()

	msgType, args := wire.Decode(raw)
	h.dispatcher.Dispatch(ctx, c, msgType, args)
}

func (h *Hub) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if h.cfg.RequestTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, h.cfg.RequestTimeout)
}

// Disconnect runs the teardown of a connection whose read loop has ended and
// releases its socket.
//
// For an authenticated connection the order is fixed: the store marks the
// user offline, peers are told, then the binding is dropped. Peers receiving
// the broadcast therefore never read a stale online record. If a newer
// connection already owns the identity, presence is left to it. The whole
// sequence holds the identity's presence lock, so a concurrent auth of the
// same identity binds only after the binding here is gone.
func (h *Hub) Disconnect(ctx context.Context, c *Connection) {
	defer c.Close()

	userID := c.UserID()
	if userID == "" {
		h.registry.UnregisterUnauthorized(c)
		logger.Debugf("[ws] conn %s closed", c.ID())
		return
	}

	unlock := h.registry.lockIdentity(userID)
	defer unlock()

	if cur, ok := h.registry.Lookup(userID); ok && cur != c {
		logger.Debugf("[ws] conn %s closed; %s moved to %s", c.ID(), userID, cur.ID())
		return
	}

	if _, err := h.store.MakeOffline(ctx, userID); err != nil {
		logger.Errorf("[ws] conn %s: mark %s offline: %v", c.ID(), userID, err)
	}
	if err := h.registry.BroadcastActivityUpdate(ctx, userID); err != nil {
		logger.Errorf("[ws] conn %s: broadcast offline %s: %v", c.ID(), userID, err)
	}
	err := h.registry.UnregisterAuthorized(userID, c)
	switch {
	case errors.Is(err, ErrNotBound):
		// Evicted lazily after a failed write.
		logger.Debugf("[ws] conn %s: %s already evicted", c.ID(), userID)
	case err != nil:
		logger.Errorf("[ws] conn %s: unbind %s: %v", c.ID(), userID, err)
	}
	logger.Infof("[ws] %s went offline (conn %s)", userID, c.ID())
}
