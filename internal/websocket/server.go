package websocket

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bhandras/smln/internal/logger"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
)

// ServerConfig tunes the socket transport.
type ServerConfig struct {
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	// AllowedOrigins lists accepted Origin headers; "*" accepts any.
	AllowedOrigins []string
}

// Server upgrades HTTP requests to WebSocket connections and runs one read
// loop per connection.
type Server struct {
	hub      *Hub
	cfg      ServerConfig
	upgrader gorilla.Upgrader

	// mu orders admissions against Shutdown: wg.Add only happens while
	// closing is false.
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// NewServer creates a transport for hub.
func NewServer(hub *Hub, cfg ServerConfig) *Server {
	s := &Server{hub: hub, cfg: cfg}
	s.upgrader = gorilla.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	logger.Warnf("[ws] rejected origin %q", origin)
	return false
}

// HandleWebSocket is the gin handler for the updates endpoint.
func (s *Server) HandleWebSocket(c *gin.Context) {
	if !s.admit() {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("[ws] upgrade from %s failed: %v", c.ClientIP(), err)
		return
	}
	s.serve(ws)
}

// admit reserves a slot in the shutdown wait group unless the server is
// closing.
func (s *Server) admit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// serve runs the read loop until the socket fails or is closed. Requests
// are handled in arrival order.
func (s *Server) serve(ws *gorilla.Conn) {
	conn := s.hub.Open(ws)
	done := make(chan struct{})
	defer func() {
		close(done)
		ctx, cancel := s.hub.requestContext(context.Background())
		defer cancel()
		s.hub.Disconnect(ctx, conn)
	}()

	// Shutdown may have snapshotted the registry before Open.
	if s.isClosing() {
		_ = conn.Close()
		return
	}

	if s.cfg.MaxMessageBytes > 0 {
		ws.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	s.extendReadDeadline(ws)
	ws.SetPongHandler(func(string) error {
		s.extendReadDeadline(ws)
		return nil
	})
	go s.keepalive(ws, conn, done)

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseGoingAway, gorilla.CloseNormalClosure) && !conn.Closed() {
				logger.Warnf("[ws] conn %s read: %v", conn, err)
			}
			return
		}
		s.extendReadDeadline(ws)
		s.hub.HandleFrame(context.Background(), conn, raw)
	}
}

func (s *Server) extendReadDeadline(ws *gorilla.Conn) {
	if s.cfg.PongWait > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	}
}

// keepalive pings the peer until done is closed. A failed ping closes the
// connection, which ends the read loop.
func (s *Server) keepalive(ws *gorilla.Conn, conn *Connection, done <-chan struct{}) {
	if s.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := ws.WriteControl(gorilla.PingMessage, nil, deadline); err != nil {
				logger.Debugf("[ws] conn %s ping failed: %v", conn, err)
				_ = conn.Close()
				return
			}
		}
	}
}

// Shutdown stops accepting connections, closes every open socket and waits
// for read loops and in-flight handlers to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	for _, c := range s.hub.Registry().Connections() {
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
