package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bhandras/smln/internal/crypto"
	"github.com/bhandras/smln/internal/database"
	"github.com/bhandras/smln/internal/store"
	"github.com/bhandras/smln/internal/wire"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	store  *store.SQLStore
	server *Server
	hub    *Hub
	url    string
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.DialectSQLite, filepath.Join(t.TempDir(), "hub.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.NewSQLStore(db, crypto.NewCredentials(bcrypt.MinCost, 1<<10))
	hub := NewHub(st, HubConfig{RequestTimeout: 5 * time.Second, WriteTimeout: time.Second})
	srv := NewServer(hub, ServerConfig{
		PingInterval:    time.Second,
		PongWait:        5 * time.Second,
		WriteTimeout:    time.Second,
		MaxMessageBytes: 1 << 20,
		AllowedOrigins:  []string{"*"},
	})

	router := gin.New()
	router.GET("/v1/updates", srv.HandleWebSocket)
	ts := httptest.NewServer(router)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})

	return &testServer{
		store:  st,
		server: srv,
		hub:    hub,
		url:    "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/updates",
	}
}

type client struct {
	t    *testing.T
	conn *gorilla.Conn
}

func (s *testServer) dial(t *testing.T) *client {
	t.Helper()
	conn, _, err := gorilla.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) sendRaw(raw string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(gorilla.TextMessage, []byte(raw)))
}

func (c *client) send(msgType string, args map[string]any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(map[string]any{"type": msgType, "args": args}))
}

func (c *client) next() wire.Response {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var resp wire.Response
	require.NoError(c.t, c.conn.ReadJSON(&resp))
	return resp
}

// expect reads frames until one of msgType arrives.
func (c *client) expect(msgType string) wire.Response {
	c.t.Helper()
	for {
		resp := c.next()
		if resp.Type == msgType {
			return resp
		}
	}
}

func (c *client) login(login, pass string) wire.Response {
	c.t.Helper()
	c.send("auth", map[string]any{"login": login, "pass": pass})
	return c.expect("auth")
}

func TestServer_EndToEnd(t *testing.T) {
	s := startServer(t)
	ctx := context.Background()
	alice, err := s.store.CreateUser(ctx, "alice", "Alice", "alice-pw")
	require.NoError(t, err)
	bob, err := s.store.CreateUser(ctx, "bob", "Bob", "bob-pw")
	require.NoError(t, err)

	a := s.dial(t)

	a.sendRaw("not json at all")
	resp := a.next()
	require.Equal(t, wire.TypeInvalidFormat, resp.Type)
	require.Equal(t, wire.CodeBadRequest, resp.Status.Code)

	a.sendRaw(`{"type":"people"}`)
	require.Equal(t, wire.StatusAuthRequired(), *a.next().Status)

	require.Equal(t, wire.CodeCredentials, a.login("alice", "wrong").Status.Code)
	resp = a.login("alice", "alice-pw")
	require.Equal(t, wire.CodeOK, resp.Status.Code)
	require.Equal(t, alice.ID, resp.Args["id"])
	require.Equal(t, alice.PublicKey, resp.Args["public-key"])

	b := s.dial(t)
	require.True(t, b.login("bob", "bob-pw").Status.OK())

	push := a.expect(wire.TypeActivityUpdate)
	require.Equal(t, bob.ID, push.Args["user-id"])
	require.Equal(t, true, push.Args["is-online"])

	a.send("send", map[string]any{
		"receiver-id":          bob.ID,
		"message-for-receiver": map[string]any{"text": "hi bob"},
		"message-for-sender":   map[string]any{"text": "hi bob (mine)"},
	})
	require.True(t, a.expect("send").Status.OK())

	received := b.expect(wire.TypeMessageReceived)
	msg := received.Args["message"].(map[string]any)
	require.Equal(t, "hi bob", msg["text"])
	require.Equal(t, alice.ID, msg["sender-id"])

	b.send("read", map[string]any{"user-id": alice.ID})
	require.True(t, b.expect("read").Status.OK())
	require.Equal(t, bob.ID, a.expect(wire.TypeMessagesRead).Args["user-id"])

	a.send("messages", map[string]any{"user-id": bob.ID})
	history := a.expect("messages")
	require.True(t, history.Status.OK())
	msgs := history.Args["messages"].([]any)
	require.Len(t, msgs, 1)
	require.Equal(t, "hi bob (mine)", msgs[0].(map[string]any)["text"])
	require.Equal(t, true, msgs[0].(map[string]any)["seen"])

	// Bob leaves: alice hears about it and the store agrees.
	require.NoError(t, b.conn.Close())
	offline := a.expect(wire.TypeActivityUpdate)
	require.Equal(t, bob.ID, offline.Args["user-id"])
	require.Equal(t, false, offline.Args["is-online"])

	u, _, err := s.store.GetUser(ctx, bob.ID)
	require.NoError(t, err)
	require.False(t, u.IsOnline)

	require.Eventually(t, func() bool {
		return s.hub.Registry().Stats() == Stats{Online: 1}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServer_SecondSessionRejected(t *testing.T) {
	s := startServer(t)
	_, err := s.store.CreateUser(context.Background(), "alice", "Alice", "alice-pw")
	require.NoError(t, err)

	first := s.dial(t)
	require.True(t, first.login("alice", "alice-pw").Status.OK())

	second := s.dial(t)
	require.Equal(t, wire.CodeCredentials, second.login("alice", "alice-pw").Status.Code)
	require.Equal(t, wire.StatusRepeatedAuth(), *first.login("alice", "alice-pw").Status)
}

func TestServer_OriginCheck(t *testing.T) {
	srv := NewServer(NewHub(&fakeStore{}, HubConfig{}), ServerConfig{
		AllowedOrigins: []string{"https://chat.example.com"},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/updates", nil)
	require.True(t, srv.checkOrigin(req))

	req.Header.Set("Origin", "https://chat.example.com")
	require.True(t, srv.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	require.False(t, srv.checkOrigin(req))
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	s := startServer(t)
	c := s.dial(t)
	c.sendRaw(`{"foo":1}`)
	require.Equal(t, wire.TypeUnspecified, c.next().Type)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.server.Shutdown(ctx))
	require.Equal(t, Stats{}, s.hub.Registry().Stats())

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := c.conn.ReadMessage()
	require.Error(t, err)

	_, resp, err := gorilla.DefaultDialer.Dial(s.url, nil)
	require.Error(t, err)
	if resp != nil {
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	}
}

func TestServer_ShutdownWaitsForAdmittedUpgrade(t *testing.T) {
	srv := NewServer(NewHub(nil, HubConfig{}), ServerConfig{})

	// An upgrade admitted before Shutdown is still in flight.
	require.True(t, srv.admit())

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errCh <- srv.Shutdown(ctx)
	}()

	require.Eventually(t, func() bool { return srv.isClosing() }, time.Second, time.Millisecond)
	require.False(t, srv.admit())
	select {
	case err := <-errCh:
		t.Fatalf("shutdown returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	srv.wg.Done()
	require.NoError(t, <-errCh)
}

func TestServer_ConnectionOpenedDuringShutdownClosesItself(t *testing.T) {
	s := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.server.Shutdown(ctx))

	// Upgrade past the admission check, as a request racing Shutdown would.
	late := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.server.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.server.serve(ws)
	}))
	t.Cleanup(late.Close)

	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(late.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	start := time.Now()
	require.NoError(t, conn.SetReadDeadline(start.Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	require.Less(t, time.Since(start), 4*time.Second)

	require.Eventually(t, func() bool {
		return s.hub.Registry().Stats() == Stats{}
	}, 5*time.Second, 10*time.Millisecond)
}
