package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bhandras/smln/internal/store"
	"github.com/bhandras/smln/internal/wire"
	"github.com/stretchr/testify/require"
)

var errUnexpectedCall = errors.New("unexpected store call")

type fakeStore struct {
	validatePassword   func(ctx context.Context, login, password string) (store.Credentials, bool, error)
	makeOnline         func(ctx context.Context, userID string) (bool, error)
	makeOffline        func(ctx context.Context, userID string) (bool, error)
	people             func(ctx context.Context, props store.ListProperties) ([]store.User, []string, error)
	peopleWithMessages func(ctx context.Context, userID string, props store.ListProperties) ([]store.Chat, []string, error)
	messages           func(ctx context.Context, userID, otherID string, props store.ListProperties) ([]store.Message, bool, []string, error)
	getUser            func(ctx context.Context, userID string) (store.User, bool, error)
	sendMessage        func(ctx context.Context, senderID, receiverID string, forReceiver, forSender map[string]any) (store.SendResult, error)
	download           func(ctx context.Context, userID, token string) ([]byte, bool, error)
	markRead           func(ctx context.Context, readerID, otherID string) (bool, error)
}

var _ store.Store = (*fakeStore)(nil)

func (f *fakeStore) ValidatePassword(ctx context.Context, login, password string) (store.Credentials, bool, error) {
	if f.validatePassword == nil {
		return store.Credentials{}, false, errUnexpectedCall
	}
	return f.validatePassword(ctx, login, password)
}

func (f *fakeStore) MakeOnline(ctx context.Context, userID string) (bool, error) {
	if f.makeOnline == nil {
		return false, errUnexpectedCall
	}
	return f.makeOnline(ctx, userID)
}

func (f *fakeStore) MakeOffline(ctx context.Context, userID string) (bool, error) {
	if f.makeOffline == nil {
		return false, errUnexpectedCall
	}
	return f.makeOffline(ctx, userID)
}

func (f *fakeStore) People(ctx context.Context, props store.ListProperties) ([]store.User, []string, error) {
	if f.people == nil {
		return nil, nil, errUnexpectedCall
	}
	return f.people(ctx, props)
}

func (f *fakeStore) PeopleWithMessages(ctx context.Context, userID string, props store.ListProperties) ([]store.Chat, []string, error) {
	if f.peopleWithMessages == nil {
		return nil, nil, errUnexpectedCall
	}
	return f.peopleWithMessages(ctx, userID, props)
}

func (f *fakeStore) Messages(ctx context.Context, userID, otherID string, props store.ListProperties) ([]store.Message, bool, []string, error) {
	if f.messages == nil {
		return nil, false, nil, errUnexpectedCall
	}
	return f.messages(ctx, userID, otherID, props)
}

func (f *fakeStore) GetUser(ctx context.Context, userID string) (store.User, bool, error) {
	if f.getUser == nil {
		return store.User{}, false, errUnexpectedCall
	}
	return f.getUser(ctx, userID)
}

func (f *fakeStore) SendMessage(ctx context.Context, senderID, receiverID string, forReceiver, forSender map[string]any) (store.SendResult, error) {
	if f.sendMessage == nil {
		return store.SendResult{}, errUnexpectedCall
	}
	return f.sendMessage(ctx, senderID, receiverID, forReceiver, forSender)
}

func (f *fakeStore) Download(ctx context.Context, userID, token string) ([]byte, bool, error) {
	if f.download == nil {
		return nil, false, errUnexpectedCall
	}
	return f.download(ctx, userID, token)
}

func (f *fakeStore) MarkRead(ctx context.Context, readerID, otherID string) (bool, error) {
	if f.markRead == nil {
		return false, errUnexpectedCall
	}
	return f.markRead(ctx, readerID, otherID)
}

// presence is a tiny user table backing the auth and presence calls of a
// fakeStore. Every user's password is its login plus "-pw".
type presence struct {
	mu     sync.Mutex
	users  map[string]store.User
	events []string
}

func newPresence(logins ...string) *presence {
	p := &presence{users: make(map[string]store.User)}
	for _, login := range logins {
		p.users["id-"+login] = store.User{ID: "id-" + login, Login: login, Name: login}
	}
	return p
}

func (p *presence) record(event string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *presence) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *presence) setOnline(userID string, online bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return false
	}
	u.IsOnline = online
	u.LastSeen++
	p.users[userID] = u
	return true
}

func (p *presence) fakeStore() *fakeStore {
	return &fakeStore{
		validatePassword: func(_ context.Context, login, password string) (store.Credentials, bool, error) {
			p.mu.Lock()
			defer p.mu.Unlock()
			for _, u := range p.users {
				if u.Login == login && password == login+"-pw" {
					return store.Credentials{UserID: u.ID, PublicKey: "pub-" + login, PrivateKey: "priv-" + login}, true, nil
				}
			}
			return store.Credentials{}, false, nil
		},
		makeOnline: func(_ context.Context, userID string) (bool, error) {
			p.record("online " + userID)
			return p.setOnline(userID, true), nil
		},
		makeOffline: func(_ context.Context, userID string) (bool, error) {
			p.record("offline " + userID)
			return p.setOnline(userID, false), nil
		},
		getUser: func(_ context.Context, userID string) (store.User, bool, error) {
			p.mu.Lock()
			defer p.mu.Unlock()
			u, ok := p.users[userID]
			return u, ok, nil
		},
	}
}

// fakeSocket captures written frames.
type fakeSocket struct {
	mu      sync.Mutex
	frames  [][]byte
	closed  bool
	fail    bool
	onWrite func(data []byte)
}

func (f *fakeSocket) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	if f.closed || f.fail {
		f.mu.Unlock()
		return errors.New("broken pipe")
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	hook := f.onWrite
	f.mu.Unlock()

	if hook != nil {
		hook(data)
	}
	return nil
}

func (f *fakeSocket) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// take returns and clears the decoded frames written so far.
func (f *fakeSocket) take(t *testing.T) []wire.Response {
	t.Helper()
	f.mu.Lock()
	frames := f.frames
	f.frames = nil
	f.mu.Unlock()

	out := make([]wire.Response, len(frames))
	for i, raw := range frames {
		require.NoError(t, json.Unmarshal(raw, &out[i]))
	}
	return out
}

// only asserts exactly one frame was written and returns it.
func (f *fakeSocket) only(t *testing.T) wire.Response {
	t.Helper()
	frames := f.take(t)
	require.Len(t, frames, 1)
	return frames[0]
}

func newTestHub(fs *fakeStore) *Hub {
	return NewHub(fs, HubConfig{RequestTimeout: time.Second})
}

func openConn(h *Hub) (*Connection, *fakeSocket) {
	sock := &fakeSocket{}
	return h.Open(sock), sock
}

func request(t *testing.T, h *Hub, c *Connection, msgType string, args map[string]any) {
	t.Helper()
	frame := map[string]any{"type": msgType}
	if args != nil {
		frame["args"] = args
	}
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	h.HandleFrame(context.Background(), c, raw)
}

// login authenticates c as login and discards the frames it produced.
func login(t *testing.T, h *Hub, c *Connection, sock *fakeSocket, login string) {
	t.Helper()
	request(t, h, c, "auth", map[string]any{"login": login, "pass": login + "-pw"})
	var resp *wire.Response
	for _, f := range sock.take(t) {
		if f.Type == "auth" {
			f := f
			resp = &f
		}
	}
	require.NotNil(t, resp)
	require.Equal(t, wire.CodeOK, resp.Status.Code)
}

// drain discards pending frames on every socket.
func drain(t *testing.T, socks ...*fakeSocket) {
	t.Helper()
	for _, s := range socks {
		s.take(t)
	}
}

func framesOfType(frames []wire.Response, msgType string) []wire.Response {
	var out []wire.Response
	for _, f := range frames {
		if f.Type == msgType {
			out = append(out, f)
		}
	}
	return out
}
