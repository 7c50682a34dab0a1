// Package store is the persistence boundary of the server: user records,
// chat history and file blobs.
//
// The websocket hub only sees the Store interface. SQLStore implements it on
// top of database/sql for SQLite and PostgreSQL.
package store

import (
	"context"
	"errors"
)

// ErrLoginTaken is returned by CreateUser when the login already exists.
var ErrLoginTaken = errors.New("login already taken")

// Store abstracts persistence for the websocket hub.
//
// "Not found" and "invalid input" outcomes are reported through return
// values; a non-nil error always means the store itself failed.
type Store interface {
	// ValidatePassword checks login/password and returns the user's id and
	// key material on success.
	ValidatePassword(ctx context.Context, login, password string) (Credentials, bool, error)

	// MakeOnline and MakeOffline update presence and report whether the user
	// exists.
	MakeOnline(ctx context.Context, userID string) (bool, error)
	MakeOffline(ctx context.Context, userID string) (bool, error)

	// People lists all users. The second result names rejected list
	// properties; when non-empty the first result is nil.
	People(ctx context.Context, props ListProperties) ([]User, []string, error)
	// PeopleWithMessages lists the counterparts userID has exchanged messages
	// with, newest conversation first by default.
	PeopleWithMessages(ctx context.Context, userID string, props ListProperties) ([]Chat, []string, error)
	// Messages lists the conversation between userID and otherID as seen by
	// userID. The bool reports whether otherID exists.
	Messages(ctx context.Context, userID, otherID string, props ListProperties) ([]Message, bool, []string, error)

	GetUser(ctx context.Context, userID string) (User, bool, error)

	// SendMessage records a message. forReceiver and forSender are the two
	// per-owner copies of the payload.
	SendMessage(ctx context.Context, senderID, receiverID string, forReceiver, forSender map[string]any) (SendResult, error)

	// Download returns a file's bytes if userID owns the file behind token.
	// Unknown tokens and foreign tokens are indistinguishable.
	Download(ctx context.Context, userID, token string) ([]byte, bool, error)

	// MarkRead marks every message otherID sent to readerID as seen. The
	// bool reports whether otherID exists.
	MarkRead(ctx context.Context, readerID, otherID string) (bool, error)
}

//go:generate mockgen -destination=../mocks/credentials.go -package=mocks github.com/bhandras/smln/internal/store CredentialService

// CredentialService hashes passwords and issues per-user key pairs.
type CredentialService interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
	GenerateKeyPair(password string) (publicKey, privateKey string, err error)
}
