// Package crypto implements password hashing and per-user key pair
// generation for the server.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32

	// DefaultScryptN is the scrypt cost used to derive the key that seals a
	// user's private key.
	DefaultScryptN = 1 << 15
)

// ErrDecrypt is returned when a sealed private key cannot be opened, either
// because the password is wrong or the blob is corrupt.
var ErrDecrypt = errors.New("decryption failed")

// Credentials hashes passwords with bcrypt and issues NaCl box key pairs whose
// private half is sealed with the owner's password.
type Credentials struct {
	bcryptCost int
	scryptN    int
}

// NewCredentials returns a credential service. Zero values select the
// library defaults.
func NewCredentials(bcryptCost, scryptN int) *Credentials {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if scryptN == 0 {
		scryptN = DefaultScryptN
	}
	return &Credentials{bcryptCost: bcryptCost, scryptN: scryptN}
}

// Hash returns a bcrypt hash of password.
func (c *Credentials) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches hash.
func (c *Credentials) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateKeyPair creates a box key pair for a new user.
//
// Both halves are returned base64 encoded. The private key is sealed with a
// key derived from password:
// Format: [scrypt salt (16 bytes)][nonce (24 bytes)][secretbox ciphertext]
func (c *Credentials) GenerateKeyPair(password string) (string, string, error) {
	public, private, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate keypair: %w", err)
	}

	salt, err := randBytes(saltSize)
	if err != nil {
		return "", "", err
	}
	key, err := c.deriveKey(password, salt, c.scryptN)
	if err != nil {
		return "", "", err
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+nonceSize+keySize+secretbox.Overhead)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, private[:], &nonce, key)

	return base64.StdEncoding.EncodeToString(public[:]),
		base64.StdEncoding.EncodeToString(out), nil
}

// OpenPrivateKey reverses the sealing done by GenerateKeyPair.
func (c *Credentials) OpenPrivateKey(password, sealed string) (*[keySize]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(raw) < saltSize+nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("sealed private key too short")
	}

	key, err := c.deriveKey(password, raw[:saltSize], c.scryptN)
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[saltSize:saltSize+nonceSize])

	opened, ok := secretbox.Open(nil, raw[saltSize+nonceSize:], &nonce, key)
	if !ok || len(opened) != keySize {
		return nil, ErrDecrypt
	}
	var private [keySize]byte
	copy(private[:], opened)
	return &private, nil
}

// DecodePublicKey decodes a base64 public key produced by GenerateKeyPair.
func DecodePublicKey(publicKeyB64 string) (*[keySize]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("invalid public key size")
	}
	var public [keySize]byte
	copy(public[:], raw)
	return &public, nil
}

func (c *Credentials) deriveKey(password string, salt []byte, n int) (*[keySize]byte, error) {
	derived, err := scrypt.Key([]byte(password), salt, n, 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	var key [keySize]byte
	copy(key[:], derived)
	return &key, nil
}

func randBytes(n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("rand read: %w", err)
	}
	return out, nil
}
