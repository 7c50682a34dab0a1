package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/nacl/box"
)

// Cheap parameters keep the tests fast.
func testCredentials() *Credentials {
	return NewCredentials(bcrypt.MinCost, 1<<10)
}

func TestHashAndVerify(t *testing.T) {
	c := testCredentials()

	hash, err := c.Hash("s3cret")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret", hash)

	require.True(t, c.Verify("s3cret", hash))
	require.False(t, c.Verify("wrong", hash))
	require.False(t, c.Verify("s3cret", "not-a-hash"))
}

func TestHashIsSalted(t *testing.T) {
	c := testCredentials()

	a, err := c.Hash("same")
	require.NoError(t, err)
	b, err := c.Hash("same")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestGenerateKeyPair_RoundTrip(t *testing.T) {
	c := testCredentials()

	pub, sealed, err := c.GenerateKeyPair("pw")
	require.NoError(t, err)

	public, err := DecodePublicKey(pub)
	require.NoError(t, err)
	private, err := c.OpenPrivateKey("pw", sealed)
	require.NoError(t, err)

	// A message boxed for the public key opens with the unsealed private key.
	senderPub, senderPriv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)
	var nonce [24]byte
	ciphertext := box.Seal(nil, []byte("hello"), &nonce, public, senderPriv)

	plain, ok := box.Open(nil, ciphertext, &nonce, senderPub, private)
	require.True(t, ok)
	require.Equal(t, "hello", string(plain))
}

func TestOpenPrivateKey_WrongPassword(t *testing.T) {
	c := testCredentials()

	_, sealed, err := c.GenerateKeyPair("pw")
	require.NoError(t, err)

	_, err = c.OpenPrivateKey("other", sealed)
	require.ErrorIs(t, err, ErrDecrypt)

	_, err = c.OpenPrivateKey("pw", "AAAA")
	require.Error(t, err)
}

func TestDecodePublicKey_Invalid(t *testing.T) {
	_, err := DecodePublicKey("%%%")
	require.Error(t, err)

	_, err = DecodePublicKey("AAAA")
	require.Error(t, err)
}
