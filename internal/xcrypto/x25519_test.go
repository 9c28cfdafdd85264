package xcrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		peer, err := GenerateKeyPair()
		require.NoError(t, err)

		plaintext := []byte("sealed body over the wire")
		nonce, ct, err := Seal(peer.PublicKey, plaintext)
		require.NoError(t, err)
		require.Len(t, nonce, 24)
		require.NotEmpty(t, ct)

		pt, err := Open(peer.PrivateKey, nonce, ct)
		require.NoError(t, err)
		assert.Equal(t, plaintext, pt)
	})

	t.Run("WrongRecipientFails", func(t *testing.T) {
		peer, err := GenerateKeyPair()
		require.NoError(t, err)
		other, err := GenerateKeyPair()
		require.NoError(t, err)

		nonce, ct, err := Seal(peer.PublicKey, []byte("secret"))
		require.NoError(t, err)

		_, err = Open(other.PrivateKey, nonce, ct)
		assert.Error(t, err)
	})

	t.Run("TamperedCiphertextFails", func(t *testing.T) {
		peer, err := GenerateKeyPair()
		require.NoError(t, err)

		nonce, ct, err := Seal(peer.PublicKey, []byte("secret"))
		require.NoError(t, err)

		tampered := make([]byte, len(ct))
		copy(tampered, ct)
		tampered[len(tampered)-1] ^= 0xFF

		_, err = Open(peer.PrivateKey, nonce, tampered)
		assert.Error(t, err)
	})

	t.Run("ShortCiphertextErrors", func(t *testing.T) {
		peer, err := GenerateKeyPair()
		require.NoError(t, err)

		_, err = Open(peer.PrivateKey, make([]byte, 24), []byte{1, 2, 3})
		assert.Error(t, err)
	})
}
