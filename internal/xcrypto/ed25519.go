// Package xcrypto implements the Ed25519 and X25519 primitives the
// wire protocol's identity and sealed-body contracts rely on (spec §3).
package xcrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// ErrInvalidSignature is returned when a signature fails to verify.
var ErrInvalidSignature = errors.New("xcrypto: invalid signature")

// KeyPair is an Ed25519 identity: PublicKey is the routing address (PK).
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 identity.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// Sign produces a 64-byte detached Ed25519 signature over msg.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify checks a detached Ed25519 signature.
func Verify(pub ed25519.PublicKey, msg, sig []byte) error {
	if !ed25519.Verify(pub, msg, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// EncodeHex renders a key or signature as lowercase hex, the text form
// used in config files and logs (spec §3).
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

// DecodePublicKeyHex parses a hex-encoded 32-byte Ed25519 public key.
func DecodePublicKeyHex(s string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, errors.New("xcrypto: public key must be 32 bytes")
	}
	return ed25519.PublicKey(b), nil
}

// DecodePrivateKeyHex parses a hex-encoded 64-byte Ed25519 private key.
func DecodePrivateKeyHex(s string) (ed25519.PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, errors.New("xcrypto: private key must be 64 bytes")
	}
	return ed25519.PrivateKey(b), nil
}
