package xcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/hkdf"
)

const sealDomain = "amq-sealed-body-v1"

// Seal encrypts plaintext for peerPub (an Ed25519 public key) using an
// ephemeral X25519 key agreement, HKDF-SHA256 key derivation and
// AES-256-GCM. Returns the 24-byte nonce (spec §3's N) and ciphertext;
// the wire envelope carries both (nonce in `nonce`, ciphertext hex in
// `body`).
func Seal(peerPub ed25519.PublicKey, plaintext []byte) (nonce, ciphertext []byte, err error) {
	ephPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("xcrypto: generate ephemeral key: %w", err)
	}

	peerX, err := edPubToX25519(peerPub)
	if err != nil {
		return nil, nil, err
	}
	peerXPub, err := ecdh.X25519().NewPublicKey(peerX)
	if err != nil {
		return nil, nil, fmt.Errorf("xcrypto: parse peer x25519 key: %w", err)
	}

	shared, err := ephPriv.ECDH(peerXPub)
	if err != nil {
		return nil, nil, fmt.Errorf("xcrypto: ecdh: %w", err)
	}
	if err := checkNotZero(shared); err != nil {
		return nil, nil, err
	}

	transcript := append(append([]byte{}, ephPriv.PublicKey().Bytes()...), peerX...)
	key, err := deriveKey(shared, transcript)
	if err != nil {
		return nil, nil, err
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}

	// Wire nonce is the full 24 bytes spec §3 reserves for N; only the
	// AEAD's own NonceSize() leading bytes are actually used by GCM.
	nonce = make([]byte, 24)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("xcrypto: read nonce: %w", err)
	}
	aeadNonce := nonce[:aead.NonceSize()]
	sealed := aead.Seal(nil, aeadNonce, plaintext, transcript)
	ciphertext = append(append([]byte{}, ephPriv.PublicKey().Bytes()...), sealed...)
	return nonce, ciphertext, nil
}

// Open reverses Seal using the recipient's Ed25519 private key.
func Open(priv ed25519.PrivateKey, nonce, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 32 {
		return nil, errors.New("xcrypto: sealed body too short")
	}
	if len(nonce) != 24 {
		return nil, errors.New("xcrypto: nonce must be 24 bytes")
	}
	ephPubBytes := ciphertext[:32]
	sealed := ciphertext[32:]

	ephPub, err := ecdh.X25519().NewPublicKey(ephPubBytes)
	if err != nil {
		return nil, fmt.Errorf("xcrypto: invalid ephemeral public key: %w", err)
	}

	selfXPrivBytes, err := edPrivToX25519(priv)
	if err != nil {
		return nil, err
	}
	selfXPriv, err := ecdh.X25519().NewPrivateKey(selfXPrivBytes)
	if err != nil {
		return nil, fmt.Errorf("xcrypto: derive x25519 private key: %w", err)
	}

	shared, err := selfXPriv.ECDH(ephPub)
	if err != nil {
		return nil, fmt.Errorf("xcrypto: ecdh: %w", err)
	}
	if err := checkNotZero(shared); err != nil {
		return nil, err
	}

	transcript := append(append([]byte{}, ephPubBytes...), selfXPriv.PublicKey().Bytes()...)
	key, err := deriveKey(shared, transcript)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	aeadNonce := nonce[:aead.NonceSize()]
	return aead.Open(nil, aeadNonce, sealed, transcript)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("xcrypto: aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("xcrypto: gcm: %w", err)
	}
	return aead, nil
}

func deriveKey(shared, transcript []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, shared, transcript, []byte(sealDomain))
	key := make([]byte, 32)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("xcrypto: hkdf: %w", err)
	}
	return key, nil
}

func checkNotZero(shared []byte) error {
	var zero [32]byte
	if subtle.ConstantTimeCompare(shared, zero[:]) == 1 {
		return errors.New("xcrypto: low-order or identity ECDH result")
	}
	return nil
}

// edPrivToX25519 converts an Ed25519 private key's seed into the
// corresponding X25519 scalar per RFC 8032 §5.1.5.
func edPrivToX25519(priv ed25519.PrivateKey) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("xcrypto: bad ed25519 private key length: %d", len(priv))
	}
	seed := priv.Seed()
	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64

	var out [32]byte
	copy(out[:], h[:32])
	return out[:], nil
}

// edPubToX25519 converts an Ed25519 public key (an Edwards point) into
// its Montgomery u-coordinate, the X25519 public key.
func edPubToX25519(pub ed25519.PublicKey) ([]byte, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("xcrypto: bad ed25519 public key length: %d", len(pub))
	}
	p, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return nil, fmt.Errorf("xcrypto: invalid ed25519 public key: %w", err)
	}
	return p.BytesMontgomery(), nil
}
