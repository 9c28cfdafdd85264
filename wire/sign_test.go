package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amqnet/amq/internal/xcrypto"
	"github.com/amqnet/amq/wire"
)

// TestSignatureRoundTrip exercises P5: for every envelope with no
// signature set, signing its canonical bytes and verifying against
// the same canonical bytes with the signer's public key succeeds.
func TestSignatureRoundTrip(t *testing.T) {
	kp, err := xcrypto.GenerateKeyPair()
	require.NoError(t, err)

	var from wire.PK
	copy(from[:], kp.PublicKey)

	env := wire.Envelope{
		ID:       "u1",
		From:     from,
		Protocol: wire.ProtocolReqRep,
		Body:     "hello",
	}

	canonical, err := env.SignableBytes()
	require.NoError(t, err)

	sig := xcrypto.Sign(kp.PrivateKey, canonical)
	assert.NoError(t, xcrypto.Verify(kp.PublicKey, canonical, sig))

	var wireSig wire.Sig
	copy(wireSig[:], sig)
	env.Signature = &wireSig

	recomputed, err := env.SignableBytes()
	require.NoError(t, err)
	assert.Equal(t, canonical, recomputed, "SignableBytes must ignore the populated Signature field")
	assert.NoError(t, xcrypto.Verify(kp.PublicKey, recomputed, wireSig[:]))
}

func TestSignatureRoundTripFailsOnTamperedBody(t *testing.T) {
	kp, err := xcrypto.GenerateKeyPair()
	require.NoError(t, err)

	var from wire.PK
	copy(from[:], kp.PublicKey)

	env := wire.Envelope{ID: "u1", From: from, Protocol: wire.ProtocolReqRep, Body: "hello"}
	canonical, err := env.SignableBytes()
	require.NoError(t, err)
	sig := xcrypto.Sign(kp.PrivateKey, canonical)

	env.Body = "tampered"
	tampered, err := env.SignableBytes()
	require.NoError(t, err)
	assert.Error(t, xcrypto.Verify(kp.PublicKey, tampered, sig))
}
