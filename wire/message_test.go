package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPKHexRoundTrip(t *testing.T) {
	var pk PK
	pk[0] = 0xaa
	pk[31] = 0x32

	hex := pk.Hex()
	got, err := PKFromHex(hex)
	require.NoError(t, err)
	assert.Equal(t, pk, got)
}

func TestPKFromHexRejectsWrongLength(t *testing.T) {
	_, err := PKFromHex("aabb")
	assert.Error(t, err)
}

func TestEnvelopeMarshalsPKAsByteArray(t *testing.T) {
	var pk PK
	pk[0] = 1
	env := Envelope{ID: "m1", From: pk, Protocol: ProtocolReqRep, Body: "hi"}

	b, err := json.Marshal(env)
	require.NoError(t, err)

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &generic))

	from, ok := generic["from"].([]interface{})
	require.True(t, ok, "from must marshal as a JSON array, not a string")
	assert.Len(t, from, 32)
	assert.Equal(t, float64(1), from[0])
}

func TestSignableBytesExcludesSignature(t *testing.T) {
	sig := Sig{1, 2, 3}
	env := Envelope{ID: "m1", Protocol: ProtocolReqRep, Body: "hi", Signature: &sig}

	b, err := env.SignableBytes()
	require.NoError(t, err)
	assert.NotContains(t, string(b), "signature")
}

func TestMessageResponseOmitsToWhenNil(t *testing.T) {
	resp := MessageResponse{From: PK{1}, Status: StatusPeerNotFound}
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(b), `"to"`)
}
