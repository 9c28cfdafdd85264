// Package wire implements the length-prefixed JSON frame codec and the
// envelope/request/response types that make up the broker's wire
// protocol (spec §3, §4.1).
package wire

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// MaxPayloadBytes is the largest JSON payload a single frame may carry
// (spec I5: length prefix is unsigned 16-bit).
const MaxPayloadBytes = 65535

// PK is a 32-byte Ed25519 public key, the sole routing address for
// clients. It marshals to JSON as a byte array, matching spec §3's
// "encoded on the wire as a byte array inside JSON".
type PK [32]byte

// Sig is a 64-byte detached Ed25519 signature.
type Sig [64]byte

// Nonce is a 24-byte X25519 authenticated-encryption nonce.
type Nonce [24]byte

// Hex renders the key as lowercase hex, the text form used in config
// files and logs (spec §3).
func (pk PK) Hex() string { return hex.EncodeToString(pk[:]) }

// String implements fmt.Stringer so log fields print readable hex
// rather than a byte array.
func (pk PK) String() string { return pk.Hex() }

// PKFromHex parses a lowercase-hex-encoded public key.
func PKFromHex(s string) (PK, error) {
	var pk PK
	b, err := hex.DecodeString(s)
	if err != nil {
		return pk, fmt.Errorf("wire: invalid pk hex: %w", err)
	}
	if len(b) != len(pk) {
		return pk, fmt.Errorf("wire: pk must be %d bytes, got %d", len(pk), len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

func (s Sig) Hex() string { return hex.EncodeToString(s[:]) }

func SigFromHex(str string) (Sig, error) {
	var s Sig
	b, err := hex.DecodeString(str)
	if err != nil {
		return s, fmt.Errorf("wire: invalid signature hex: %w", err)
	}
	if len(b) != len(s) {
		return s, fmt.Errorf("wire: signature must be %d bytes, got %d", len(s), len(b))
	}
	copy(s[:], b)
	return s, nil
}

// MessageProtocol is the tagged enumeration of application protocols
// an Envelope may carry (spec §3).
type MessageProtocol string

const (
	ProtocolPub    MessageProtocol = "Pub"
	ProtocolSub    MessageProtocol = "Sub"
	ProtocolUnSub  MessageProtocol = "UnSub"
	ProtocolReqRep MessageProtocol = "ReqRep"
)

// Timestamp is a sender wall-clock timestamp, seconds plus nanoseconds
// (spec §3's "time" field).
type Timestamp struct {
	Sec  int64 `json:"sec"`
	Nsec int64 `json:"nsec"`
}

// Status is the delivery outcome the broker (or, for Received, the
// receiving client) reports for a dispatched envelope (spec §4.4).
type Status string

const (
	StatusSent         Status = "Sent"
	StatusReceived     Status = "Received"
	StatusPeerNotFound Status = "PeerNotFound"
	StatusFailed       Status = "Failed"
)

// Envelope is the application-layer message record (spec §3). The same
// Go type serves both the client→broker and broker→client wire forms;
// `From` is always present in this type's canonical (in-memory and
// signable) form — see the canonical signing paragraph below for why,
// and DESIGN.md for the rationale.
//
// Canonical signing form (resolves spec §9's open question): the
// signable bytes are the deterministic encoding/json marshaling of
// Envelope with Signature set to nil, in the field order declared by
// this struct. A sender fills in From with their own registered PK
// before signing (the same value the broker will stamp on delivery,
// per invariant I4), so the receiver's recomputation over the
// delivered envelope matches byte-for-byte.
type Envelope struct {
	ID        string          `json:"id"`
	To        *PK             `json:"to,omitempty"`
	From      PK              `json:"from"`
	Signature *Sig            `json:"signature,omitempty"`
	Event     *string         `json:"event,omitempty"`
	Protocol  MessageProtocol `json:"protocol"`
	Time      Timestamp       `json:"time"`
	Nonce     *Nonce          `json:"nonce,omitempty"`
	Body      string          `json:"body"`
}

// SignableBytes returns the canonical byte form used for signing and
// verification: the envelope with Signature cleared.
func (e Envelope) SignableBytes() ([]byte, error) {
	clone := e
	clone.Signature = nil
	b, err := json.Marshal(clone)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal signable envelope: %w", err)
	}
	return b, nil
}

// MessageResponse is the delivery-status record the broker emits to a
// sender after dispatch, and that receiving clients emit back for a
// ReqRep envelope's application-level ack (spec §4.3, §4.4).
type MessageResponse struct {
	From   PK     `json:"from"`
	To     *PK    `json:"to,omitempty"`
	Status Status `json:"status"`
}

var errUnknownVariant = errors.New("wire: unknown cmd variant")
