package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessageRequest(t *testing.T) Request {
	t.Helper()
	event := "news"
	return ReqMessage{Envelope: Envelope{
		ID:       "u1",
		Event:    &event,
		Protocol: ProtocolPub,
		Time:     Timestamp{Sec: 1, Nsec: 2},
		Body:     "hi",
	}}
}

func TestCodecRoundTrip(t *testing.T) {
	// P3: decode(encode(M)) == M for every valid message.
	cases := []Request{
		ReqPing{},
		ReqPingClient{PK: PK{1}},
		ReqPongClient{PK: PK{2}},
		sampleMessageRequest(t),
		ReqRegister{PK: PK{3}},
		ReqMessageResponse{Response: MessageResponse{From: PK{4}, Status: StatusSent}},
	}

	for _, want := range cases {
		payload, err := EncodeRequest(want)
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, payload))

		fr := NewFrameReader(&buf)
		got, err := fr.ReadFrame()
		require.NoError(t, err)

		decoded, err := DecodeRequest(got)
		require.NoError(t, err)
		assert.Equal(t, want, decoded)
	}
}

func TestFrameBoundaryLaw(t *testing.T) {
	// P4: concatenating encodings and feeding arbitrary byte-wise
	// chunking yields the messages in order.
	msgs := []Request{ReqPing{}, sampleMessageRequest(t), ReqRegister{PK: PK{9}}}

	var full bytes.Buffer
	for _, m := range msgs {
		payload, err := EncodeRequest(m)
		require.NoError(t, err)
		require.NoError(t, WriteFrame(&full, payload))
	}

	data := full.Bytes()
	for _, chunkSize := range []int{1, 3, 7, 64, len(data)} {
		r := newChunkedReader(data, chunkSize)
		fr := NewFrameReader(r)

		for _, want := range msgs {
			got, err := fr.ReadFrame()
			require.NoError(t, err)
			decoded, err := DecodeRequest(got)
			require.NoError(t, err)
			assert.Equal(t, want, decoded)
		}
	}
}

func TestDecodeAll(t *testing.T) {
	var full bytes.Buffer
	payload1, _ := EncodeRequest(ReqPing{})
	payload2, _ := EncodeRequest(ReqRegister{PK: PK{1}})
	require.NoError(t, WriteFrame(&full, payload1))
	require.NoError(t, WriteFrame(&full, payload2))
	full.Write([]byte{0, 5, 1, 2}) // trailing partial frame

	payloads, rest, err := DecodeAll(full.Bytes())
	require.NoError(t, err)
	assert.Len(t, payloads, 2)
	assert.Equal(t, []byte{0, 5, 1, 2}, rest)
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxPayloadBytes+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

// chunkedReader drips data out in fixed-size reads to exercise
// arbitrary byte-wise chunking of the underlying stream.
type chunkedReader struct {
	data []byte
	size int
	pos  int
}

func newChunkedReader(data []byte, size int) *chunkedReader {
	return &chunkedReader{data: data, size: size}
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.pos >= len(c.data) {
		return 0, io.EOF
	}
	end := c.pos + c.size
	if end > len(c.data) {
		end = len(c.data)
	}
	if end > c.pos+len(p) {
		end = c.pos + len(p)
	}
	n := copy(p, c.data[c.pos:end])
	c.pos += n
	return n, nil
}
