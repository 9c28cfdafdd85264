package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge is returned when an encoded payload would exceed
// MaxPayloadBytes.
var ErrFrameTooLarge = errors.New("wire: frame payload exceeds 65535 bytes")

// WriteFrame encodes payload as uint16_be length ∥ payload and writes
// it to w in a single call, never fragmenting the frame (spec §4.1's
// encoder contract).
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadBytes {
		return ErrFrameTooLarge
	}

	buf := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(buf[:2], uint16(len(payload)))
	copy(buf[2:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("wire: write frame: %w", err)
	}
	return nil
}

// FrameReader incrementally decodes length-prefixed frames from a
// byte stream, tolerating arbitrary chunking of the underlying reads
// (spec §4.1's decoder contract, P4).
type FrameReader struct {
	r   io.Reader
	buf []byte
}

// NewFrameReader wraps r with frame decoding. The caller does not need
// to pre-buffer r; FrameReader reads in small chunks on demand.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, 4096)}
}

// ReadFrame blocks until a full frame is available, returning its
// payload. It returns io.EOF if the underlying stream closes cleanly
// between frames.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	for {
		if payload, ok := fr.tryDecode(); ok {
			return payload, nil
		}

		chunk := make([]byte, 4096)
		n, err := fr.r.Read(chunk)
		if n > 0 {
			fr.buf = append(fr.buf, chunk[:n]...)
		}
		if err != nil {
			if n > 0 && fr.canDecode() {
				continue
			}
			return nil, err
		}
	}
}

// tryDecode applies the decoder contract to the buffered bytes: fewer
// than 2 bytes or fewer than length+2 bytes means "need more", without
// consuming anything.
func (fr *FrameReader) tryDecode() ([]byte, bool) {
	if len(fr.buf) < 2 {
		return nil, false
	}
	length := int(binary.BigEndian.Uint16(fr.buf[:2]))
	if len(fr.buf) < length+2 {
		return nil, false
	}

	payload := make([]byte, length)
	copy(payload, fr.buf[2:2+length])
	fr.buf = fr.buf[2+length:]
	return payload, true
}

func (fr *FrameReader) canDecode() bool {
	if len(fr.buf) < 2 {
		return false
	}
	length := int(binary.BigEndian.Uint16(fr.buf[:2]))
	return len(fr.buf) >= length+2
}

// DecodeAll decodes every complete frame currently sitting in data,
// returning the payloads and any leftover undecoded bytes. Used by
// tests exercising the frame-boundary law (P4) without a live stream.
func DecodeAll(data []byte) (payloads [][]byte, rest []byte, err error) {
	for {
		if len(data) < 2 {
			return payloads, data, nil
		}
		length := int(binary.BigEndian.Uint16(data[:2]))
		if len(data) < length+2 {
			return payloads, data, nil
		}
		payload := make([]byte, length)
		copy(payload, data[2:2+length])
		payloads = append(payloads, payload)
		data = data[2+length:]
	}
}
