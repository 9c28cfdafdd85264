package wire

import (
	"encoding/json"
	"fmt"
)

// Response is the tagged union of broker→client frame payloads (spec §4.1).
type Response interface {
	responseCmd() string
}

// RespPong is the server heartbeat.
type RespPong struct{}

func (RespPong) responseCmd() string { return "Pong" }

// RespMessage is a delivered envelope, From stamped by the broker.
type RespMessage struct{ Envelope Envelope }

func (RespMessage) responseCmd() string { return "Message" }

// RespPingClient is a relayed liveness ping from From.
type RespPingClient struct{ From PK }

func (RespPingClient) responseCmd() string { return "PingClient" }

// RespPongClient is a relayed liveness reply from From.
type RespPongClient struct{ From PK }

func (RespPongClient) responseCmd() string { return "PongClient" }

// RespMessageResponseStatus is a broker-originated or relayed delivery status.
type RespMessageResponseStatus struct{ Response MessageResponse }

func (RespMessageResponseStatus) responseCmd() string { return "MessageResponseStatus" }

// EncodeResponse serializes r to the tagged-union JSON form.
func EncodeResponse(r Response) ([]byte, error) {
	var data json.RawMessage
	var err error

	switch v := r.(type) {
	case RespPong:
		// no payload
	case RespMessage:
		data, err = json.Marshal(v.Envelope)
	case RespPingClient:
		data, err = json.Marshal(v.From)
	case RespPongClient:
		data, err = json.Marshal(v.From)
	case RespMessageResponseStatus:
		data, err = json.Marshal(v.Response)
	default:
		return nil, fmt.Errorf("wire: encode response: %w: %T", errUnknownVariant, r)
	}
	if err != nil {
		return nil, fmt.Errorf("wire: marshal response payload: %w", err)
	}

	return json.Marshal(taggedFrame{Cmd: r.responseCmd(), Data: data})
}

// DecodeResponse parses the tagged-union JSON form into a concrete
// Response variant.
func DecodeResponse(raw []byte) (Response, error) {
	var frame taggedFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("wire: unmarshal response frame: %w", err)
	}

	switch frame.Cmd {
	case "Pong":
		return RespPong{}, nil
	case "Message":
		var env Envelope
		if err := json.Unmarshal(frame.Data, &env); err != nil {
			return nil, fmt.Errorf("wire: unmarshal Message: %w", err)
		}
		return RespMessage{Envelope: env}, nil
	case "PingClient":
		var pk PK
		if err := json.Unmarshal(frame.Data, &pk); err != nil {
			return nil, fmt.Errorf("wire: unmarshal PingClient: %w", err)
		}
		return RespPingClient{From: pk}, nil
	case "PongClient":
		var pk PK
		if err := json.Unmarshal(frame.Data, &pk); err != nil {
			return nil, fmt.Errorf("wire: unmarshal PongClient: %w", err)
		}
		return RespPongClient{From: pk}, nil
	case "MessageResponseStatus":
		var resp MessageResponse
		if err := json.Unmarshal(frame.Data, &resp); err != nil {
			return nil, fmt.Errorf("wire: unmarshal MessageResponseStatus: %w", err)
		}
		return RespMessageResponseStatus{Response: resp}, nil
	default:
		return nil, fmt.Errorf("wire: decode response: %w: %q", errUnknownVariant, frame.Cmd)
	}
}
