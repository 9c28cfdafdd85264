package wire

import (
	"encoding/json"
	"fmt"
)

// Request is the tagged union of client→broker frame payloads (spec §4.1).
type Request interface {
	requestCmd() string
}

// ReqPing is the bare heartbeat request, no payload.
type ReqPing struct{}

func (ReqPing) requestCmd() string { return "Ping" }

// ReqPingClient asks the broker to forward a liveness ping to PK.
type ReqPingClient struct{ PK PK }

func (ReqPingClient) requestCmd() string { return "PingClient" }

// ReqPongClient replies to a forwarded ping.
type ReqPongClient struct{ PK PK }

func (ReqPongClient) requestCmd() string { return "PongClient" }

// ReqMessage carries an application envelope of any protocol.
type ReqMessage struct{ Envelope Envelope }

func (ReqMessage) requestCmd() string { return "Message" }

// ReqRegister declares the connection's permanent identity.
type ReqRegister struct{ PK PK }

func (ReqRegister) requestCmd() string { return "Register" }

// ReqMessageResponse is a receiver-generated delivery ack for a ReqRep
// envelope.
type ReqMessageResponse struct{ Response MessageResponse }

func (ReqMessageResponse) requestCmd() string { return "MessageResponse" }

type taggedFrame struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeRequest serializes r to the tagged-union JSON form
// {"cmd": "<variant>", "data": <payload>}.
func EncodeRequest(r Request) ([]byte, error) {
	var data json.RawMessage
	var err error

	switch v := r.(type) {
	case ReqPing:
		// no payload
	case ReqPingClient:
		data, err = json.Marshal(v.PK)
	case ReqPongClient:
		data, err = json.Marshal(v.PK)
	case ReqMessage:
		data, err = json.Marshal(v.Envelope)
	case ReqRegister:
		data, err = json.Marshal(v.PK)
	case ReqMessageResponse:
		data, err = json.Marshal(v.Response)
	default:
		return nil, fmt.Errorf("wire: encode request: %w: %T", errUnknownVariant, r)
	}
	if err != nil {
		return nil, fmt.Errorf("wire: marshal request payload: %w", err)
	}

	return json.Marshal(taggedFrame{Cmd: r.requestCmd(), Data: data})
}

// DecodeRequest parses the tagged-union JSON form into a concrete
// Request variant.
func DecodeRequest(raw []byte) (Request, error) {
	var frame taggedFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("wire: unmarshal request frame: %w", err)
	}

	switch frame.Cmd {
	case "Ping":
		return ReqPing{}, nil
	case "PingClient":
		var pk PK
		if err := json.Unmarshal(frame.Data, &pk); err != nil {
			return nil, fmt.Errorf("wire: unmarshal PingClient: %w", err)
		}
		return ReqPingClient{PK: pk}, nil
	case "PongClient":
		var pk PK
		if err := json.Unmarshal(frame.Data, &pk); err != nil {
			return nil, fmt.Errorf("wire: unmarshal PongClient: %w", err)
		}
		return ReqPongClient{PK: pk}, nil
	case "Message":
		var env Envelope
		if err := json.Unmarshal(frame.Data, &env); err != nil {
			return nil, fmt.Errorf("wire: unmarshal Message: %w", err)
		}
		return ReqMessage{Envelope: env}, nil
	case "Register":
		var pk PK
		if err := json.Unmarshal(frame.Data, &pk); err != nil {
			return nil, fmt.Errorf("wire: unmarshal Register: %w", err)
		}
		return ReqRegister{PK: pk}, nil
	case "MessageResponse":
		var resp MessageResponse
		if err := json.Unmarshal(frame.Data, &resp); err != nil {
			return nil, fmt.Errorf("wire: unmarshal MessageResponse: %w", err)
		}
		return ReqMessageResponse{Response: resp}, nil
	default:
		return nil, fmt.Errorf("wire: decode request: %w: %q", errUnknownVariant, frame.Cmd)
	}
}
