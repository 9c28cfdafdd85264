package broker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/amqnet/amq/internal/logger"
	"github.com/amqnet/amq/internal/metrics"
	"github.com/amqnet/amq/wire"
)

// Default heartbeat timings (spec §4.2).
const (
	PingPeriod  = 5 * time.Second
	PingTimeout = 15 * time.Second
)

type sessionState int

const (
	stateStarting sessionState = iota
	stateTempBound
	stateIdentityBound
	stateStopping
)

// push is something the broker delivers into a session's mailbox for
// the session to turn into an outbound frame (spec §4.2's "Outbound
// push handling").
type push interface{ isPush() }

type pushMessage struct{ Envelope wire.Envelope }
type pushPingClient struct{ From wire.PK }
type pushPongClient struct{ From wire.PK }
type pushMessageResponse struct{ Response wire.MessageResponse }

func (pushMessage) isPush()         {}
func (pushPingClient) isPush()      {}
func (pushPongClient) isPush()      {}
func (pushMessageResponse) isPush() {}

// Session is one actor per accepted TCP connection (spec §4.2): all
// state transitions happen inside Run's goroutine, so boundPK and
// lastPing need no locking.
type Session struct {
	conn   io.ReadWriteCloser
	broker *Broker
	logger logger.Logger

	boundPK  wire.PK
	lastPing time.Time
	state    sessionState

	pingPeriod  time.Duration
	pingTimeout time.Duration

	outbox chan push
}

// NewSession wraps conn as a session actor. Call Run to start it; conn
// is closed when Run returns.
func NewSession(conn io.ReadWriteCloser, b *Broker, log logger.Logger) *Session {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Session{
		conn:        conn,
		broker:      b,
		logger:      log,
		pingPeriod:  PingPeriod,
		pingTimeout: PingTimeout,
		outbox:      make(chan push, 64),
	}
}

// push enqueues p into the session's mailbox, dropping it silently if
// the mailbox is full (spec §7: "Broker mailbox full / dropped —
// retained behavior: drop the message silently").
func (s *Session) push(p push) {
	select {
	case s.outbox <- p:
	default:
		s.logger.Warn("session mailbox full, dropping push")
	}
}

// Run drives the session's lifecycle (Starting → Temp-bound →
// Identity-bound → Stopping → Stopped) until the connection closes,
// a fatal decode error occurs, the heartbeat watchdog fires, or ctx
// is canceled.
func (s *Session) Run(ctx context.Context) {
	start := time.Now()
	s.state = stateStarting

	s.boundPK = s.broker.connect(s)
	s.state = stateTempBound
	s.lastPing = time.Now()

	metrics.SessionsAccepted.Inc()
	metrics.SessionsActive.Inc()

	reason := "closed"
	defer func() {
		s.state = stateStopping
		s.broker.disconnect(s.boundPK)
		_ = s.conn.Close()
		metrics.SessionsActive.Dec()
		metrics.SessionsClosed.WithLabelValues(reason).Inc()
		metrics.SessionDuration.Observe(time.Since(start).Seconds())
	}()

	frames := make(chan []byte)
	readErrs := make(chan error, 1)
	go s.readLoop(frames, readErrs)

	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case raw, ok := <-frames:
			if !ok {
				return
			}
			req, err := wire.DecodeRequest(raw)
			if err != nil {
				s.logger.Warn("decode error, closing session", logger.Error(err))
				reason = "decode_error"
				return
			}
			metrics.FrameBytesRead.Observe(float64(len(raw)))
			s.handleRequest(req)
			if s.state == stateStopping {
				reason = "register_conflict"
				return
			}

		case p := <-s.outbox:
			if err := s.handlePush(p); err != nil {
				s.logger.Warn("write error, closing session", logger.Error(err))
				reason = "write_error"
				return
			}

		case <-ticker.C:
			if time.Since(s.lastPing) > s.pingTimeout {
				reason = "heartbeat_timeout"
				return
			}
			if err := s.writeResponse(wire.RespPong{}); err != nil {
				reason = "write_error"
				return
			}

		case err := <-readErrs:
			if err != io.EOF {
				s.logger.Debug("session read error", logger.Error(err))
			}
			reason = "peer_closed"
			return

		case <-ctx.Done():
			reason = "shutdown"
			return
		}
	}
}

func (s *Session) readLoop(frames chan<- []byte, errs chan<- error) {
	fr := wire.NewFrameReader(s.conn)
	for {
		payload, err := fr.ReadFrame()
		if err != nil {
			errs <- err
			return
		}
		frames <- payload
	}
}

func (s *Session) identityBound() bool { return s.state == stateIdentityBound }

// handleRequest implements spec §4.2's "Inbound request handling".
func (s *Session) handleRequest(req wire.Request) {
	switch r := req.(type) {
	case wire.ReqPing:
		s.lastPing = time.Now()

	case wire.ReqMessage:
		if !s.identityBound() {
			s.logger.Debug("message dropped before register", logger.String("id", r.Envelope.ID))
			return
		}
		env := r.Envelope
		env.From = s.boundPK
		s.broker.message(env)

	case wire.ReqPingClient:
		if !s.identityBound() {
			return
		}
		s.broker.pingClient(s.boundPK, r.PK, false)

	case wire.ReqPongClient:
		if !s.identityBound() {
			return
		}
		s.broker.pingClient(s.boundPK, r.PK, true)

	case wire.ReqRegister:
		ok := s.broker.register(s.boundPK, r.PK)
		if !ok {
			s.state = stateStopping
			return
		}
		s.boundPK = r.PK
		s.state = stateIdentityBound

	case wire.ReqMessageResponse:
		if !s.identityBound() {
			return
		}
		s.broker.messageResponse(r.Response)
	}
}

// handlePush implements spec §4.2's "Outbound push handling".
func (s *Session) handlePush(p push) error {
	switch v := p.(type) {
	case pushMessage:
		return s.writeResponse(wire.RespMessage{Envelope: v.Envelope})
	case pushPingClient:
		return s.writeResponse(wire.RespPingClient{From: v.From})
	case pushPongClient:
		return s.writeResponse(wire.RespPongClient{From: v.From})
	case pushMessageResponse:
		return s.writeResponse(wire.RespMessageResponseStatus{Response: v.Response})
	default:
		return fmt.Errorf("broker: unhandled push type %T", p)
	}
}

func (s *Session) writeResponse(resp wire.Response) error {
	payload, err := wire.EncodeResponse(resp)
	if err != nil {
		return err
	}
	metrics.FrameBytesWritten.Observe(float64(len(payload)))
	return wire.WriteFrame(s.conn, payload)
}
