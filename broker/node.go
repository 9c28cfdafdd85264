package broker

import (
	"context"
	"fmt"
	"net"

	"github.com/amqnet/amq/internal/logger"
)

// Node binds a TCP listener and spawns a Session actor per accepted
// connection, handing each a reference to the shared Broker (spec
// §4's C5).
type Node struct {
	addr   string
	broker *Broker
	logger logger.Logger

	listener net.Listener
	done     chan struct{}
}

// NewNode creates a listener bound to addr (e.g. ":7777") once
// ListenAndServe is called.
func NewNode(addr string, b *Broker, log logger.Logger) *Node {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Node{addr: addr, broker: b, logger: log, done: make(chan struct{})}
}

// ListenAndServe binds the socket and accepts connections until ctx
// is canceled or Accept fails. It blocks; run it in its own
// goroutine alongside Broker.Run.
func (n *Node) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", n.addr)
	if err != nil {
		close(n.done)
		return fmt.Errorf("broker: listen %s: %w", n.addr, err)
	}
	n.listener = ln
	defer close(n.done)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	n.logger.Info("node listening", logger.String("addr", n.addr))

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("broker: accept: %w", err)
			}
		}

		sess := NewSession(conn, n.broker, n.logger)
		go sess.Run(ctx)
	}
}

// Done reports the accept loop's exit, for internal/health's
// AcceptLoopCheck.
func (n *Node) Done() <-chan struct{} { return n.done }

// Addr returns the bound listener address. Only valid after
// ListenAndServe has started listening.
func (n *Node) Addr() net.Addr {
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}
