package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/amqnet/amq/internal/logger"
	"github.com/amqnet/amq/wire"
)

const helpText = `Commands:
  /pub <topic> <body>    publish body to topic
  /sub <topic>           subscribe to topic
  /unsub <topic>         unsubscribe from topic
  /reqrep <hex-pk> <body>  send a request/reply message to a peer
  /ping <hex-pk>         ask the broker to relay a liveness ping
  /help                  print this help
  /quit                  disconnect and exit
`

// REPL drives an interactive session over a Client: it reads command
// lines from in, writes prompts/output to out, and prints inbound
// deliveries as they arrive (spec §12, grounded on
// original_source/src/client.rs's stdin command loop).
type REPL struct {
	client *Client
	id     string
	logger logger.Logger
	in     *bufio.Scanner
	out    io.Writer
}

// NewREPL wraps an already-running Client (Run must have been
// called) with an interactive command loop. id prefixes the REPL's
// output lines; it is the config profile's id field, never sent on the
// wire.
func NewREPL(c *Client, id string, in io.Reader, out io.Writer, log logger.Logger) *REPL {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &REPL{client: c, id: id, logger: log, in: bufio.NewScanner(in), out: out}
}

// Run prints delivered messages as they arrive and processes command
// lines from in until /quit or EOF. A dropped connection stops the
// printing of deliveries but does not end the command loop.
func (r *REPL) Run() error {
	go r.printInbound()

	fmt.Fprint(r.out, helpText)
	for r.in.Scan() {
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return r.client.Close()
		}
		if err := r.dispatch(line); err != nil {
			fmt.Fprintf(r.out, "%s>> %v\n", r.prompt(), err)
		}
	}
	return r.in.Err()
}

func (r *REPL) prompt() string {
	if r.id == "" {
		return ""
	}
	return "[" + r.id + "] "
}

func (r *REPL) printInbound() {
	for d := range r.client.Inbound {
		switch v := d.Response.(type) {
		case wire.RespMessage:
			body := v.Envelope.Body
			if d.Plaintext != "" {
				body = d.Plaintext
			}
			fmt.Fprintf(r.out, "%smessage from %s: %s%s\n", r.prompt(), v.Envelope.From.Hex(), body, verifiedSuffix(d.Verified))
		case wire.RespPongClient:
			fmt.Fprintf(r.out, "%spong from %s\n", r.prompt(), v.From.Hex())
		case wire.RespMessageResponseStatus:
			fmt.Fprintf(r.out, "%sstatus: %s\n", r.prompt(), v.Response.Status)
		}
	}
}

// verifiedSuffix renders the per-message signature-verified flag
// (spec §7), or nothing for an unsigned message.
func verifiedSuffix(verified *bool) string {
	switch {
	case verified == nil:
		return ""
	case *verified:
		return " [signed, verified]"
	default:
		return " [signed, INVALID]"
	}
}

func (r *REPL) dispatch(line string) error {
	fields := strings.SplitN(line, " ", 3)
	switch fields[0] {
	case "/help":
		fmt.Fprint(r.out, helpText)
		return nil

	case "/pub":
		if len(fields) < 3 {
			return fmt.Errorf("usage: /pub <topic> <body>")
		}
		return r.client.Publish(fields[1], fields[2])

	case "/sub":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /sub <topic>")
		}
		return r.client.Subscribe(fields[1])

	case "/unsub":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /unsub <topic>")
		}
		return r.client.Unsubscribe(fields[1])

	case "/reqrep":
		if len(fields) < 3 {
			return fmt.Errorf("usage: /reqrep <hex-pk> <body>")
		}
		to, err := wire.PKFromHex(fields[1])
		if err != nil {
			return fmt.Errorf("invalid pk: %w", err)
		}
		return r.client.RequestReply(to, nil, fields[2])

	case "/ping":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /ping <hex-pk>")
		}
		to, err := wire.PKFromHex(fields[1])
		if err != nil {
			return fmt.Errorf("invalid pk: %w", err)
		}
		return r.client.PingClient(to)

	default:
		return fmt.Errorf("unknown command %q, try /help", fields[0])
	}
}
