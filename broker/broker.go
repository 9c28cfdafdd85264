// Package broker implements the routing core of the message-queue
// network: the session actor (per-connection state machine) and the
// broker core (session registry, subscription table, dispatch).
package broker

import (
	"context"

	"github.com/amqnet/amq/internal/logger"
	"github.com/amqnet/amq/internal/metrics"
	"github.com/amqnet/amq/internal/xcrypto"
	"github.com/amqnet/amq/wire"
)

// cmd is a message accepted onto the broker's mailbox. The broker runs
// a single goroutine that executes cmds one at a time, which is what
// gives the registry and subscription table their serialization
// guarantee without a lock.
type cmd interface {
	exec(b *Broker)
}

// Broker is the single coordinator owning the session registry and
// the topic subscription table. All mutation happens inside Run's
// goroutine; every other method only ever sends a cmd onto the
// mailbox (and, for synchronous operations, waits on a reply
// channel carried by that cmd).
type Broker struct {
	cmds chan cmd

	registry      map[wire.PK]*Session
	subscriptions map[string][]wire.PK

	logger logger.Logger
}

// New creates a Broker. Call Run to start processing its mailbox.
func New(log logger.Logger) *Broker {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Broker{
		cmds:          make(chan cmd, 256),
		registry:      make(map[wire.PK]*Session),
		subscriptions: make(map[string][]wire.PK),
		logger:        log,
	}
}

// Run processes the broker's mailbox until ctx is canceled. It must
// run in its own goroutine; there is exactly one Run loop per Broker.
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case c := <-b.cmds:
			c.exec(b)
		case <-ctx.Done():
			return
		}
	}
}

// RegistrySize reports the number of registry entries: registered
// identities plus sessions still bound to their temporary PK. Safe
// to call from any goroutine only because it goes through the
// mailbox like everything else.
func (b *Broker) RegistrySize() int {
	reply := make(chan int, 1)
	b.cmds <- registrySizeCmd{reply: reply}
	return <-reply
}

type registrySizeCmd struct{ reply chan int }

func (c registrySizeCmd) exec(b *Broker) { c.reply <- len(b.registry) }

// connect implements Connect(session) -> PK (spec §4.3): generate a
// fresh Ed25519 keypair, register the session under the public half,
// and discard the secret half — it is never needed again, the PK
// only serves as a registry handle until Register.
func (b *Broker) connect(s *Session) wire.PK {
	reply := make(chan wire.PK, 1)
	b.cmds <- &connectCmd{session: s, reply: reply}
	return <-reply
}

type connectCmd struct {
	session *Session
	reply   chan wire.PK
}

func (c *connectCmd) exec(b *Broker) {
	kp, err := xcrypto.GenerateKeyPair()
	if err != nil {
		// Ed25519 keypair generation only fails if crypto/rand can't
		// read entropy; there is nothing a caller can do about it but
		// retry, so loop rather than hand back a zero PK that could
		// collide with a real identity.
		for err != nil {
			kp, err = xcrypto.GenerateKeyPair()
		}
	}

	var pk wire.PK
	copy(pk[:], kp.PublicKey)

	b.registry[pk] = c.session
	metrics.RegistrySize.Set(float64(len(b.registry)))
	b.logger.Debug("session connected", logger.String("temp_pk", pk.Hex()))

	c.reply <- pk
}

// disconnect implements Disconnect(pk) (spec §4.3). Fire-and-forget:
// no caller waits on the removal completing.
func (b *Broker) disconnect(pk wire.PK) {
	b.cmds <- disconnectCmd{pk: pk}
}

type disconnectCmd struct{ pk wire.PK }

func (c disconnectCmd) exec(b *Broker) {
	delete(b.registry, c.pk)
	metrics.RegistrySize.Set(float64(len(b.registry)))
	b.logger.Debug("session disconnected", logger.String("pk", c.pk.Hex()))
}

// register implements MqRegister (spec §4.3): move the registry entry
// from oldPK to newPK, refusing if newPK is already bound or oldPK is
// gone. Returns ok=false in either case, matching the spec's
// Option<PK>::None.
func (b *Broker) register(oldPK, newPK wire.PK) (ok bool) {
	reply := make(chan bool, 1)
	b.cmds <- &registerCmd{oldPK: oldPK, newPK: newPK, reply: reply}
	return <-reply
}

type registerCmd struct {
	oldPK, newPK wire.PK
	reply        chan bool
}

func (c *registerCmd) exec(b *Broker) {
	if _, taken := b.registry[c.newPK]; taken {
		c.reply <- false
		return
	}
	session, exists := b.registry[c.oldPK]
	if !exists {
		c.reply <- false
		return
	}

	delete(b.registry, c.oldPK)
	b.registry[c.newPK] = session
	metrics.RegistrySize.Set(float64(len(b.registry)))
	b.logger.Info("session registered",
		logger.String("old_pk", c.oldPK.Hex()),
		logger.String("pk", c.newPK.Hex()),
	)

	c.reply <- true
}

// message implements MqMessage (spec §4.3, §4.4): dispatch per
// protocol then emit a MqMessageResponse back to the sender.
// Fire-and-forget; the sender sees the outcome asynchronously via its
// own mailbox.
func (b *Broker) message(env wire.Envelope) {
	b.cmds <- messageCmd{env: env}
}

type messageCmd struct{ env wire.Envelope }

func (c messageCmd) exec(b *Broker) {
	env := c.env
	var status wire.Status

	switch env.Protocol {
	case wire.ProtocolSub, wire.ProtocolUnSub, wire.ProtocolPub:
		status = b.dispatchTopic(env)
	case wire.ProtocolReqRep:
		status = b.dispatchReqRep(env)
	default:
		status = wire.StatusFailed
	}

	metrics.DispatchTotal.WithLabelValues(string(env.Protocol), string(status)).Inc()

	if sender, ok := b.registry[env.From]; ok {
		sender.push(pushMessageResponse{wire.MessageResponse{From: env.From, To: env.To, Status: status}})
	}
}

// dispatchTopic implements Case A of spec §4.4: Sub/UnSub/Pub.
func (b *Broker) dispatchTopic(env wire.Envelope) wire.Status {
	if env.Event == nil {
		return wire.StatusFailed
	}
	topic := *env.Event

	switch env.Protocol {
	case wire.ProtocolSub:
		b.subscriptions[topic] = append(b.subscriptions[topic], env.From)
		metrics.SubscriptionCount.Set(float64(b.totalSubscriptions()))
		return wire.StatusSent

	case wire.ProtocolUnSub:
		list := b.subscriptions[topic]
		for i, pk := range list {
			if pk == env.From {
				b.subscriptions[topic] = append(list[:i], list[i+1:]...)
				break
			}
		}
		metrics.SubscriptionCount.Set(float64(b.totalSubscriptions()))
		return wire.StatusSent

	case wire.ProtocolPub:
		for _, pk := range b.subscriptions[topic] {
			if sess, ok := b.registry[pk]; ok {
				sess.push(pushMessage{env})
			}
			// Dangling PKs (I3) are silently skipped, cleaned lazily:
			// we don't prune them here, only refuse to deliver to them.
		}
		return wire.StatusSent
	}

	return wire.StatusFailed
}

// dispatchReqRep implements Case B of spec §4.4.
func (b *Broker) dispatchReqRep(env wire.Envelope) wire.Status {
	if env.To == nil {
		return wire.StatusPeerNotFound
	}
	if sess, ok := b.registry[*env.To]; ok {
		sess.push(pushMessage{env})
		return wire.StatusSent
	}
	if _, ok := b.registry[env.From]; ok {
		return wire.StatusPeerNotFound
	}
	return wire.StatusFailed
}

func (b *Broker) totalSubscriptions() int {
	n := 0
	for _, list := range b.subscriptions {
		n += len(list)
	}
	return n
}

// pingClient implements MqPingClient/MqPongClient (spec §4.3):
// forward a liveness ping/pong to `to`'s session if it is registered,
// otherwise drop.
func (b *Broker) pingClient(from, to wire.PK, pong bool) {
	b.cmds <- pingClientCmd{from: from, to: to, pong: pong}
}

type pingClientCmd struct {
	from, to wire.PK
	pong     bool
}

func (c pingClientCmd) exec(b *Broker) {
	sess, ok := b.registry[c.to]
	if !ok {
		return
	}
	if c.pong {
		sess.push(pushPongClient{From: c.from})
	} else {
		sess.push(pushPingClient{From: c.from})
	}
}

// messageResponse implements the MqMessageResponse relay (spec §4.3):
// forward r to r.From's session if present. The source path is
// deliberately blind — see DESIGN.md's open-question decision on
// MqMessageResponse relay semantics.
func (b *Broker) messageResponse(resp wire.MessageResponse) {
	b.cmds <- messageResponseCmd{resp: resp}
}

type messageResponseCmd struct{ resp wire.MessageResponse }

func (c messageResponseCmd) exec(b *Broker) {
	if sess, ok := b.registry[c.resp.From]; ok {
		sess.push(pushMessageResponse{c.resp})
	}
}
