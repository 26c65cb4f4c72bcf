// Package memorydriver is an in-process fake gossip overlay standing in for
// a real network, letting controller tests exercise multi-peer scenarios
// deterministically and without sockets.
package memorydriver

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"

	"github.com/TechieQuokka/chatapp-go/internal/chatproto"
)

// Broker is the shared medium several Driver instances attach to, standing
// in for the real overlay several real peers would talk over.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Driver]bool // topic -> driver set
	seen        map[string]map[[32]byte]bool // topic -> content hashes already delivered
}

// NewBroker creates an empty broker. Each independent test network should
// use its own broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[string]map[*Driver]bool),
		seen:        make(map[string]map[[32]byte]bool),
	}
}

// NewDriver attaches a new peer to b, identified by peerID with the given
// synthetic listen address.
func (b *Broker) NewDriver(peerID, listenAddr string) *Driver {
	return &Driver{
		broker:     b,
		peerID:     peerID,
		listenAddr: listenAddr,
		logger:     slog.Default().With("component", "memorydriver", "peer_id", peerID),
	}
}

func (b *Broker) subscribe(d *Driver, topic string) (isNew bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[*Driver]bool)
	}
	_, already := b.subscribers[topic][d]
	b.subscribers[topic][d] = true
	return !already
}

func (b *Broker) unsubscribe(d *Driver, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subscribers[topic]; ok {
		delete(subs, d)
		if len(subs) == 0 {
			delete(b.subscribers, topic)
		}
	}
}

// publish delivers data to every peer subscribed to topic, including the
// publisher itself, so self-echo suppression is left to the controller,
// not the network. Delivery is content-hash deduplicated so a republish of
// identical bytes is a no-op.
func (b *Broker) publish(from *Driver, topic string, data []byte) {
	hash := sha256.Sum256(data)

	b.mu.Lock()
	if b.seen[topic] == nil {
		b.seen[topic] = make(map[[32]byte]bool)
	}
	if b.seen[topic][hash] {
		b.mu.Unlock()
		return
	}
	b.seen[topic][hash] = true

	subs, ok := b.subscribers[topic]
	if !ok {
		b.mu.Unlock()
		return
	}
	recipients := make([]*Driver, 0, len(subs))
	for d := range subs {
		recipients = append(recipients, d)
	}
	b.mu.Unlock()

	for _, d := range recipients {
		go d.deliver(chatproto.MessageReceivedEvt(topic, data))
	}
}

// announceSubscriber notifies every other subscriber of topic that peerID
// joined, mirroring a gossip overlay's peer-subscribed signal.
func (b *Broker) announceSubscriber(d *Driver, topic string) {
	b.mu.RLock()
	subs := b.subscribers[topic]
	recipients := make([]*Driver, 0, len(subs))
	for other := range subs {
		if other == d {
			continue
		}
		recipients = append(recipients, other)
	}
	b.mu.RUnlock()

	for _, other := range recipients {
		go other.deliver(chatproto.PeerSubscribedEvt(topic, d.peerID))
	}
}

// Driver is one peer's attachment to a Broker.
type Driver struct {
	broker     *Broker
	peerID     string
	listenAddr string
	logger     *slog.Logger

	mu     sync.Mutex
	events chan<- chatproto.NetworkEvent
}

func (d *Driver) deliver(evt chatproto.NetworkEvent) {
	d.mu.Lock()
	events := d.events
	d.mu.Unlock()
	if events == nil {
		return
	}
	events <- evt
}

// Run implements netdriver.Driver.
func (d *Driver) Run(ctx context.Context, cmds <-chan chatproto.NetworkCommand, events chan<- chatproto.NetworkEvent) error {
	d.mu.Lock()
	d.events = events
	d.mu.Unlock()

	events <- chatproto.ListeningOnEvt(d.listenAddr)

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-cmds:
			if !ok {
				return nil
			}
			d.handleCommand(cmd, events)
		}
	}
}

func (d *Driver) handleCommand(cmd chatproto.NetworkCommand, events chan<- chatproto.NetworkEvent) {
	switch cmd.Kind {
	case chatproto.CmdSubscribe:
		isNew := d.broker.subscribe(d, cmd.Topic)
		if isNew {
			d.broker.announceSubscriber(d, cmd.Topic)
		}
	case chatproto.CmdUnsubscribe:
		d.broker.unsubscribe(d, cmd.Topic)
	case chatproto.CmdPublish:
		d.broker.publish(d, cmd.Topic, cmd.Data)
	case chatproto.CmdDial:
		// The broker is shared memory: every attached driver is already
		// reachable, so dialing only confirms connectivity.
		events <- chatproto.PeerConnectedEvt()
	case chatproto.CmdQueryListenAddrs:
		events <- chatproto.ListeningOnEvt(d.listenAddr)
	default:
		d.logger.Warn("unknown network command", "kind", fmt.Sprint(cmd.Kind))
	}
}
