// Package redisoverlay is a relay-backed netdriver.Driver: every peer
// connects to the same Redis instance instead of dialing each other
// directly, trading the gossip mesh's peer-to-peer topology for a simple
// star with Redis pub/sub at the center. Useful when peers sit behind NATs
// a direct WebSocket dial can't reach.
package redisoverlay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/TechieQuokka/chatapp-go/internal/chatproto"
)

const announceSuffix = "/announce"

// Driver implements netdriver.Driver over a shared Redis server. The
// "address" peers exchange in room codes is the Redis connection URL itself
// — every peer already speaks to the same broker, so no direct dial is
// needed and CmdDial is a no-op here.
type Driver struct {
	client     *redis.Client
	redisURL   string
	selfPeerID string
	logger     *slog.Logger

	mu   sync.Mutex
	subs map[string]*topicSub

	events chan<- chatproto.NetworkEvent
}

type topicSub struct {
	topic    string
	pubsub   *redis.PubSub
	announce *redis.PubSub
	cancel   context.CancelFunc
}

// NewDriver connects to the Redis server at redisURL (e.g.
// "redis://host:6379" or "redis://:password@host:6379") and pings it before
// returning, so construction failures surface immediately rather than on
// the first Subscribe.
func NewDriver(redisURL, selfPeerID string, logger *slog.Logger) (*Driver, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redisoverlay: invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redisoverlay: connect to redis: %w", err)
	}

	return &Driver{
		client:     client,
		redisURL:   redisURL,
		selfPeerID: selfPeerID,
		logger:     logger,
		subs:       make(map[string]*topicSub),
	}, nil
}

// Run implements netdriver.Driver.
func (d *Driver) Run(ctx context.Context, cmds <-chan chatproto.NetworkCommand, events chan<- chatproto.NetworkEvent) error {
	d.events = events
	events <- chatproto.ListeningOnEvt(d.redisURL)

	for {
		select {
		case <-ctx.Done():
			d.closeAll()
			return d.client.Close()

		case cmd, ok := <-cmds:
			if !ok {
				d.closeAll()
				return d.client.Close()
			}
			d.handleCommand(ctx, cmd)
		}
	}
}

func (d *Driver) handleCommand(ctx context.Context, cmd chatproto.NetworkCommand) {
	switch cmd.Kind {
	case chatproto.CmdSubscribe:
		d.subscribe(ctx, cmd.Topic)

	case chatproto.CmdUnsubscribe:
		d.unsubscribe(cmd.Topic)

	case chatproto.CmdPublish:
		if err := d.client.Publish(ctx, cmd.Topic, cmd.Data).Err(); err != nil {
			d.logger.Warn("redis publish failed", "topic", cmd.Topic, "err", err)
		}

	case chatproto.CmdDial:
		// Every peer already speaks to the same broker; nothing to dial.

	case chatproto.CmdQueryListenAddrs:
		d.events <- chatproto.ListeningOnEvt(d.redisURL)
	}
}

func (d *Driver) subscribe(ctx context.Context, topic string) {
	d.mu.Lock()
	if _, exists := d.subs[topic]; exists {
		d.mu.Unlock()
		return
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &topicSub{
		topic:    topic,
		pubsub:   d.client.Subscribe(ctx, topic),
		announce: d.client.Subscribe(ctx, topic+announceSuffix),
		cancel:   cancel,
	}
	d.subs[topic] = sub
	d.mu.Unlock()

	go d.receiveMessages(subCtx, sub)
	go d.receiveAnnouncements(subCtx, sub)

	if err := d.client.Publish(ctx, topic+announceSuffix, d.selfPeerID).Err(); err != nil {
		d.logger.Warn("redis announce publish failed", "topic", topic, "err", err)
	}
}

func (d *Driver) unsubscribe(topic string) {
	d.mu.Lock()
	sub, exists := d.subs[topic]
	if exists {
		delete(d.subs, topic)
	}
	d.mu.Unlock()

	if !exists {
		return
	}
	sub.cancel()
	_ = sub.pubsub.Close()
	_ = sub.announce.Close()
}

func (d *Driver) receiveMessages(ctx context.Context, sub *topicSub) {
	ch := sub.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			d.events <- chatproto.MessageReceivedEvt(sub.topic, []byte(msg.Payload))
		}
	}
}

func (d *Driver) receiveAnnouncements(ctx context.Context, sub *topicSub) {
	ch := sub.announce.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if peerID := msg.Payload; peerID != d.selfPeerID {
				d.events <- chatproto.PeerSubscribedEvt(sub.topic, peerID)
			}
		}
	}
}

func (d *Driver) closeAll() {
	d.mu.Lock()
	subs := make([]*topicSub, 0, len(d.subs))
	for _, sub := range d.subs {
		subs = append(subs, sub)
	}
	d.subs = make(map[string]*topicSub)
	d.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		_ = sub.pubsub.Close()
		_ = sub.announce.Close()
	}
}
