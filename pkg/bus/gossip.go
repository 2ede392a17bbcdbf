package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	gferrors "github.com/vnykmshr/gateflow/pkg/common/errors"
	"github.com/vnykmshr/gateflow/pkg/logging"
)

// GossipConfig holds configuration options for the brokerless gossip bus.
type GossipConfig struct {
	// ListenAddrs are multiaddrs the host listens on. If empty, an
	// ephemeral TCP port on all interfaces is used.
	ListenAddrs []string

	// BootstrapPeers are multiaddrs of peers to connect to at startup.
	// Unreachable peers are logged and skipped.
	BootstrapPeers []string

	// BufferSize is the per-topic reader capacity.
	// If zero, DefaultBufferSize is used.
	BufferSize int

	// Logger receives host and peering events. If nil, a default logger
	// is used.
	Logger *logging.Logger
}

// Gossip is a Bus backed by libp2p GossipSub. Peers sharing a topic relay
// samples to each other without a broker; a materialized reader owns one
// subscription and a pump goroutine feeding its buffer.
type Gossip struct {
	ctx    context.Context
	cancel context.CancelFunc

	host   host.Host
	ps     *pubsub.PubSub
	buffer int
	logger *logging.Logger

	mu      sync.Mutex
	topics  map[string]*pubsub.Topic
	readers map[string]*gossipReader
	closed  bool

	pumps sync.WaitGroup
}

type gossipReader struct {
	ring *ring
	sub  *pubsub.Subscription
}

// NewGossip creates a gossip bus. The parent context bounds the host's
// lifetime; Close also stops it.
func NewGossip(parent context.Context, config GossipConfig) (*Gossip, error) {
	if config.BufferSize < 0 {
		return nil, gferrors.NewValidationError("bus", "bufferSize", config.BufferSize, "cannot be negative").
			WithHint("leave zero for the default buffer size")
	}
	if config.BufferSize == 0 {
		config.BufferSize = DefaultBufferSize
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.New()
	}
	logger = logger.WithComponent("bus.gossip")

	listenAddrs := make([]ma.Multiaddr, 0, len(config.ListenAddrs))
	for _, s := range config.ListenAddrs {
		if s == "" {
			continue
		}
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, gferrors.NewValidationError("bus", "listenAddrs", s, "invalid multiaddr").
				WithHint("use a form like /ip4/0.0.0.0/tcp/4001")
		}
		listenAddrs = append(listenAddrs, a)
	}
	if len(listenAddrs) == 0 {
		a, _ := ma.NewMultiaddr("/ip4/0.0.0.0/tcp/0")
		listenAddrs = append(listenAddrs, a)
	}

	ctx, cancel := context.WithCancel(parent)

	h, err := libp2p.New(libp2p.ListenAddrs(listenAddrs...))
	if err != nil {
		cancel()
		return nil, failure("Connect", err)
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		cancel()
		return nil, failure("Connect", err)
	}

	g := &Gossip{
		ctx:     ctx,
		cancel:  cancel,
		host:    h,
		ps:      ps,
		buffer:  config.BufferSize,
		logger:  logger,
		topics:  make(map[string]*pubsub.Topic),
		readers: make(map[string]*gossipReader),
	}

	for _, raw := range config.BootstrapPeers {
		if raw == "" {
			continue
		}
		addr, err := ma.NewMultiaddr(raw)
		if err != nil {
			g.logger.Warn("skipping bootstrap peer", map[string]interface{}{"addr": raw, "error": err})
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			g.logger.Warn("skipping bootstrap peer", map[string]interface{}{"addr": raw, "error": err})
			continue
		}
		if err := h.Connect(ctx, *info); err != nil {
			g.logger.Warn("bootstrap connect failed", map[string]interface{}{"peer": info.ID.String(), "error": err})
			continue
		}
		g.logger.Info("connected bootstrap peer", map[string]interface{}{"peer": info.ID.String()})
	}

	g.logger.Info("gossip host ready", map[string]interface{}{"peer": h.ID().String()})
	return g, nil
}

// Write publishes data to the gossip topic.
func (g *Gossip) Write(ctx context.Context, topic string, data []byte) error {
	t, err := g.getOrJoinTopic("Write", topic)
	if err != nil {
		return err
	}
	if err := t.Publish(ctx, data); err != nil {
		return failure("Write", err)
	}
	return nil
}

// Read materializes the topic's subscription on first use and drains up to
// max buffered samples.
func (g *Gossip) Read(_ context.Context, topic string, max int) ([]Sample, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, gferrors.NewOperationError("bus", "Read", gferrors.ErrClosed)
	}
	r, ok := g.readers[topic]
	if !ok {
		t, err := g.joinLocked(topic)
		if err != nil {
			g.mu.Unlock()
			return nil, failure("Read", err)
		}
		sub, err := t.Subscribe()
		if err != nil {
			g.mu.Unlock()
			return nil, failure("Read", err)
		}
		r = &gossipReader{ring: newRing(g.buffer), sub: sub}
		g.readers[topic] = r
		g.pumps.Add(1)
		go g.pump(topic, r)
	}
	g.mu.Unlock()
	return r.ring.drain(max), nil
}

// pump copies subscription messages into the reader's buffer until the bus
// context is canceled or the subscription is torn down.
func (g *Gossip) pump(topic string, r *gossipReader) {
	defer g.pumps.Done()
	for {
		msg, err := r.sub.Next(g.ctx)
		if err != nil {
			return
		}
		r.ring.push(Sample{
			Topic:    topic,
			Data:     append([]byte(nil), msg.Data...),
			Received: time.Now(),
		})
	}
}

// getOrJoinTopic returns the joined topic handle, joining on first use.
// GossipSub allows one join per topic per host, so the handle is cached.
func (g *Gossip) getOrJoinTopic(op, name string) (*pubsub.Topic, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, gferrors.NewOperationError("bus", op, gferrors.ErrClosed)
	}
	t, err := g.joinLocked(name)
	if err != nil {
		return nil, failure(op, err)
	}
	return t, nil
}

func (g *Gossip) joinLocked(name string) (*pubsub.Topic, error) {
	if t, ok := g.topics[name]; ok {
		return t, nil
	}
	t, err := g.ps.Join(name)
	if err != nil {
		return nil, err
	}
	g.topics[name] = t
	return t, nil
}

// PeerID returns the host's peer identity.
func (g *Gossip) PeerID() string {
	return g.host.ID().String()
}

// ListenAddrs returns the host's full dialable addresses. Operators share
// these as bootstrap peers for other instances.
func (g *Gossip) ListenAddrs() []string {
	out := make([]string, 0, len(g.host.Addrs()))
	for _, addr := range g.host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", addr.String(), g.host.ID().String()))
	}
	return out
}

// Close cancels subscriptions, leaves joined topics and stops the host.
func (g *Gossip) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return gferrors.NewOperationError("bus", "Close", gferrors.ErrClosed)
	}
	g.closed = true
	readers := g.readers
	topics := g.topics
	g.readers = nil
	g.topics = nil
	g.mu.Unlock()

	g.cancel()
	for _, r := range readers {
		r.sub.Cancel()
	}
	g.pumps.Wait()

	var firstErr error
	for _, t := range topics {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := g.host.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return failure("Close", firstErr)
	}
	return nil
}
