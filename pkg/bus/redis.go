package bus

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	gferrors "github.com/vnykmshr/gateflow/pkg/common/errors"
	"github.com/vnykmshr/gateflow/pkg/logging"
)

// RedisConfig holds configuration options for the Redis-backed bus.
type RedisConfig struct {
	// Client is an existing Redis client to publish and subscribe on.
	// If nil, a client is created from Addr, Password and DB and owned
	// by the bus.
	Client redis.UniversalClient

	// Addr is the Redis server address as host:port. Ignored when
	// Client is set.
	Addr string

	// Password authenticates the connection. Optional.
	Password string

	// DB selects the Redis logical database.
	DB int

	// BufferSize is the per-topic reader capacity.
	// If zero, DefaultBufferSize is used.
	BufferSize int

	// OpTimeout bounds publish and subscribe round trips.
	// If zero, 500ms is used.
	OpTimeout time.Duration

	// Logger receives connection and subscription events.
	// If nil, a default logger is used.
	Logger *logging.Logger
}

// Redis is a Bus backed by Redis PUBLISH/SUBSCRIBE. Each topic maps to the
// Redis channel of the same name; a materialized reader owns one
// subscription and a pump goroutine feeding its buffer.
type Redis struct {
	client     redis.UniversalClient
	ownsClient bool
	buffer     int
	opTimeout  time.Duration
	logger     *logging.Logger

	mu      sync.Mutex
	readers map[string]*redisReader
	closed  bool

	pumps sync.WaitGroup
}

type redisReader struct {
	ring   *ring
	pubsub *redis.PubSub
}

// NewRedis creates a Redis-backed bus and verifies the connection.
func NewRedis(config RedisConfig) (*Redis, error) {
	if config.BufferSize < 0 {
		return nil, gferrors.NewValidationError("bus", "bufferSize", config.BufferSize, "cannot be negative").
			WithHint("leave zero for the default buffer size")
	}
	if config.Client == nil && config.Addr == "" {
		return nil, gferrors.NewValidationError("bus", "addr", config.Addr, "cannot be empty").
			WithHint("provide a Redis address or an existing client")
	}
	if config.BufferSize == 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.OpTimeout <= 0 {
		config.OpTimeout = 500 * time.Millisecond
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.New()
	}

	client := config.Client
	owns := false
	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr:     config.Addr,
			Password: config.Password,
			DB:       config.DB,
		})
		owns = true
	}

	b := &Redis{
		client:     client,
		ownsClient: owns,
		buffer:     config.BufferSize,
		opTimeout:  config.OpTimeout,
		logger:     logger.WithComponent("bus.redis"),
		readers:    make(map[string]*redisReader),
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		if owns {
			_ = client.Close()
		}
		return nil, failure("Connect", err)
	}
	return b, nil
}

// Write publishes data to the topic's Redis channel.
func (b *Redis) Write(ctx context.Context, topic string, data []byte) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return gferrors.NewOperationError("bus", "Write", gferrors.ErrClosed)
	}

	ctx, cancel := context.WithTimeout(ctx, b.opTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, topic, data).Err(); err != nil {
		return failure("Write", err)
	}
	return nil
}

// Read materializes the topic's subscription on first use and drains up to
// max buffered samples.
func (b *Redis) Read(ctx context.Context, topic string, max int) ([]Sample, error) {
	r, err := b.reader(ctx, topic)
	if err != nil {
		return nil, err
	}
	return r.ring.drain(max), nil
}

// reader returns the topic's reader, subscribing on first use. The
// subscription is confirmed before the reader becomes visible so writes
// issued after Read returns are observed.
func (b *Redis) reader(ctx context.Context, topic string) (*redisReader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, gferrors.NewOperationError("bus", "Read", gferrors.ErrClosed)
	}
	if r, ok := b.readers[topic]; ok {
		return r, nil
	}

	pubsub := b.client.Subscribe(ctx, topic)
	confirmCtx, cancel := context.WithTimeout(ctx, b.opTimeout)
	defer cancel()
	if _, err := pubsub.Receive(confirmCtx); err != nil {
		_ = pubsub.Close()
		return nil, failure("Read", err)
	}

	r := &redisReader{ring: newRing(b.buffer), pubsub: pubsub}
	b.readers[topic] = r

	ch := pubsub.Channel()
	b.pumps.Add(1)
	go func() {
		defer b.pumps.Done()
		for msg := range ch {
			r.ring.push(Sample{
				Topic:    msg.Channel,
				Data:     []byte(msg.Payload),
				Received: time.Now(),
			})
		}
	}()

	b.logger.Debug("subscribed", map[string]interface{}{"topic": topic})
	return r, nil
}

// Close cancels every subscription and, when the bus created its own
// client, closes the connection.
func (b *Redis) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return gferrors.NewOperationError("bus", "Close", gferrors.ErrClosed)
	}
	b.closed = true
	readers := b.readers
	b.readers = nil
	b.mu.Unlock()

	var firstErr error
	for _, r := range readers {
		if err := r.pubsub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.pumps.Wait()

	if b.ownsClient {
		if err := b.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return failure("Close", firstErr)
	}
	return nil
}
