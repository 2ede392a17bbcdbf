package bus

import (
	"context"
	"sync"

	gferrors "github.com/vnykmshr/gateflow/pkg/common/errors"
	"github.com/vnykmshr/gateflow/pkg/ratelimit/bucket"
)

// MemoryConfig holds configuration options for the in-process bus.
type MemoryConfig struct {
	// BufferSize is the per-topic reader capacity.
	// If zero, DefaultBufferSize is used.
	BufferSize int

	// Clock stamps Sample.Received. If nil, SystemClock is used.
	Clock bucket.Clock
}

// Memory is a process-local Bus. Writes deliver to materialized topic
// readers synchronously; there are no goroutines beyond the callers,
// which keeps tests deterministic.
type Memory struct {
	buffer int
	clock  bucket.Clock

	mu      sync.RWMutex
	readers map[string]*ring
	closed  bool
}

// NewMemory creates an in-process bus with default settings.
func NewMemory() *Memory {
	m, _ := NewMemoryWithConfig(MemoryConfig{})
	return m
}

// NewMemoryWithConfig creates an in-process bus with the given configuration.
func NewMemoryWithConfig(config MemoryConfig) (*Memory, error) {
	if config.BufferSize < 0 {
		return nil, gferrors.NewValidationError("bus", "bufferSize", config.BufferSize, "cannot be negative").
			WithHint("leave zero for the default buffer size")
	}
	if config.BufferSize == 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.Clock == nil {
		config.Clock = bucket.SystemClock{}
	}
	return &Memory{
		buffer:  config.BufferSize,
		clock:   config.Clock,
		readers: make(map[string]*ring),
	}, nil
}

// Write delivers data to the topic's reader if one has been materialized.
// Publishing to a topic nobody reads succeeds and the sample is not
// retained.
func (m *Memory) Write(_ context.Context, topic string, data []byte) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return gferrors.NewOperationError("bus", "Write", gferrors.ErrClosed)
	}
	r := m.readers[topic]
	m.mu.RUnlock()
	if r == nil {
		return nil
	}
	// Copy the payload so the caller cannot mutate buffered samples.
	r.push(Sample{
		Topic:    topic,
		Data:     append([]byte(nil), data...),
		Received: m.clock.Now(),
	})
	return nil
}

// Read materializes the topic's reader on first use and drains up to max
// buffered samples.
func (m *Memory) Read(_ context.Context, topic string, max int) ([]Sample, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, gferrors.NewOperationError("bus", "Read", gferrors.ErrClosed)
	}
	r, ok := m.readers[topic]
	if !ok {
		r = newRing(m.buffer)
		m.readers[topic] = r
	}
	m.mu.Unlock()
	return r.drain(max), nil
}

// Close drops every reader. Buffered samples are discarded.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return gferrors.NewOperationError("bus", "Close", gferrors.ErrClosed)
	}
	m.closed = true
	m.readers = nil
	return nil
}
