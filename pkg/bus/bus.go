package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	gferrors "github.com/vnykmshr/gateflow/pkg/common/errors"
)

// DefaultBufferSize is the number of samples a topic reader retains before
// dropping the oldest.
const DefaultBufferSize = 100

// Sample is one message observed on a topic.
type Sample struct {
	// Topic the sample arrived on.
	Topic string

	// Data is the raw payload as written.
	Data []byte

	// Received is when this bus observed the sample.
	Received time.Time
}

// Bus is the boundary between the gateway and a publish/subscribe transport.
//
// Readers are materialized lazily: the first Read for a topic creates that
// topic's reader, and samples published before then are not observed. Each
// reader buffers a bounded number of samples and drops the oldest on
// overflow; Read drains buffered samples in arrival order.
type Bus interface {
	// Write publishes data to a topic.
	Write(ctx context.Context, topic string, data []byte) error

	// Read returns up to max buffered samples for a topic in arrival
	// order. A non-positive max materializes the topic's reader without
	// draining it.
	Read(ctx context.Context, topic string, max int) ([]Sample, error)

	// Close releases the transport. Operations on a closed bus fail.
	Close() error
}

// failure ties an adapter fault to ErrBusFailure so callers can match the
// class with errors.Is while the cause stays readable in the message.
func failure(op string, cause error) error {
	return gferrors.NewOperationError("bus", op, fmt.Errorf("%w: %v", gferrors.ErrBusFailure, cause))
}

// ring is a bounded drop-oldest sample buffer. One ring backs each
// materialized topic reader; adapter pumps push while callers drain.
type ring struct {
	mu      sync.Mutex
	limit   int
	samples []Sample
}

func newRing(limit int) *ring {
	return &ring{limit: limit}
}

// push appends a sample, evicting the oldest when the buffer is full.
func (r *ring) push(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) >= r.limit {
		copy(r.samples, r.samples[1:])
		r.samples[len(r.samples)-1] = s
		return
	}
	r.samples = append(r.samples, s)
}

// drain removes and returns up to max samples in arrival order.
func (r *ring) drain(max int) []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	if max <= 0 || len(r.samples) == 0 {
		return nil
	}
	n := max
	if n > len(r.samples) {
		n = len(r.samples)
	}
	out := make([]Sample, n)
	copy(out, r.samples[:n])
	remaining := copy(r.samples, r.samples[n:])
	// Zero the vacated tail so drained payloads can be collected.
	for i := remaining; i < len(r.samples); i++ {
		r.samples[i] = Sample{}
	}
	r.samples = r.samples[:remaining]
	return out
}

// size reports the number of buffered samples.
func (r *ring) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}
