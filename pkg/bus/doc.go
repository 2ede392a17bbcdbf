/*
Package bus abstracts the publish/subscribe transport the gateway sits on.

A Bus moves opaque byte payloads between topics. Readers are lazy: the
first Read for a topic materializes that topic's reader, and only samples
published afterwards are observed. Each reader buffers a bounded number of
samples (DefaultBufferSize unless configured) and drops the oldest when
full, so slow consumers lose history instead of stalling publishers.

Basic usage:

	b := bus.NewMemory()
	defer b.Close()

	b.Read(ctx, "vehicle/speed", 0) // materialize the reader
	b.Write(ctx, "vehicle/speed", []byte(`{"mps": 4.2}`))

	samples, err := b.Read(ctx, "vehicle/speed", 10)

Adapters:

  - Memory: in-process delivery with no extra goroutines. The default for
    tests and single-process deployments.
  - Redis: topics map to Redis channels; Write is PUBLISH and each reader
    pumps a channel subscription into its buffer.
  - Gossip: brokerless libp2p GossipSub; peers that share a topic relay
    samples directly to each other.

Adapter faults surface as an OperationError wrapping ErrBusFailure. They
fail the single operation, never the process; callers retry on the next
poll.
*/
package bus
