/*
Package subscription tracks which agents consume which topics and drives
sample delivery for callback-based consumers.

A Registry owns the full subscription lifecycle: Subscribe registers the
attachment, materializes the topic's bus reader, and (when a callback is
given) starts a poller goroutine; Unsubscribe, CloseSession and Close tear
attachments down cooperatively. A torn-down poller exits at its next
liveness check, within one poll interval plus one in-flight read.

Pollers are deliberately boring loops: admission check, bounded bus read,
callback, sleep. A rate-limited iteration sleeps out the advised retry
delay; a bus error is logged and the next iteration retries; a panicking
callback is contained and logged. Nothing a consumer does can kill the
loop short of unsubscribing.

Subscription IDs embed the topic and creation time plus a process-wide
sequence number, so they stay unique even when two subscriptions to one
topic are created within the same millisecond, and are never reused.
*/
package subscription
