package subscription

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/vnykmshr/gateflow/pkg/bus"
	"github.com/vnykmshr/gateflow/pkg/ratelimit/tiered"
	"github.com/vnykmshr/gateflow/pkg/scheduling/workerpool"
)

// poll drains the subscription's topic until the active flag drops. Every
// iteration is admitted by the limiter (when configured), observed by the
// sink under the "poll" operation, and followed by one interval's pause.
// Rejections and bus errors skip the iteration, never the loop.
func (r *Registry) poll(sub *subscription) {
	defer r.pollers.Done()
	ctx := context.Background()

	for sub.isActive() {
		if r.limiter != nil {
			if err := r.limiter.Check(sub.agent, 1); err != nil {
				r.backoff(sub, err)
				continue
			}
		}

		samples, err := r.bus.Read(ctx, sub.topic, r.maxSamples)
		if err != nil {
			r.sink.RecordRequest("poll", sub.agent, "error")
			r.sink.RecordError("poll", "bus_error")
			r.logger.Warn("poll read failed", map[string]interface{}{
				"id":    sub.id,
				"topic": sub.topic,
				"error": err,
			})
			r.snooze(sub, r.pollInterval)
			continue
		}

		r.sink.RecordRequest("poll", sub.agent, "success")
		if len(samples) > 0 {
			r.sink.RecordSamples(sub.topic, "read", len(samples))
			r.deliver(sub, samples)
		}
		r.snooze(sub, r.pollInterval)
	}
}

// backoff records a rejected poll and sleeps until the next try: the
// advised retry delay when the limiter gave one, otherwise the poll
// interval.
func (r *Registry) backoff(sub *subscription, err error) {
	wait := r.pollInterval
	var lerr *tiered.LimitError
	if errors.As(err, &lerr) {
		r.sink.RecordRequest("poll", sub.agent, "rate_limited")
		r.sink.RecordRateLimitExceeded(sub.agent, lerr.Scope)
		if lerr.RetryAfter > wait {
			wait = lerr.RetryAfter
		}
	} else {
		r.sink.RecordRequest("poll", sub.agent, "error")
		r.sink.RecordError("poll", "limiter_error")
		r.logger.Warn("poll admission failed", map[string]interface{}{
			"id":    sub.id,
			"agent": sub.agent,
			"error": err,
		})
	}
	r.snooze(sub, wait)
}

// snooze sleeps in poll-interval slices so teardown is observed within one
// interval even when the limiter advises a long retry delay.
func (r *Registry) snooze(sub *subscription, d time.Duration) {
	for d > 0 && sub.isActive() {
		step := r.pollInterval
		if step > d {
			step = d
		}
		time.Sleep(step)
		d -= step
	}
}

// deliver hands a sample batch to the subscription's callback, inline or
// on the dispatcher pool.
func (r *Registry) deliver(sub *subscription, samples []bus.Sample) {
	if sub.async {
		task := workerpool.TaskFunc(func(context.Context) error {
			sub.callback(sub.topic, samples)
			return nil
		})
		// The pool contains callback panics and logs them as task failures.
		// A saturated pool drops the batch rather than stalling the poll
		// loop; the next poll picks the topic back up.
		if err := r.dispatcher.TrySubmit(task); err != nil {
			r.sink.RecordError("poll", "dispatch_error")
			r.logger.Warn("async callback dropped", map[string]interface{}{
				"id":    sub.id,
				"error": err,
			})
		}
		return
	}
	r.invoke(sub, samples)
}

// invoke runs the callback inline, containing panics so one bad callback
// cannot kill its poller.
func (r *Registry) invoke(sub *subscription, samples []bus.Sample) {
	defer func() {
		if rec := recover(); rec != nil {
			r.sink.RecordError("poll", "callback_panic")
			r.logger.Error("callback panicked", map[string]interface{}{
				"id":    sub.id,
				"topic": sub.topic,
				"panic": rec,
				"stack": string(debug.Stack()),
			})
		}
	}()
	sub.callback(sub.topic, samples)
}
