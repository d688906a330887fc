// Package bus implements the bounded, multi-subscriber event channel
// connecting producers (provider adapters, the action executor) to consumers
// (the aggregator, streaming transports). Publish applies backpressure up to
// a bounded timeout, then drops the event and synthesizes a
// backpressure-drop MetaNotice; Close is idempotent and publish-after-close
// fails with core.ErrBusClosed.
package bus

import (
	"context"
	"time"

	"sync"

	"github.com/runloop-ai/runloop/core"
	"github.com/runloop-ai/runloop/logging"
	"github.com/runloop-ai/runloop/metrics"
)

// DefaultCapacity is the per-subscriber queue depth when none is configured.
const DefaultCapacity = 1024

// DefaultPublishTimeout bounds how long a publish waits on a full subscriber
// queue before dropping the event.
const DefaultPublishTimeout = 5 * time.Second

// Options configure a Bus.
type Options struct {
	// Capacity is the bounded queue depth per subscriber.
	Capacity int
	// PublishTimeout bounds the wait on a full subscriber queue. Past it the
	// event is dropped with a synthesized backpressure-drop notice; this
	// trades completeness for liveness.
	PublishTimeout time.Duration
	// Logger records drops and lifecycle transitions.
	Logger logging.Logger
}

// Bus is a bounded multi-producer/multi-consumer ordered channel. Every
// subscriber sees every event in arrival order. Publishing is serialized, so
// the bus guarantees one total order of arrival; causal ordering across
// producers (ActionResult after ActionEnd) is a producer-side invariant.
type Bus struct {
	mu             sync.Mutex
	subs           []chan core.Event
	closed         bool
	capacity       int
	publishTimeout time.Duration
	logger         logging.Logger
}

// New constructs an open Bus with optional overrides.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{
		Capacity:       DefaultCapacity,
		PublishTimeout: DefaultPublishTimeout,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	return &Bus{
		capacity:       opts.Capacity,
		publishTimeout: opts.PublishTimeout,
		logger:         opts.Logger,
	}
}

// Subscribe registers a new independent consumer and returns its channel.
// Events published before the subscription are not replayed. Subscribing to
// a closed bus returns an already-closed channel.
func (b *Bus) Subscribe() <-chan core.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan core.Event, b.capacity)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers ev to every subscriber, blocking up to the configured
// timeout per slow subscriber. It returns core.ErrBusClosed after Close and
// ctx.Err() when the context fires while blocked. A timed-out delivery drops
// the event for that subscriber and enqueues a backpressure-drop MetaNotice
// best-effort in its place.
func (b *Bus) Publish(ctx context.Context, ev core.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return core.ErrBusClosed
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Kind())).Inc()

	for _, sub := range b.subs {
		select {
		case sub <- ev:
			continue
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Queue full: bounded wait, then drop.
		timer := time.NewTimer(b.publishTimeout)
		select {
		case sub <- ev:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			b.dropLocked(sub, ev)
		}
	}
	return nil
}

// dropLocked records a backpressure drop and leaves a notice in the
// subscriber's queue so the gap is visible to the consumer. When the queue is
// still full the oldest queued event is evicted to make room for the notice.
// Caller holds b.mu.
func (b *Bus) dropLocked(sub chan core.Event, ev core.Event) {
	metrics.EventDrops.Inc()
	b.logger.Warn("bus.publish.drop",
		"kind", string(ev.Kind()),
		"message_id", ev.MessageID(),
		"timeout", b.publishTimeout.String(),
	)
	notice := core.NewMetaNotice(ev.MessageID(), core.NoticeBackpressureDrop,
		"event dropped after publish timeout")
	select {
	case sub <- notice:
		return
	default:
	}
	select {
	case <-sub:
		metrics.EventDrops.Inc()
	default:
	}
	select {
	case sub <- notice:
	default:
	}
}

// Close closes the bus and every subscriber channel. It is idempotent and
// safe to call concurrently with Publish: a publish in flight completes
// first, later publishes fail with core.ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub)
	}
	b.subs = nil
}

// Closed reports whether Close has been called.
func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
