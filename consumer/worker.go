package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/warrenmq/warren/codec"
	"github.com/warrenmq/warren/metrics"
	"github.com/warrenmq/warren/reject"
	"github.com/warrenmq/warren/signal"
)

// Callback is the user-supplied processing function (component G's public
// boundary interface). It is always invoked synchronously from the
// worker's point of view — when Pool is configured the invocation runs on
// a goroutine-pool worker and this call still blocks until it returns,
// which is the natural Go rendering of the source's separate sync/async
// worker variants (see DESIGN.md).
type Callback[T any] func(ctx context.Context, msg T) error

// Variant selects between the two processing worker shapes from the core
// spec: Simple never retries (one invocation; the default strategy still
// governs requeue), Advanced runs the full retry/requeue/discard policy.
type Variant int

const (
	Advanced Variant = iota
	Simple
)

// WorkerConfig bundles a processing worker's retry policy.
type WorkerConfig struct {
	Variant          Variant
	InvokeRetryCount uint
	InvokeRetryWait  time.Duration
	DefaultStrategy  signal.Strategy
	// Pool, if set, runs each callback invocation on a bounded goroutine
	// pool (github.com/panjf2000/ants/v2) instead of the subscription's
	// own goroutine, mirroring the Async option of the teacher's
	// client.SubscriberConfig. OnMessage still blocks until the
	// invocation completes, preserving the prefetch=1 concurrency bound.
	Pool *ants.Pool
}

func (c *WorkerConfig) setDefaults() {
	if c.InvokeRetryCount == 0 {
		c.InvokeRetryCount = 1
	}
	if c.DefaultStrategy == "" {
		c.DefaultStrategy = signal.StrategyNone
	}
}

// worker is the processing worker (component G): deserialize, invoke with
// retry, resolve feedback.
type worker[T any] struct {
	conf     WorkerConfig
	codec    codec.Serializer
	callback Callback[T]
	reject   reject.Handler

	queueName   string
	virtualHost string

	l *slog.Logger
}

func newWorker[T any](conf WorkerConfig, c codec.Serializer, cb Callback[T], rh reject.Handler, queueName, vhost string, l *slog.Logger) *worker[T] {
	conf.setDefaults()
	return &worker[T]{
		conf:        conf,
		codec:       c,
		callback:    cb,
		reject:      rh,
		queueName:   queueName,
		virtualHost: vhost,
		l:           l.With("component", "worker", "queue", queueName),
	}
}

// OnMessage implements the algorithm from the core spec's §4.G exactly:
// deserialize, invoke with retry, resolve feedback.
func (w *worker[T]) OnMessage(ctx context.Context, rawBody []byte, fb *FeedbackSender) {
	ctx, span := metrics.Tracer().Start(ctx, "consumer.process",
		trace.WithAttributes(attribute.String("queue.name", w.queueName)))
	defer span.End()

	var msg T
	if err := w.codec.Deserialize(rawBody, &msg); err != nil {
		span.SetAttributes(attribute.Int("try_count", 0))
		w.reject.OnMessageRejection(ctx, rawBody, err, w.queueName, w.virtualHost)
		if nErr := fb.Nack(false); nErr != nil {
			w.l.Error("nack after deserialize failure", "err", nErr)
		}
		w.recordOutcome("discard")
		return
	}

	var (
		tryCount uint
		errs     []error
		success  bool
	)

	start := time.Now()

	for tryCount == 0 || (!success && w.shouldRetry(tryCount, errs)) {
		if tryCount > 0 && w.conf.InvokeRetryWait > 0 {
			select {
			case <-ctx.Done():
				span.SetAttributes(attribute.Int("try_count", int(tryCount)))
				if nErr := fb.Nack(true); nErr != nil {
					w.l.Error("nack after cancellation during retry wait", "err", nErr)
				}
				w.recordOutcome("requeue")
				return
			case <-time.After(w.conf.InvokeRetryWait):
			}
		}

		tryCount++

		if err := w.invoke(ctx, msg); err != nil {
			errs = append(errs, err)
		} else {
			success = true
		}
	}

	span.SetAttributes(attribute.Int("try_count", int(tryCount)))
	w.recordLatency(start)

	if success {
		if err := fb.Ack(); err != nil {
			w.l.Error("ack", "err", err)
		}
		w.recordOutcome("ack")
		return
	}

	last := errs[len(errs)-1]

	if w.shouldRequeue(last) {
		if err := fb.Nack(true); err != nil {
			w.l.Error("nack requeue", "err", err)
		}
		w.recordOutcome("requeue")
		return
	}

	if err := fb.Nack(false); err != nil {
		w.l.Error("nack discard", "err", err)
	}
	w.reject.OnMessageRejection(ctx, rawBody, last, w.queueName, w.virtualHost)
	w.recordOutcome("discard")
}

func (w *worker[T]) recordOutcome(outcome string) {
	if metrics.MetricsEnabled() {
		metrics.MessagesTotal.WithLabelValues(w.queueName, outcome).Inc()
	}
}

func (w *worker[T]) recordLatency(start time.Time) {
	if metrics.MetricsEnabled() {
		metrics.CallbackLatencySec.WithLabelValues(w.queueName).Observe(time.Since(start).Seconds())
	}
}

func (w *worker[T]) invoke(ctx context.Context, msg T) error {
	if w.conf.Pool == nil {
		return w.callback(ctx, msg)
	}

	done := make(chan error, 1)
	if err := w.conf.Pool.Submit(func() {
		done <- w.callback(ctx, msg)
	}); err != nil {
		return err
	}

	return <-done
}

// shouldRetry implements the retry policy of §4.G.
func (w *worker[T]) shouldRetry(tryCount uint, errs []error) bool {
	if w.conf.Variant == Simple {
		return false
	}

	if tryCount >= w.conf.InvokeRetryCount {
		return false
	}

	last := errs[len(errs)-1]
	kind, ok := signal.Classify(last)
	if ok {
		switch kind {
		case signal.Retry:
			return true
		case signal.Discard, signal.Requeue:
			return false
		}
	}

	return w.conf.DefaultStrategy == signal.StrategyRetry
}

// shouldRequeue implements the requeue policy of §4.G. It governs both
// worker variants.
func (w *worker[T]) shouldRequeue(last error) bool {
	kind, ok := signal.Classify(last)
	if ok {
		switch kind {
		case signal.Requeue:
			return true
		case signal.Discard:
			return false
		}
	}

	return w.conf.DefaultStrategy == signal.StrategyRequeue
}
