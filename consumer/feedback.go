package consumer

import (
	"log/slog"
	"sync/atomic"

	"github.com/warrenmq/warren/pool"
	"github.com/warrenmq/warren/signal"
)

// FeedbackSender is the one-shot ack/nack gate for a single delivery
// (component C). Exactly one of Ack, Nack(true), or Nack(false) must be
// called during its lifetime; a second call fails loudly and never
// reaches the broker.
type FeedbackSender struct {
	tag uint64
	ch  pool.Channel

	resolved atomic.Bool

	l *slog.Logger
}

func newFeedbackSender(ch pool.Channel, tag uint64, l *slog.Logger) *FeedbackSender {
	return &FeedbackSender{ch: ch, tag: tag, l: l}
}

// DeliveryTag exposes the channel-local delivery tag, mostly useful for
// logging and tests.
func (f *FeedbackSender) DeliveryTag() uint64 { return f.tag }

// Ack acknowledges the delivery.
func (f *FeedbackSender) Ack() error {
	if !f.resolved.CompareAndSwap(false, true) {
		f.l.Error("feedback already sent", "delivery_tag", f.tag, "attempted", "ack")
		return signal.ErrFeedbackAlreadySent
	}
	return f.ch.Ack(f.tag, false)
}

// Nack rejects the delivery, optionally requeuing it.
func (f *FeedbackSender) Nack(requeue bool) error {
	if !f.resolved.CompareAndSwap(false, true) {
		f.l.Error("feedback already sent", "delivery_tag", f.tag, "attempted", "nack", "requeue", requeue)
		return signal.ErrFeedbackAlreadySent
	}
	return f.ch.Nack(f.tag, false, requeue)
}

// resolveSafetyDefault nacks with requeue=true if nothing else resolved
// this delivery. Called by the subscription loop around every dispatch to
// a worker so a panicking or buggy callback never leaves a delivery
// unresolved against the invariant in §3 of the core spec.
func (f *FeedbackSender) resolveSafetyDefault() {
	if f.resolved.CompareAndSwap(false, true) {
		if err := f.ch.Nack(f.tag, false, true); err != nil {
			f.l.Error("safety-default nack", "err", err, "delivery_tag", f.tag)
		}
	}
}
