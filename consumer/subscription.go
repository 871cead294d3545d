package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/warrenmq/warren/pool"
)

// subscriptionState is the state machine from §4.F: Starting -> Running ->
// Draining -> Closed.
type subscriptionState int32

const (
	stateStarting subscriptionState = iota
	stateRunning
	stateDraining
	stateClosed
)

func (s subscriptionState) String() string {
	switch s {
	case stateStarting:
		return "starting"
	case stateRunning:
		return "running"
	case stateDraining:
		return "draining"
	default:
		return "closed"
	}
}

// onMessageFunc is how a subscription hands a raw delivery, paired with a
// fresh FeedbackSender, to the processing worker (component G).
type onMessageFunc func(ctx context.Context, rawBody []byte, fb *FeedbackSender)

// subscription is one active basic.consume on one dedicated channel in
// manual-ack mode with prefetch_count=1, owned by a Queue Consumer.
// Because prefetch is 1, the concurrency bound of a single subscription is
// exactly one in-flight message — this is the backpressure mechanism of
// §5 of the core spec.
type subscription struct {
	handle      pool.Handle
	ch          pool.Channel
	consumerTag string

	queueName string
	onMessage onMessageFunc

	state atomic.Int32
	done  chan struct{}

	l *slog.Logger
}

func startSubscription(ctx context.Context, handle pool.Handle, queueName string, onMessage onMessageFunc, l *slog.Logger) (*subscription, error) {
	ch, err := handle.CreateChannel()
	if err != nil {
		return nil, fmt.Errorf("warren: subscription: create channel: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("warren: subscription: qos: %w", err)
	}

	tag := fmt.Sprintf("warren-%p", ch)
	deliveries, err := ch.Consume(queueName, tag, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("warren: subscription: consume: %w", err)
	}

	s := &subscription{
		handle:      handle,
		ch:          ch,
		consumerTag: tag,
		queueName:   queueName,
		onMessage:   onMessage,
		done:        make(chan struct{}),
		l:           l.With("subscription_tag", tag),
	}
	s.state.Store(int32(stateRunning))

	go s.loop(ctx, deliveries)

	return s, nil
}

func (s *subscription) loop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(s.done)
	defer s.state.Store(int32(stateClosed))
	defer s.handle.Release()
	defer s.ch.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				// Channel-level cancellation (drain completed, or a
				// broker-side error retired the channel). Either way this
				// subscription is done; the scaling loop recreates it
				// next tick if still needed.
				return
			}

			fb := newFeedbackSender(s.ch, d.DeliveryTag, s.l)
			s.processOne(ctx, d.Body, fb)

			if subscriptionState(s.state.Load()) == stateDraining {
				return
			}
		}
	}
}

func (s *subscription) processOne(ctx context.Context, body []byte, fb *FeedbackSender) {
	defer fb.resolveSafetyDefault()
	s.onMessage(ctx, body, fb)
}

// drain marks the subscription as draining and cancels the broker-side
// consumer so no further deliveries arrive; the loop goroutine finishes
// the message already in flight (if any) and then exits on its own.
func (s *subscription) drain() {
	if !s.state.CompareAndSwap(int32(stateRunning), int32(stateDraining)) {
		return
	}
	if err := s.ch.Cancel(s.consumerTag, false); err != nil {
		s.l.Warn("cancel consumer", "err", err)
	}
}

// waitClosed blocks until the subscription's loop goroutine has exited.
func (s *subscription) waitClosed() {
	<-s.done
}

func (s *subscription) isClosed() bool {
	return subscriptionState(s.state.Load()) == stateClosed
}
