package consumer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warrenmq/warren/scale"
)

func noopOnMessage(ctx context.Context, rawBody []byte, fb *FeedbackSender) {
	fb.Ack()
}

func newTestQueueConsumer(p *fakePool, mgr scale.Manager, interval time.Duration, onMessage onMessageFunc) *QueueConsumer {
	return newQueueConsumer(p, "orders", "", mgr, interval, onMessage, slog.Default())
}

// TestQueueConsumer_Reconcile_ScalesUp drives scenario S6: a queue with
// depth above the policy's floor grows the active subscription count up
// to the policy's target, each new subscription backed by its own
// channel.
func TestQueueConsumer_Reconcile_ScalesUp(t *testing.T) {
	p := &fakePool{
		currentDepth: func() (amqp.Queue, error) {
			return amqp.Queue{Name: "orders", Messages: 5, Consumers: 0}, nil
		},
	}
	mgr := scale.New(scale.Config{
		MinConcurrentConsumers:   1,
		MaxConcurrentConsumers:   5,
		MessagesPerConsumerRatio: 2,
		AutoScaleInterval:        time.Hour,
	})
	qc := newTestQueueConsumer(p, mgr, time.Hour, noopOnMessage)

	qc.reconcile(context.Background())

	qc.mu.Lock()
	active := len(qc.subs)
	qc.mu.Unlock()

	// ceil(5/2) = 3, clamped into [1,5].
	assert.Equal(t, 3, active)
	assert.Len(t, p.subscriptionChannels(), 3)
}

// TestQueueConsumer_Reconcile_ScalesDown shrinks an over-provisioned
// consumer set back down to the policy's target once depth drops.
func TestQueueConsumer_Reconcile_ScalesDown(t *testing.T) {
	depth := 10
	p := &fakePool{
		currentDepth: func() (amqp.Queue, error) {
			return amqp.Queue{Name: "orders", Messages: depth}, nil
		},
	}
	mgr := scale.New(scale.Config{
		MinConcurrentConsumers:   1,
		MaxConcurrentConsumers:   5,
		MessagesPerConsumerRatio: 2,
		AutoScaleInterval:        time.Hour,
	})
	qc := newTestQueueConsumer(p, mgr, time.Hour, noopOnMessage)

	qc.reconcile(context.Background())
	qc.mu.Lock()
	require.Equal(t, 5, len(qc.subs))
	qc.mu.Unlock()

	depth = 1
	qc.reconcile(context.Background())

	assert.Eventually(t, func() bool {
		qc.mu.Lock()
		defer qc.mu.Unlock()
		qc.subs = reapClosed(qc.subs)
		return len(qc.subs) == 1
	}, time.Second, time.Millisecond)
}

// TestQueueConsumer_Reconcile_SkipsTickOnPassiveDeclareFailure leaves the
// active subscription set untouched when the passive declare used to
// drive the policy fails.
func TestQueueConsumer_Reconcile_SkipsTickOnPassiveDeclareFailure(t *testing.T) {
	p := &fakePool{
		currentDepth: func() (amqp.Queue, error) {
			return amqp.Queue{}, assert.AnError
		},
	}
	mgr := scale.Fixed{Target: 3}
	qc := newTestQueueConsumer(p, mgr, time.Hour, noopOnMessage)

	qc.reconcile(context.Background())

	qc.mu.Lock()
	defer qc.mu.Unlock()
	assert.Empty(t, qc.subs)
}

// TestQueueConsumer_StartStop_WaitsForInFlightDelivery drives scenario
// S7: Stop must block until an in-flight delivery's callback finishes,
// as long as that happens within the grace period, and must not return
// early.
func TestQueueConsumer_StartStop_WaitsForInFlightDelivery(t *testing.T) {
	unblock := make(chan struct{})
	var invoked atomic.Bool
	var acked atomic.Bool

	onMessage := func(ctx context.Context, rawBody []byte, fb *FeedbackSender) {
		invoked.Store(true)
		<-unblock
		fb.Ack()
		acked.Store(true)
	}

	p := &fakePool{
		currentDepth: func() (amqp.Queue, error) {
			return amqp.Queue{Name: "orders", Messages: 1}, nil
		},
	}
	mgr := scale.Fixed{Target: 1}
	qc := newTestQueueConsumer(p, mgr, 10*time.Millisecond, onMessage)

	require.NoError(t, qc.Start(context.Background()))
	require.True(t, qc.IsRunning())

	var subCh *fakeChannel
	require.Eventually(t, func() bool {
		subs := p.subscriptionChannels()
		if len(subs) == 0 {
			return false
		}
		subCh = subs[0]
		return true
	}, time.Second, time.Millisecond)

	subCh.deliver(amqp.Delivery{DeliveryTag: 1, Body: []byte(`{"id":"1"}`)})

	require.Eventually(t, func() bool { return invoked.Load() }, time.Second, time.Millisecond)

	go func() {
		time.Sleep(30 * time.Millisecond)
		close(unblock)
	}()

	start := time.Now()
	qc.Stop(time.Second)
	elapsed := time.Since(start)

	assert.False(t, qc.IsRunning())
	assert.True(t, acked.Load(), "Stop must wait for the in-flight callback to finish")
	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond, "Stop returned before the in-flight delivery resolved")
	assert.Less(t, elapsed, time.Second, "Stop should not have hit the grace-period timeout")
	assert.Contains(t, subCh.acked, uint64(1))
}

// TestQueueConsumer_Stop_IsIdempotent ensures a second Stop call is a
// no-op rather than a double-close or double-cancel.
func TestQueueConsumer_Stop_IsIdempotent(t *testing.T) {
	p := &fakePool{
		currentDepth: func() (amqp.Queue, error) { return amqp.Queue{Name: "orders"}, nil },
	}
	qc := newTestQueueConsumer(p, scale.Fixed{Target: 0}, time.Hour, noopOnMessage)

	require.NoError(t, qc.Start(context.Background()))
	qc.Stop(time.Second)
	qc.Stop(time.Second)

	assert.False(t, qc.IsRunning())
}
