// Package consumer implements the consumer runtime core: the Queue
// Consumer scaling loop (component F), the processing worker (component
// G), the one-shot feedback sender (component C), and the Queue Client
// facade (component H) that wires them together.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warrenmq/warren/metrics"
	"github.com/warrenmq/warren/pool"
	"github.com/warrenmq/warren/scale"
)

// connProvider is the narrow subset of *pool.Pool the scaling loop
// depends on, following the same narrow-interface-over-concrete-client
// principle as pool.Channel: it lets QueueConsumer be exercised in tests
// against a fake pool without a live broker connection. *pool.Pool
// satisfies it structurally.
type connProvider interface {
	GetConnection(ctx context.Context) (pool.Handle, error)
}

// QueueConsumer is the per-queue scaling loop (component F): it grows and
// shrinks the number of active subscriptions against a moving window of
// queue depth and the configured Consumer Count Manager policy.
type QueueConsumer struct {
	queueName   string
	virtualHost string

	pool     connProvider
	countMgr scale.Manager
	interval time.Duration

	onMessage onMessageFunc

	mu   sync.Mutex
	subs []*subscription

	running  atomic.Bool
	stopping atomic.Bool

	eg         *errgroup.Group
	rootCancel context.CancelFunc

	l *slog.Logger
}

func newQueueConsumer(p connProvider, queueName, vhost string, countMgr scale.Manager, interval time.Duration, onMessage onMessageFunc, l *slog.Logger) *QueueConsumer {
	return &QueueConsumer{
		queueName:   queueName,
		virtualHost: vhost,
		pool:        p,
		countMgr:    countMgr,
		interval:    interval,
		onMessage:   onMessage,
		l:           l.With("component", "queue_consumer", "queue", queueName),
	}
}

// QueueName returns the bound queue's name.
func (qc *QueueConsumer) QueueName() string { return qc.queueName }

// ScalingInterval returns the configured auto-scale tick period.
func (qc *QueueConsumer) ScalingInterval() time.Duration { return qc.interval }

// IsRunning reports whether Start has been called and Stop has not yet
// been called.
func (qc *QueueConsumer) IsRunning() bool { return qc.running.Load() }

// Start engages broker I/O: it verifies the broker is reachable, then
// launches the scaling loop in the background and returns. Only
// ErrBrokerUnreachable and ErrPoolDisposed cross this boundary; every
// other failure is absorbed and retried internally per §7 of the core
// spec.
func (qc *QueueConsumer) Start(ctx context.Context) error {
	handle, err := qc.pool.GetConnection(ctx)
	if err != nil {
		return err
	}
	handle.Release()

	innerCtx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(innerCtx)
	qc.rootCancel = cancel
	qc.eg = eg
	qc.running.Store(true)

	eg.Go(func() error {
		qc.scalingLoop(egCtx)
		return nil
	})

	qc.l.Info("queue consumer started", "interval", qc.interval)
	return nil
}

// Stop flips stopping, cancels the root cancellation token, and waits up
// to grace for in-flight messages to resolve before returning. Messages
// not resolved in time are abandoned — the broker redelivers them.
func (qc *QueueConsumer) Stop(grace time.Duration) {
	if !qc.running.CompareAndSwap(true, false) {
		return
	}
	qc.stopping.Store(true)
	qc.rootCancel()

	done := make(chan struct{})
	go func() {
		qc.eg.Wait()
		close(done)
	}()

	select {
	case <-done:
		qc.l.Info("queue consumer stopped")
	case <-time.After(grace):
		qc.l.Warn("queue consumer stop: grace period elapsed with subscriptions still draining")
	}
}

func (qc *QueueConsumer) scalingLoop(ctx context.Context) {
	t := time.NewTicker(qc.interval)
	defer t.Stop()

	qc.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			qc.closeAll()
			return
		case <-t.C:
			qc.reconcile(ctx)
		}
	}
}

func (qc *QueueConsumer) reconcile(ctx context.Context) {
	depth, consumers, err := qc.queueDepth(ctx)
	if err != nil {
		qc.l.Warn("passive declare failed, skipping scaling tick", "err", err)
		return
	}

	qc.mu.Lock()
	qc.subs = reapClosed(qc.subs)
	active := uint(len(qc.subs))
	qc.mu.Unlock()

	target := qc.countMgr.TargetScale(depth, uint(consumers))

	if metrics.MetricsEnabled() {
		metrics.QueueDepth.WithLabelValues(qc.queueName).Set(float64(depth))
		metrics.ActiveSubscriptions.WithLabelValues(qc.queueName).Set(float64(active))
	}

	switch {
	case active < target:
		qc.scaleUp(ctx, target-active)
	case active > target:
		qc.scaleDown(active - target)
	}
}

func (qc *QueueConsumer) scaleUp(ctx context.Context, n uint) {
	for i := uint(0); i < n; i++ {
		handle, err := qc.pool.GetConnection(ctx)
		if err != nil {
			qc.l.Warn("scale up: get connection", "err", err)
			return
		}

		sub, err := startSubscription(ctx, handle, qc.queueName, qc.onMessage, qc.l)
		if err != nil {
			handle.Release()
			qc.l.Warn("scale up: start subscription", "err", err)
			return
		}

		qc.mu.Lock()
		qc.subs = append(qc.subs, sub)
		qc.mu.Unlock()
	}
}

// scaleDown marks n subscriptions for graceful retirement: each finishes
// its in-flight message, then closes its own channel. The scaling loop
// reaps closed subscriptions from qc.subs on the next tick.
func (qc *QueueConsumer) scaleDown(n uint) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	qc.subs = reapClosed(qc.subs)

	retired := uint(0)
	for _, s := range qc.subs {
		if retired >= n {
			break
		}
		s.drain()
		retired++
	}
}

func reapClosed(subs []*subscription) []*subscription {
	live := subs[:0]
	for _, s := range subs {
		if !s.isClosed() {
			live = append(live, s)
		}
	}
	return live
}

func (qc *QueueConsumer) closeAll() {
	qc.mu.Lock()
	subs := qc.subs
	qc.subs = nil
	qc.mu.Unlock()

	for _, s := range subs {
		s.drain()
	}
	for _, s := range subs {
		s.waitClosed()
	}
}

// queueDepth performs the lightweight passive declare used to drive the
// scaling policy.
func (qc *QueueConsumer) queueDepth(ctx context.Context) (depth uint64, consumers uint32, err error) {
	handle, err := qc.pool.GetConnection(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer handle.Release()

	ch, err := handle.CreateChannel()
	if err != nil {
		return 0, 0, err
	}
	defer ch.Close()

	q, err := ch.QueueInspect(qc.queueName)
	if err != nil {
		return 0, 0, fmt.Errorf("warren: queue inspect: %w", err)
	}

	return uint64(q.Messages), uint32(q.Consumers), nil
}
