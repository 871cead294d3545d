package consumer

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/warrenmq/warren/pool"
)

// fakeChannel is a minimal pool.Channel fake for unit tests. It records
// ack/nack calls and lets tests fail specific operations.
type fakeChannel struct {
	mu sync.Mutex

	acked   []uint64
	nacked  []nackCall
	cancels []string
	closed  bool

	publishErr error
	published  []amqp.Publishing

	exchangeDeclareErr error

	queueInspect    amqp.Queue
	queueInspectErr error

	deliveries       chan amqp.Delivery
	deliveriesClosed bool
	consumeQueue     string
}

type nackCall struct {
	tag     uint64
	requeue bool
}

func newFakeChannel() *fakeChannel { return &fakeChannel{} }

func (f *fakeChannel) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeChannel) Nack(tag uint64, multiple, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = append(f.nacked, nackCall{tag: tag, requeue: requeue})
	return nil
}

func (f *fakeChannel) Cancel(consumer string, noWait bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, consumer)
	if f.deliveries != nil && !f.deliveriesClosed {
		close(f.deliveries)
		f.deliveriesClosed = true
	}
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumeQueue = queue
	if f.deliveries == nil {
		f.deliveries = make(chan amqp.Delivery, 4)
	}
	return f.deliveries, nil
}

// deliver pushes a delivery into the channel returned by Consume, as if
// the broker had just delivered a message. Consume must have been called
// first (i.e. the subscription must already be running).
func (f *fakeChannel) deliver(d amqp.Delivery) {
	f.mu.Lock()
	ch := f.deliveries
	f.mu.Unlock()
	ch <- d
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error { return nil }

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return f.exchangeDeclareErr
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	return nil
}

func (f *fakeChannel) QueuePurge(name string, noWait bool) (int, error) { return 0, nil }

func (f *fakeChannel) QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error) {
	return 0, nil
}

func (f *fakeChannel) QueueInspect(name string) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queueInspectErr != nil {
		return amqp.Queue{}, f.queueInspectErr
	}
	if f.queueInspect.Name == "" {
		return amqp.Queue{Name: name}, nil
	}
	return f.queueInspect, nil
}

func (f *fakeChannel) Tx() error         { return nil }
func (f *fakeChannel) TxCommit() error   { return nil }
func (f *fakeChannel) TxRollback() error { return nil }

var _ pool.Channel = (*fakeChannel)(nil)
