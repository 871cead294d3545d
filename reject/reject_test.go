package reject

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warrenmq/warren/pool"
)

type fakeChannel struct {
	declaredExchanges []string
	published         []amqp.Publishing
	publishErr        error
	closed            bool
}

func (f *fakeChannel) Ack(uint64, bool) error  { return nil }
func (f *fakeChannel) Nack(uint64, bool, bool) error { return nil }
func (f *fakeChannel) Cancel(string, bool) error     { return nil }
func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}
func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return nil, nil
}
func (f *fakeChannel) Qos(int, int, bool) error { return nil }
func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}
func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.declaredExchanges = append(f.declaredExchanges, name)
	return nil
}
func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return amqp.Queue{}, nil
}
func (f *fakeChannel) QueueBind(string, string, string, bool, amqp.Table) error { return nil }
func (f *fakeChannel) QueuePurge(string, bool) (int, error)                    { return 0, nil }
func (f *fakeChannel) QueueDelete(string, bool, bool, bool) (int, error)       { return 0, nil }
func (f *fakeChannel) QueueInspect(string) (amqp.Queue, error)                 { return amqp.Queue{}, nil }
func (f *fakeChannel) Tx() error                                               { return nil }
func (f *fakeChannel) TxCommit() error                                         { return nil }
func (f *fakeChannel) TxRollback() error                                       { return nil }

var _ pool.Channel = (*fakeChannel)(nil)

func TestExchange_OnMessageRejection_DeclaresAndPublishes(t *testing.T) {
	ch := &fakeChannel{}
	h := NewExchange(func() (pool.Channel, error) { return ch, nil }, slog.Default())

	h.OnMessageRejection(context.Background(), []byte("bad body"), errors.New("deserialize: unexpected token"), "orders", "/")

	require.Len(t, ch.declaredExchanges, 1)
	assert.Equal(t, "orders.rejected", ch.declaredExchanges[0])

	require.Len(t, ch.published, 1)
	pub := ch.published[0]
	assert.Equal(t, []byte("bad body"), pub.Body)
	assert.Equal(t, "deserialize: unexpected token", pub.Headers["x-rejection-reason"])
	assert.Equal(t, "orders", pub.Headers["x-original-queue"])
	assert.Equal(t, "/", pub.Headers["x-vhost"])
	assert.True(t, ch.closed)
}

func TestExchange_OnMessageRejection_SwallowsPublishFailure(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("broker unreachable")}
	h := NewExchange(func() (pool.Channel, error) { return ch, nil }, slog.Default())

	assert.NotPanics(t, func() {
		h.OnMessageRejection(context.Background(), []byte("x"), errors.New("boom"), "orders", "/")
	})
}

func TestDiscard_IsNoOp(t *testing.T) {
	var d Discard
	assert.NotPanics(t, func() {
		d.OnMessageRejection(context.Background(), []byte("x"), errors.New("boom"), "orders", "/")
	})
}
