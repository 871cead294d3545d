package pool

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the narrow subset of *amqp091.Channel the consumer runtime
// needs. It exists so components downstream of the pool (feedback
// senders, subscriptions, the Queue Client facade) can be exercised
// against a fake in tests, the same way `internal/connector/manager.go`
// in the teacher repo consumes the narrow `reader.Reader`/`writer.Writer`
// interfaces instead of a concrete broker client type. *amqp091.Channel
// satisfies this interface structurally — no adapter needed.
type Channel interface {
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
	Cancel(consumer string, noWait bool) error
	Close() error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	QueuePurge(name string, noWait bool) (int, error)
	QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error)
	QueueInspect(name string) (amqp.Queue, error)
	Tx() error
	TxCommit() error
	TxRollback() error
}

var _ Channel = (*amqp.Channel)(nil)
