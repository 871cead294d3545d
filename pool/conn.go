package pool

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Conn is the narrow subset of *amqp091.Connection the pool needs. Like
// Channel, it exists so Pool can be exercised in tests against a fake
// connection instead of a live broker, following the same
// narrow-interface-over-concrete-client principle as
// `internal/connector/manager.go`'s reader.Reader/writer.Writer split in
// the teacher repo.
type Conn interface {
	IsClosed() bool
	Channel() (Channel, error)
	Close() error
}

// connAdapter satisfies Conn over a real *amqp091.Connection, whose own
// Channel() method returns the concrete *amqp091.Channel rather than the
// Channel interface.
type connAdapter struct {
	c *amqp.Connection
}

func (a connAdapter) IsClosed() bool { return a.c.IsClosed() }
func (a connAdapter) Close() error   { return a.c.Close() }
func (a connAdapter) Channel() (Channel, error) {
	return a.c.Channel()
}
