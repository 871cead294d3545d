package consumer

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/warrenmq/warren/codec"
	"github.com/warrenmq/warren/pool"
	"github.com/warrenmq/warren/reject"
	"github.com/warrenmq/warren/scale"
	"github.com/warrenmq/warren/signal"
)

// Client is the Queue Client facade (component H): it owns a shared
// Connection Pool and Serializer, declares AMQP topology, and constructs
// Queue Consumers bound to a user's worker, count manager, and rejection
// handler. Construction is total and infallible; broker I/O only happens
// once a constructed QueueConsumer's Start is called.
type Client struct {
	pool   *pool.Pool
	codec  codec.Serializer
	reject reject.Handler

	l *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithSerializer overrides the default JSON serializer.
func WithSerializer(c codec.Serializer) Option {
	return func(cl *Client) { cl.codec = c }
}

// WithRejectionHandler overrides the default rejection exchange handler.
func WithRejectionHandler(h reject.Handler) Option {
	return func(cl *Client) { cl.reject = h }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.l = l }
}

// NewClient constructs a facade over an existing, possibly shared,
// Connection Pool. p may be shared by multiple Clients; each connection
// handle a Client takes from p is released after use, but Close disposes
// p itself (see Close).
func NewClient(p *pool.Pool, opts ...Option) *Client {
	c := &Client{
		pool:  p,
		codec: codec.NewJSON(),
		l:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.reject == nil {
		c.reject = reject.NewExchange(c.channelFunc(), c.l)
	}

	return c
}

func (c *Client) channelFunc() reject.ChannelFunc {
	return func() (pool.Channel, error) {
		h, err := c.pool.GetConnection(context.Background())
		if err != nil {
			return nil, err
		}
		defer h.Release()
		return h.CreateChannel()
	}
}

// ConsumerConfig bundles everything NewQueueConsumer needs beyond the
// callback itself. Scale.AutoScaleInterval, Scale.MinConcurrentConsumers,
// Scale.MaxConcurrentConsumers, and Scale.MessagesPerConsumerRatio are the
// ConsumerCountManagerConfig fields of the core spec.
type ConsumerConfig struct {
	QueueName   string
	VirtualHost string

	Worker WorkerConfig
	Scale  scale.Config

	// CountManager, if set, overrides the default clamp(ceil(depth/ratio),
	// min, max) policy built from Scale. Use scale.Fixed for the
	// degenerate min==max case, or a custom scale.Manager entirely.
	CountManager scale.Manager
}

func (c *ConsumerConfig) validate() error {
	if c.QueueName == "" {
		return signal.ValidationErr("queue_name is required")
	}
	if c.CountManager == nil {
		return c.Scale.Validate()
	}
	if c.Scale.AutoScaleInterval <= 0 {
		return signal.ValidationErr("auto_scale_interval must be > 0")
	}
	return nil
}

// NewQueueConsumer constructs a Queue Consumer (component F) wired to cb
// as its processing callback, deserializing each delivery's body into T.
// Construction never touches the broker; call Start to engage it.
func NewQueueConsumer[T any](c *Client, conf ConsumerConfig, cb Callback[T]) (*QueueConsumer, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}

	w := newWorker[T](conf.Worker, c.codec, cb, c.reject, conf.QueueName, conf.VirtualHost, c.l)

	mgr := conf.CountManager
	if mgr == nil {
		mgr = scale.New(conf.Scale)
	}

	return newQueueConsumer(c.pool, conf.QueueName, conf.VirtualHost, mgr, conf.Scale.AutoScaleInterval, w.OnMessage, c.l), nil
}

// QueueOptions configures queue.declare for a topology queue (component
// N). EnsureTopology declares with durable=true, exclusive=false,
// auto_delete=false; DeclareQueue uses the options exactly as given, so
// the zero value declares a non-durable queue.
type QueueOptions struct {
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	Args       amqp.Table
}

func defaultQueueOptions() QueueOptions {
	return QueueOptions{Durable: true}
}

// DeclareQueue actively declares queueName with opts, creating it if it
// does not already exist.
func (c *Client) DeclareQueue(ctx context.Context, queueName string, opts QueueOptions) error {
	h, err := c.pool.GetConnection(ctx)
	if err != nil {
		return err
	}
	defer h.Release()

	ch, err := h.CreateChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(queueName, opts.Durable, opts.AutoDelete, opts.Exclusive, false, opts.Args)
	return err
}

// ExchangeOptions configures exchange.declare. DeclareExchange defaults
// an empty Kind to topic; the other fields are used as given, so the zero
// value is not durable. EnsureTopology declares with type=topic,
// durable=true.
type ExchangeOptions struct {
	Kind       string
	Durable    bool
	AutoDelete bool
	Internal   bool
	Args       amqp.Table
}

func defaultExchangeOptions() ExchangeOptions {
	return ExchangeOptions{Kind: "topic", Durable: true}
}

// DeclareExchange actively declares a topic (by default) exchange.
func (c *Client) DeclareExchange(ctx context.Context, name string, opts ExchangeOptions) error {
	if opts.Kind == "" {
		opts.Kind = "topic"
	}

	h, err := c.pool.GetConnection(ctx)
	if err != nil {
		return err
	}
	defer h.Release()

	ch, err := h.CreateChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	return ch.ExchangeDeclare(name, opts.Kind, opts.Durable, opts.AutoDelete, opts.Internal, false, opts.Args)
}

// BindQueue issues queue.bind.
func (c *Client) BindQueue(ctx context.Context, queueName, routingKey, exchange string) error {
	h, err := c.pool.GetConnection(ctx)
	if err != nil {
		return err
	}
	defer h.Release()

	ch, err := h.CreateChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	return ch.QueueBind(queueName, routingKey, exchange, false, nil)
}

// PurgeQueue issues queue.purge and returns the number of messages purged.
func (c *Client) PurgeQueue(ctx context.Context, queueName string) (int, error) {
	h, err := c.pool.GetConnection(ctx)
	if err != nil {
		return 0, err
	}
	defer h.Release()

	ch, err := h.CreateChannel()
	if err != nil {
		return 0, err
	}
	defer ch.Close()

	return ch.QueuePurge(queueName, false)
}

// DeleteQueue issues queue.delete.
func (c *Client) DeleteQueue(ctx context.Context, queueName string) error {
	h, err := c.pool.GetConnection(ctx)
	if err != nil {
		return err
	}
	defer h.Release()

	ch, err := h.CreateChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	_, err = ch.QueueDelete(queueName, false, false, false)
	return err
}

// EnsureTopology declares queueName and, when exchange is non-empty, the
// exchange and binding too — a convenience wrapper used by the CLI/example
// wiring.
func (c *Client) EnsureTopology(ctx context.Context, queueName, exchange, routingKey string) error {
	if err := c.DeclareQueue(ctx, queueName, defaultQueueOptions()); err != nil {
		return err
	}
	if exchange == "" {
		return nil
	}
	if err := c.DeclareExchange(ctx, exchange, defaultExchangeOptions()); err != nil {
		return err
	}
	return c.BindQueue(ctx, queueName, routingKey, exchange)
}

// Close disposes the pool the Client was built over, closing every pooled
// connection. Pool ownership is not counted per Client: other Clients
// sharing the same pool can no longer obtain connections from it
// afterwards.
func (c *Client) Close() error {
	return c.pool.Dispose()
}
