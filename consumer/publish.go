package consumer

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/warrenmq/warren/codec"
	"github.com/warrenmq/warren/pool"
)

// Publisher is the publish-helpers collaborator documented at the core's
// boundary (§4.H, §4.M of SPEC_FULL.md): single, batch, and transactional
// batch publish, shaped after the teacher's kafka Writer's
// Write/Flush/BeginTx/CommitTx/RollbackTx split, retargeted at
// basic.publish with delivery_mode=2 (persistent).
type Publisher struct {
	pool  *pool.Pool
	codec codec.Serializer

	exchange string

	ch pool.Channel
	h  pool.Handle

	l *slog.Logger
}

// NewPublisher opens a dedicated channel bound to exchange for publishing.
// exchange may be "" to publish directly to a queue by name as routing
// key, using the default exchange.
func NewPublisher(ctx context.Context, p *pool.Pool, c codec.Serializer, exchange string, l *slog.Logger) (*Publisher, error) {
	if l == nil {
		l = slog.Default()
	}

	h, err := p.GetConnection(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := h.CreateChannel()
	if err != nil {
		h.Release()
		return nil, err
	}

	return &Publisher{
		pool:     p,
		codec:    c,
		exchange: exchange,
		ch:       ch,
		h:        h,
		l:        l.With("component", "publisher", "exchange", exchange),
	}, nil
}

// Publish serializes v with the Publisher's codec and issues a single
// basic.publish with delivery_mode=2 (persistent).
func (p *Publisher) Publish(ctx context.Context, routingKey string, v any) error {
	body, err := p.codec.Serialize(v)
	if err != nil {
		return fmt.Errorf("warren: publish: serialize: %w", err)
	}

	return p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// PublishBatch publishes each (routingKey, value) pair in order on the
// Publisher's channel. It stops at the first failure and returns the
// index of the message that failed alongside the error.
func (p *Publisher) PublishBatch(ctx context.Context, routingKeys []string, values []any) (failedAt int, err error) {
	if len(routingKeys) != len(values) {
		return -1, fmt.Errorf("warren: publish batch: routing keys and values length mismatch")
	}

	for i := range values {
		if err := p.Publish(ctx, routingKeys[i], values[i]); err != nil {
			return i, err
		}
	}

	return -1, nil
}

// BeginTx issues tx.select, putting the Publisher's channel into
// transactional mode.
func (p *Publisher) BeginTx() error {
	return p.ch.Tx()
}

// CommitTx issues tx.commit.
func (p *Publisher) CommitTx() error {
	return p.ch.TxCommit()
}

// RollbackTx issues tx.rollback.
func (p *Publisher) RollbackTx() error {
	return p.ch.TxRollback()
}

// PublishBatchTx runs PublishBatch inside a transaction, committing on
// full success and rolling back (best-effort, logging any rollback
// failure) on the first publish error.
func (p *Publisher) PublishBatchTx(ctx context.Context, routingKeys []string, values []any) error {
	if err := p.BeginTx(); err != nil {
		return fmt.Errorf("warren: publish batch tx: begin: %w", err)
	}

	if failedAt, err := p.PublishBatch(ctx, routingKeys, values); err != nil {
		if rbErr := p.RollbackTx(); rbErr != nil {
			p.l.Error("rollback after publish failure", "err", rbErr, "failed_at", failedAt)
		}
		return fmt.Errorf("warren: publish batch tx: publish[%d]: %w", failedAt, err)
	}

	return p.CommitTx()
}

// Close releases the Publisher's channel and connection handle.
func (p *Publisher) Close() error {
	defer p.h.Release()
	return p.ch.Close()
}
