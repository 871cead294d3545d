// Package reject implements the rejection handler (component D): the
// terminal sink for deliveries that cannot be deserialized or that a
// processing worker permanently discards.
package reject

import (
	"context"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/warrenmq/warren/pool"
)

// Handler is the user-pluggable rejection sink.
type Handler interface {
	OnMessageRejection(ctx context.Context, rawBody []byte, reason error, queueName, virtualHost string)
}

// ChannelFunc opens a channel to publish rejected bodies on, matching the
// signature a Queue Consumer's connection pool handle already exposes.
type ChannelFunc func() (pool.Channel, error)

// Exchange is the default Handler: it declares (idempotently) a topic
// exchange named "<queue>.rejected" per originating queue and publishes
// the raw body there with diagnostic headers. A publish failure is
// logged and swallowed; the worker issues the broker-side nack whether or
// not this publish succeeds.
type Exchange struct {
	Channel ChannelFunc
	L       *slog.Logger
}

// NewExchange returns the default rejection handler. l may be nil, in
// which case slog.Default() is used.
func NewExchange(channel ChannelFunc, l *slog.Logger) *Exchange {
	if l == nil {
		l = slog.Default()
	}
	return &Exchange{Channel: channel, L: l.With("component", "rejection_handler")}
}

func exchangeName(queueName string) string { return queueName + ".rejected" }

func (h *Exchange) OnMessageRejection(ctx context.Context, rawBody []byte, reason error, queueName, virtualHost string) {
	ch, err := h.Channel()
	if err != nil {
		h.L.Error("open channel for rejection publish", "err", err, "queue", queueName)
		return
	}
	defer ch.Close()

	name := exchangeName(queueName)
	if err := ch.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
		h.L.Error("declare rejection exchange", "err", err, "exchange", name)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	reasonMsg := ""
	if reason != nil {
		reasonMsg = reason.Error()
	}

	err = ch.PublishWithContext(pubCtx, name, queueName, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Body:         rawBody,
		Headers: amqp.Table{
			"x-rejection-reason": reasonMsg,
			"x-original-queue":   queueName,
			"x-vhost":            virtualHost,
		},
	})
	if err != nil {
		h.L.Error("publish rejected message", "err", err, "exchange", name)
		return
	}

	h.L.Debug("published rejected message", "exchange", name, "queue", queueName, "reason", reasonMsg)
}

var _ Handler = (*Exchange)(nil)

// Discard is a no-op Handler for callers who genuinely want rejected
// bodies dropped with no audit trail. Rarely the right default.
type Discard struct{}

func (Discard) OnMessageRejection(context.Context, []byte, error, string, string) {}

var _ Handler = Discard{}
