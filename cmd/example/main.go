// Command example is a minimal runnable binary wiring a connection pool,
// a Queue Client, and a single Queue Consumer from a YAML config file,
// grounded on the teacher's cmd/main.go wiring of its QUIC server.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/warrenmq/warren/config"
	"github.com/warrenmq/warren/consumer"
	"github.com/warrenmq/warren/metrics"
	"github.com/warrenmq/warren/pool"
	sig "github.com/warrenmq/warren/signal"
)

// Order is the example payload a Queue Consumer deserializes deliveries
// into. Any JSON-shaped type works; this one exists purely for the
// example binary to compile against consumer.Callback[T].
type Order struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

func main() {
	if len(os.Args) > 2 {
		log.Fatal("invalid args")
	}
	confPath := ""
	if len(os.Args) == 2 {
		confPath = os.Args[1]
	}

	cfg, err := config.Load(confPath)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	logger := slog.New(newHandler(cfg.Log.Type, parseLogLevel(cfg.Log.Level)))
	logger.Info("starting warren example consumer")

	shutdownObs, err := metrics.Init(ctx, cfg.Metrics, logger)
	if err != nil {
		logger.Error(fmt.Errorf("init observability: %w", err).Error())
		os.Exit(1)
	}
	defer shutdownObs(context.Background())

	p := pool.New(cfg.Pool.ToPoolConfig(), logger)
	defer p.Dispose()

	client := consumer.NewClient(p, consumer.WithLogger(logger))
	defer client.Close()

	if err := client.EnsureTopology(ctx, cfg.Consumer.QueueName, cfg.Consumer.Exchange, cfg.Consumer.RoutingKey); err != nil {
		logger.Error(fmt.Errorf("ensure topology: %w", err).Error())
		os.Exit(1)
	}

	variant := consumer.Advanced
	if cfg.Consumer.Worker.Simple {
		variant = consumer.Simple
	}

	qc, err := consumer.NewQueueConsumer(client, consumer.ConsumerConfig{
		QueueName:   cfg.Consumer.QueueName,
		VirtualHost: cfg.Consumer.VirtualHost,
		Scale:       cfg.Consumer.Scale,
		Worker: consumer.WorkerConfig{
			Variant:          variant,
			InvokeRetryCount: cfg.Consumer.Worker.InvokeRetryCount,
			InvokeRetryWait:  cfg.Consumer.Worker.InvokeRetryWait,
			DefaultStrategy:  sig.Strategy(cfg.Consumer.Worker.DefaultStrategy),
		},
	}, func(ctx context.Context, order Order) error {
		logger.Info("processing order", "order_id", order.ID, "amount", order.Amount)
		return nil
	})
	if err != nil {
		logger.Error(fmt.Errorf("new queue consumer: %w", err).Error())
		os.Exit(1)
	}

	if err := qc.Start(ctx); err != nil {
		logger.Error(fmt.Errorf("start queue consumer: %w", err).Error())
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	qc.Stop(15 * time.Second)
}

func parseLogLevel(name string) slog.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(typ string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if typ == "json" {
		return slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.NewTextHandler(os.Stdout, opts)
}
