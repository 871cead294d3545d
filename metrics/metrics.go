// Package metrics carries the ambient observability stack for the
// consumer runtime: prometheus counters/histograms/gauges shaped after
// `internal/observability/observability.go` in the teacher repo, plus an
// OpenTelemetry tracer for per-callback spans.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config mirrors the teacher's MetricsConfig/TracingConfig shape.
type Config struct {
	Metrics MetricsConfig
	Tracing TracingConfig
}

type MetricsConfig struct {
	Enabled bool
	Addr    string
	Path    string
}

type TracingConfig struct {
	Enabled      bool
	OTLPEndpoint string
	Insecure     bool
	SampleRatio  float64
	ServiceName  string
}

var (
	metricsEnabled int32
	tracingEnabled int32
	defaultTracer  trace.Tracer

	MessagesTotal        *prometheus.CounterVec
	CallbackLatencySec   *prometheus.HistogramVec
	ActiveSubscriptions  *prometheus.GaugeVec
	QueueDepth           *prometheus.GaugeVec

	httpSrv *http.Server
)

// MetricsEnabled reports whether Init registered the prometheus metrics.
func MetricsEnabled() bool { return atomic.LoadInt32(&metricsEnabled) == 1 }

// TracingEnabled reports whether Init installed an OTLP trace exporter.
func TracingEnabled() bool { return atomic.LoadInt32(&tracingEnabled) == 1 }

// Tracer returns the package-wide tracer, falling back to a no-exporter
// otel.Tracer("warren") when tracing was never initialized.
func Tracer() trace.Tracer {
	if defaultTracer != nil {
		return defaultTracer
	}
	return otel.Tracer("warren")
}

// Init registers prometheus collectors and/or an OTLP trace pipeline per
// cfg and returns a shutdown func. Safe to call with both disabled, in
// which case Init is a no-op and the returned shutdown does nothing.
func Init(ctx context.Context, cfg Config, l *slog.Logger) (func(context.Context) error, error) {
	if l == nil {
		l = slog.Default()
	}
	shutdownFns := []func(context.Context) error{}

	if cfg.Metrics.Enabled {
		atomic.StoreInt32(&metricsEnabled, 1)
		MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warren_consumer_messages_total",
			Help: "Messages resolved by the processing worker, by queue and outcome",
		}, []string{"queue", "outcome"})
		CallbackLatencySec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warren_consumer_callback_latency_seconds",
			Help:    "Processing callback latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue"})
		ActiveSubscriptions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "warren_consumer_active_subscriptions",
			Help: "Active subscriptions per queue",
		}, []string{"queue"})
		QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "warren_consumer_queue_depth",
			Help: "Last observed queue depth per queue",
		}, []string{"queue"})
		prometheus.MustRegister(MessagesTotal, CallbackLatencySec, ActiveSubscriptions, QueueDepth)

		mux := http.NewServeMux()
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, promhttp.Handler())

		httpSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				l.Error("metrics server", "err", err)
			}
		}()

		shutdownFns = append(shutdownFns, func(ctx context.Context) error {
			return httpSrv.Shutdown(ctx)
		})
	}

	if cfg.Tracing.Enabled {
		atomic.StoreInt32(&tracingEnabled, 1)

		var opts []otlptracegrpc.Option
		if cfg.Tracing.OTLPEndpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Tracing.OTLPEndpoint))
		}
		if cfg.Tracing.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}

		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, err
		}

		res, err := resource.New(ctx, resource.WithAttributes())
		if err != nil {
			return nil, err
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		defaultTracer = tp.Tracer("warren")

		shutdownFns = append(shutdownFns, tp.Shutdown)
	}

	return func(ctx context.Context) error {
		var firstErr error
		for _, fn := range shutdownFns {
			if err := fn(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}, nil
}
