// internal/metrics/collector.go
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/events"
)

const Namespace = "pumpwatch"

// Collector owns a registry with every pumpwatch metric.
type Collector struct {
	registry *prometheus.Registry

	rpcRequests     *prometheus.CounterVec
	rpcLatency      *prometheus.HistogramVec
	rpcThrottleWait *prometheus.HistogramVec

	launchesDetected *prometheus.CounterVec
	launchesFailed   prometheus.Counter
	candlesClosed    *prometheus.CounterVec
	snipes           *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry, including Go and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		rpcRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "JSON-RPC attempts by endpoint, method and status",
		}, []string{"endpoint", "method", "status"}),
		rpcLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "JSON-RPC attempt latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"method"}),
		rpcThrottleWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "throttle_wait_seconds",
			Help:      "Time spent waiting for the per-endpoint rate window",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8),
		}, []string{"endpoint"}),
		launchesDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "detector",
			Name:      "launches_total",
			Help:      "Resolved launches by mint resolution source",
		}, []string{"source"}),
		launchesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "detector",
			Name:      "launch_failures_total",
			Help:      "Launches dropped during resolution or curve lookup",
		}),
		candlesClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ohlc",
			Name:      "candles_closed_total",
			Help:      "Closed candles by pool",
		}, []string{"pool"}),
		snipes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sniper",
			Name:      "snipes_total",
			Help:      "Snipe attempts by outcome",
		}, []string{"outcome"}),
	}
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRequest implements rpc.Observer.
func (c *Collector) ObserveRequest(endpoint, method string, err error, latency time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	c.rpcRequests.WithLabelValues(endpoint, method, status).Inc()
	c.rpcLatency.WithLabelValues(method).Observe(latency.Seconds())
}

// ObserveThrottle implements rpc.Observer.
func (c *Collector) ObserveThrottle(endpoint string, wait time.Duration) {
	c.rpcThrottleWait.WithLabelValues(endpoint).Observe(wait.Seconds())
}

// SnipeAttempt implements sniping.Recorder.
func (c *Collector) SnipeAttempt(outcome string) {
	c.snipes.WithLabelValues(outcome).Inc()
}

// RegisterGauge adds a gauge read from fn at scrape time.
func (c *Collector) RegisterGauge(subsystem, name, help string, fn func() float64) error {
	return c.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn))
}

// Bind counts launches and candles published on the bus.
func (c *Collector) Bind(bus *events.Bus) []events.Subscription {
	return []events.Subscription{
		bus.Subscribe(events.LaunchDetected, events.LaunchHandler(func(_ context.Context, e events.LaunchDetectedEvent) error {
			c.launchesDetected.WithLabelValues(e.Launch.Source).Inc()
			return nil
		})),
		bus.SubscribeFunc(events.LaunchFailed, func(context.Context, events.Event) error {
			c.launchesFailed.Inc()
			return nil
		}),
		bus.Subscribe(events.CandleClosed, events.CandleHandler(func(_ context.Context, e events.CandleClosedEvent) error {
			c.candlesClosed.WithLabelValues(e.Candle.Pool).Inc()
			return nil
		})),
	}
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx ends.
func (c *Collector) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
