package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes upload metrics
type Collector struct {
	registry        *prometheus.Registry
	uploadsTotal    *prometheus.CounterVec
	inflightUploads prometheus.Gauge
	duration        prometheus.Histogram
	pollsTotal      prometheus.Counter
	retriesTotal    *prometheus.CounterVec
}

// New creates a new metrics collector with its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		uploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codeguard_uploads_total",
				Help: "Total number of uploads by terminal state",
			},
			[]string{"status"},
		),
		inflightUploads: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "codeguard_inflight_uploads",
				Help: "Number of uploads currently holding a concurrency slot",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "codeguard_upload_duration_seconds",
				Help:    "Time from upload start until the asset is ready or failed",
				Buckets: prometheus.DefBuckets,
			},
		),
		pollsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "codeguard_poll_attempts_total",
				Help: "Total number of readiness status calls",
			},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codeguard_retries_total",
				Help: "Total number of retried remote calls by stage",
			},
			[]string{"stage"},
		),
	}

	c.registry.MustRegister(
		c.uploadsTotal,
		c.inflightUploads,
		c.duration,
		c.pollsTotal,
		c.retriesTotal,
	)

	return c
}

// IncResult counts a terminal task state
func (c *Collector) IncResult(status string) {
	c.uploadsTotal.WithLabelValues(status).Inc()
}

// IncInflight marks a task as holding a slot
func (c *Collector) IncInflight() {
	c.inflightUploads.Inc()
}

// DecInflight marks a slot as released
func (c *Collector) DecInflight() {
	c.inflightUploads.Dec()
}

// IncPoll counts one status call
func (c *Collector) IncPoll() {
	c.pollsTotal.Inc()
}

// IncRetry counts one retried remote call
func (c *Collector) IncRetry(stage string) {
	c.retriesTotal.WithLabelValues(stage).Inc()
}

// ObserveDuration observes task duration
func (c *Collector) ObserveDuration(d time.Duration) {
	c.duration.Observe(d.Seconds())
}

// Handler serves the collector's registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// StartServer serves /metrics on addr until ctx is cancelled
func (c *Collector) StartServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
