// Package telemetry exposes prometheus metrics for the detection pipeline.
package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters updated by the detection loop. A nil *Metrics
// is valid and turns every recording method into a no-op.
type Metrics struct {
	registry *prometheus.Registry

	cyclesTotal            prometheus.Counter
	detectionsTotal        *prometheus.CounterVec
	recoverableErrorsTotal *prometheus.CounterVec
	droppedBytesTotal      prometheus.Counter
}

// NewMetrics creates the metric set on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		cyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "busbell_cycles_total",
			Help: "Number of completed capture-extract-predict cycles.",
		}),
		detectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "busbell_detections_total",
			Help: "Number of emitted detection events by class.",
		}, []string{"class"}),
		recoverableErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "busbell_recoverable_errors_total",
			Help: "Number of recoverable per-cycle errors by category.",
		}, []string{"category"}),
		droppedBytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "busbell_dropped_audio_bytes_total",
			Help: "PCM bytes lost to capture buffer overflow.",
		}),
	}
}

// IncCycles counts one completed detection cycle.
func (m *Metrics) IncCycles() {
	if m != nil {
		m.cyclesTotal.Inc()
	}
}

// IncDetections counts one emitted detection event.
func (m *Metrics) IncDetections(class string) {
	if m != nil {
		m.detectionsTotal.WithLabelValues(class).Inc()
	}
}

// IncRecoverableErrors counts one recoverable cycle error.
func (m *Metrics) IncRecoverableErrors(category string) {
	if m != nil {
		m.recoverableErrorsTotal.WithLabelValues(category).Inc()
	}
}

// AddDroppedBytes counts PCM bytes lost to overflow.
func (m *Metrics) AddDroppedBytes(n uint64) {
	if m != nil && n > 0 {
		m.droppedBytesTotal.Add(float64(n))
	}
}

// Endpoint serves the metrics over HTTP.
type Endpoint struct {
	server *http.Server
	log    *slog.Logger
}

// NewEndpoint builds a metrics HTTP server on the given listen address.
func NewEndpoint(listen string, metrics *Metrics, log *slog.Logger) *Endpoint {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{}))

	return &Endpoint{
		server: &http.Server{
			Addr:              listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start serves metrics until ctx is cancelled.
func (e *Endpoint) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.log.Info("Telemetry endpoint listening", "addr", e.server.Addr)
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.log.Error("Telemetry endpoint failed", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.server.Shutdown(shutdownCtx)
	}()
}
