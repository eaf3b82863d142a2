// Package metrics exposes pipeline counters and gauges to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/polysentinel/internal/logger"
)

const namespace = "polysentinel"

// Metrics holds every collector of the service on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	LinesReceived    prometheus.Counter
	LinesDropped     prometheus.Counter
	RecordsDecoded   prometheus.Counter
	DecodeRejections *prometheus.CounterVec
	SamplesProcessed prometheus.Counter
	Alerts           *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
	TrackedMarkets   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LinesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_received_total",
			Help:      "Raw lines accepted into the decode queue.",
		}),
		LinesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_dropped_total",
			Help:      "Raw lines refused because the pipeline was shutting down.",
		}),
		RecordsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_decoded_total",
			Help:      "Lines successfully decoded into records.",
		}),
		DecodeRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_rejections_total",
			Help:      "Lines rejected by the decoder, by reason.",
		}, []string{"reason"}),
		SamplesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_processed_total",
			Help:      "Records applied to the anomaly store.",
		}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts emitted, by kind.",
		}, []string{"kind"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Items waiting in a pipeline queue.",
		}, []string{"queue"}),
		TrackedMarkets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_markets",
			Help:      "Markets with statistical state.",
		}),
	}

	m.registry.MustRegister(
		m.LinesReceived,
		m.LinesDropped,
		m.RecordsDecoded,
		m.DecodeRejections,
		m.SamplesProcessed,
		m.Alerts,
		m.QueueDepth,
		m.TrackedMarkets,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) LineReceived() {
	if m != nil {
		m.LinesReceived.Inc()
	}
}

func (m *Metrics) LineDropped() {
	if m != nil {
		m.LinesDropped.Inc()
	}
}

func (m *Metrics) Decoded() {
	if m != nil {
		m.RecordsDecoded.Inc()
	}
}

func (m *Metrics) Rejected(reason string) {
	if m != nil {
		m.DecodeRejections.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Processed() {
	if m != nil {
		m.SamplesProcessed.Inc()
	}
}

func (m *Metrics) Alert(kind string) {
	if m != nil {
		m.Alerts.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) SetQueueDepth(queue string, depth int) {
	if m != nil {
		m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
	}
}

func (m *Metrics) SetTrackedMarkets(n int) {
	if m != nil {
		m.TrackedMarkets.Set(float64(n))
	}
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to shut down metrics server: %v", err)
		}
	}()

	logger.Info("Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}
