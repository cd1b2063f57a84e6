package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsTotal  *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    prometheus.Gauge
	pendingDepth prometheus.Gauge
	latency      *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		eventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobfuse_events_total",
				Help: "Total number of feed events processed per stream",
			},
			[]string{"stream"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobfuse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lobfuse_last_trade_price",
				Help: "Last observed trade price",
			},
		),
		pendingDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lobfuse_pending_records",
				Help: "Records buffered awaiting their labeling horizon",
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lobfuse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordEvent counts one processed feed event for a stream.
func (r *Recorder) RecordEvent(stream string) {
	r.eventsTotal.WithLabelValues(stream).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last observed trade price.
func (r *Recorder) RecordLastPrice(price float64) {
	r.lastPrice.Set(price)
}

// RecordPendingDepth records the size of the labeling buffer.
func (r *Recorder) RecordPendingDepth(n int) {
	r.pendingDepth.Set(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
