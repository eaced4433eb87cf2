package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PipelineMetrics struct {
	registry *prometheus.Registry

	filesTotal        *prometheus.CounterVec
	partsTotal        *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	queueDepth        prometheus.Gauge
	debounceAbandoned prometheus.Counter
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	filesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docmind",
			Subsystem: "pipeline",
			Name:      "files_total",
			Help:      "Files pulled from the queue, by terminal outcome.",
		},
		[]string{"service", "outcome"},
	)
	partsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docmind",
			Subsystem: "pipeline",
			Name:      "parts_total",
			Help:      "Split parts handled, by outcome (filed or errored).",
		},
		[]string{"service", "outcome"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docmind",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docmind",
			Subsystem: "pipeline",
			Name:      "queue_depth",
			Help:      "Paths waiting in the work queue.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	debounceAbandoned := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docmind",
			Subsystem: "watcher",
			Name:      "debounce_abandoned_total",
			Help:      "Debounce episodes abandoned without enqueueing.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(filesTotal, partsTotal, stageDuration, queueDepth, debounceAbandoned)

	return &PipelineMetrics{
		registry:          registry,
		filesTotal:        filesTotal,
		partsTotal:        partsTotal,
		stageDuration:     stageDuration,
		queueDepth:        queueDepth,
		debounceAbandoned: debounceAbandoned,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) ObserveFile(service, outcome string) {
	if m == nil {
		return
	}
	m.filesTotal.WithLabelValues(service, outcome).Inc()
}

func (m *PipelineMetrics) ObservePart(service, outcome string) {
	if m == nil {
		return
	}
	m.partsTotal.WithLabelValues(service, outcome).Inc()
}

func (m *PipelineMetrics) ObserveStage(service, stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(service, stage).Observe(duration.Seconds())
}

func (m *PipelineMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *PipelineMetrics) DebounceAbandoned() {
	if m == nil {
		return
	}
	m.debounceAbandoned.Inc()
}
