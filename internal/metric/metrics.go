package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons
const (
	ReasonDecode = "decode"
	ReasonStale  = "stale"
)

// Metrics contains the ingestion pipeline metrics
type Metrics struct {
	MessagesReceived  prometheus.Counter
	MessagesDropped   *prometheus.CounterVec
	RecordsClassified *prometheus.CounterVec
	LogAppendErrors   prometheus.Counter
	LogAppendDuration prometheus.Histogram
	StatusChanges     prometheus.Counter
	ModelErrors       prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates the pipeline metrics on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shhe",
			Subsystem: "messages",
			Name:      "received_total",
			Help:      "Total number of telemetry messages received",
		}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shhe",
			Subsystem: "messages",
			Name:      "dropped_total",
			Help:      "Telemetry messages dropped before classification",
		}, []string{"reason"}),
		RecordsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shhe",
			Subsystem: "records",
			Name:      "classified_total",
			Help:      "Readings classified, by label",
		}, []string{"label"}),
		LogAppendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shhe",
			Subsystem: "log",
			Name:      "append_errors_total",
			Help:      "Record log appends that failed",
		}),
		LogAppendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shhe",
			Subsystem: "log",
			Name:      "append_duration_seconds",
			Help:      "Record log append duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		StatusChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shhe",
			Subsystem: "status",
			Name:      "changes_total",
			Help:      "Global status changes published",
		}),
		ModelErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shhe",
			Subsystem: "model",
			Name:      "errors_total",
			Help:      "Statistical stage failures that fell back to GOOD",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.MessagesReceived,
		m.MessagesDropped,
		m.RecordsClassified,
		m.LogAppendErrors,
		m.LogAppendDuration,
		m.StatusChanges,
		m.ModelErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
