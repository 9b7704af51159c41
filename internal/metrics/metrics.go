// Package metrics holds the Prometheus collectors for ingestion and retrieval.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry   *prometheus.Registry
	files      *prometheus.CounterVec
	chunks     *prometheus.CounterVec
	retrievals prometheus.Counter
	kept       prometheus.Counter
	latency    prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policyrag",
			Name:      "files_total",
			Help:      "PDF files processed by ingestion, by outcome.",
		}, []string{"status"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policyrag",
			Name:      "chunks_written_total",
			Help:      "Chunks written to the vector store, by chunk type.",
		}, []string{"type"}),
		retrievals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "policyrag",
			Name:      "retrievals_total",
			Help:      "Retrieval requests served.",
		}),
		kept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "policyrag",
			Name:      "retrieval_results_kept_total",
			Help:      "Retrieved chunks that cleared the similarity threshold.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "policyrag",
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieval latency including query embedding.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.files, m.chunks, m.retrievals, m.kept, m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) FileProcessed(status string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(status).Inc()
}

func (m *Metrics) ChunksWritten(chunkType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunks.WithLabelValues(chunkType).Add(float64(n))
}

func (m *Metrics) ObserveRetrieval(d time.Duration, kept int) {
	if m == nil {
		return
	}
	m.retrievals.Inc()
	m.kept.Add(float64(kept))
	m.latency.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
