// Package metrics defines the Prometheus collectors for index builds and
// exposes an HTTP handler for scraping while a long build runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the builder. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	DocsIndexedTotal     prometheus.Counter
	WordsIndexedTotal    prometheus.Counter
	SegmentsWrittenTotal *prometheus.CounterVec
	SegmentBytesTotal    prometheus.Counter
	MergesTotal          *prometheus.CounterVec
	PendingSegments      prometheus.Gauge
	BuildsTotal          *prometheus.CounterVec
	BuildDuration        *prometheus.HistogramVec
}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "indexer_docs_indexed_total",
				Help: "Total documents turned into in-memory indexes.",
			},
		),
		WordsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "indexer_words_indexed_total",
				Help: "Total tokens folded into in-memory indexes.",
			},
		),
		SegmentsWrittenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_segments_written_total",
				Help: "Segment files written, by origin (flush or merge).",
			},
			[]string{"origin"},
		),
		SegmentBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "indexer_segment_bytes_written_total",
				Help: "Bytes written to segment files.",
			},
		),
		MergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_merges_total",
				Help: "k-way merges performed, by output level.",
			},
			[]string{"level"},
		),
		PendingSegments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexer_pending_segments",
				Help: "Segment files waiting in the merge levels.",
			},
		),
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_builds_total",
				Help: "Completed builds by mode and status.",
			},
			[]string{"mode", "status"},
		),
		BuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indexer_build_duration_seconds",
				Help:    "Wall-clock duration of a build.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"mode"},
		),
	}

	reg.MustRegister(
		m.DocsIndexedTotal,
		m.WordsIndexedTotal,
		m.SegmentsWrittenTotal,
		m.SegmentBytesTotal,
		m.MergesTotal,
		m.PendingSegments,
		m.BuildsTotal,
		m.BuildDuration,
	)

	return m
}

func (m *Metrics) ObserveDocument(words int64) {
	if m == nil {
		return
	}
	m.DocsIndexedTotal.Inc()
	m.WordsIndexedTotal.Add(float64(words))
}

func (m *Metrics) ObserveSegment(origin string, bytes int64) {
	if m == nil {
		return
	}
	m.SegmentsWrittenTotal.WithLabelValues(origin).Inc()
	m.SegmentBytesTotal.Add(float64(bytes))
}

func (m *Metrics) ObserveMerge(level int) {
	if m == nil {
		return
	}
	m.MergesTotal.WithLabelValues(strconv.Itoa(level)).Inc()
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingSegments.Set(float64(n))
}

func (m *Metrics) ObserveBuild(mode string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.BuildsTotal.WithLabelValues(mode, status).Inc()
	m.BuildDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape HTTP handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
