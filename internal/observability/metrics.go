package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the upload service.
type Metrics struct {
	SessionsTotal      *prometheus.CounterVec
	ChunksReceived     *prometheus.CounterVec
	ChunkWriteDuration prometheus.Histogram
	ActiveSessions     prometheus.Gauge
	FinalizationTotal  *prometheus.CounterVec
	FinalizationDur    prometheus.Histogram
	JanitorSweeps      *prometheus.CounterVec
	JanitorReaped      *prometheus.CounterVec
	ArchiveAttempts    *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of upload sessions created",
			},
			[]string{"outcome"},
		),
		ChunksReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_received_total",
				Help:      "Total number of chunks received",
			},
			[]string{"outcome"},
		),
		ChunkWriteDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chunk_write_duration_seconds",
				Help:      "Duration of chunk write-to-disk calls",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		),
		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of sessions currently in UPLOADING or PROCESSING",
			},
		),
		FinalizationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "finalization_total",
				Help:      "Total number of finalization attempts",
			},
			[]string{"outcome"},
		),
		FinalizationDur: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "finalization_duration_seconds",
				Help:      "Duration of try_finalize calls that actually assembled a file",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		JanitorSweeps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "janitor_sweeps_total",
				Help:      "Total number of janitor sweep ticks",
			},
			[]string{"sweep"},
		),
		JanitorReaped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "janitor_reaped_total",
				Help:      "Total number of sessions/scratch files reaped by the janitor",
			},
			[]string{"kind"},
		),
		ArchiveAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_attempts_total",
				Help:      "Total number of best-effort archival upload attempts",
			},
			[]string{"outcome"},
		),
	}
}

// RecordSession records the outcome of an init call ("created", "resumed" or "rejected").
func (m *Metrics) RecordSession(outcome string) {
	m.SessionsTotal.WithLabelValues(outcome).Inc()
}

// RecordChunk records the outcome of a receive_chunk call.
func (m *Metrics) RecordChunk(outcome string) {
	m.ChunksReceived.WithLabelValues(outcome).Inc()
}

// ObserveChunkWrite records how long a chunk write-to-disk call took.
func (m *Metrics) ObserveChunkWrite(seconds float64) {
	m.ChunkWriteDuration.Observe(seconds)
}

// RecordFinalization records the outcome of a try_finalize call.
func (m *Metrics) RecordFinalization(outcome string, seconds float64) {
	m.FinalizationTotal.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		m.FinalizationDur.Observe(seconds)
	}
}

// RecordJanitorSweep records one janitor tick for the given sweep name.
func (m *Metrics) RecordJanitorSweep(sweep string) {
	m.JanitorSweeps.WithLabelValues(sweep).Inc()
}

// RecordJanitorReap records one reaped item of the given kind ("session" or "scratch_file").
func (m *Metrics) RecordJanitorReap(kind string) {
	m.JanitorReaped.WithLabelValues(kind).Inc()
}

// RecordArchiveAttempt records the outcome of a best-effort archival upload.
func (m *Metrics) RecordArchiveAttempt(outcome string) {
	m.ArchiveAttempts.WithLabelValues(outcome).Inc()
}

// IncrementActiveSessions increments the active sessions gauge.
func (m *Metrics) IncrementActiveSessions() {
	m.ActiveSessions.Inc()
}

// DecrementActiveSessions decrements the active sessions gauge.
func (m *Metrics) DecrementActiveSessions() {
	m.ActiveSessions.Dec()
}
