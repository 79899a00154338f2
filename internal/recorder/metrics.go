package recorder

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons reported by the frames_dropped_total counter.
const (
	DropStale    = "stale"
	DropNoClient = "no_client"
	DropError    = "error"
)

// Export results reported by the exports_total counter.
const (
	ExportWritten = "written"
	ExportSkipped = "skipped"
	ExportFailed  = "failed"
)

// Metrics are the recorder's Prometheus instruments. All methods tolerate a
// nil receiver so metrics stay optional.
type Metrics struct {
	sessionsStarted   prometheus.Counter
	framesRecorded    prometheus.Counter
	framesDropped     *prometheus.CounterVec
	segmentsFinalized prometheus.Counter
	exports           *prometheus.CounterVec
	activeClients     prometheus.Gauge
	errors            *prometheus.CounterVec
}

// NewMetrics creates the recorder metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jamrec",
			Subsystem: "recorder",
			Name:      "sessions_started_total",
			Help:      "Recording sessions started",
		}),
		framesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jamrec",
			Subsystem: "recorder",
			Name:      "frames_recorded_total",
			Help:      "Audio frames written to client recordings",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jamrec",
			Subsystem: "recorder",
			Name:      "frames_dropped_total",
			Help:      "Audio frames not written, by reason",
		}, []string{"reason"}),
		segmentsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jamrec",
			Subsystem: "recorder",
			Name:      "segments_finalized_total",
			Help:      "Client recording segments closed into track items",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jamrec",
			Subsystem: "recorder",
			Name:      "exports_total",
			Help:      "Project file exports, by format and result",
		}, []string{"format", "result"}),
		activeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jamrec",
			Subsystem: "recorder",
			Name:      "active_clients",
			Help:      "Client recordings currently open",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jamrec",
			Subsystem: "recorder",
			Name:      "errors_total",
			Help:      "Recording errors, by operation",
		}, []string{"op"}),
	}

	reg.MustRegister(
		m.sessionsStarted,
		m.framesRecorded,
		m.framesDropped,
		m.segmentsFinalized,
		m.exports,
		m.activeClients,
		m.errors,
	)
	return m
}

func (m *Metrics) sessionStarted() {
	if m != nil {
		m.sessionsStarted.Inc()
	}
}

func (m *Metrics) frameRecorded() {
	if m != nil {
		m.framesRecorded.Inc()
	}
}

func (m *Metrics) frameDropped(reason string) {
	if m != nil {
		m.framesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) segmentFinalized() {
	if m != nil {
		m.segmentsFinalized.Inc()
	}
}

func (m *Metrics) exported(format, result string) {
	if m != nil {
		m.exports.WithLabelValues(format, result).Inc()
	}
}

func (m *Metrics) setActiveClients(n int) {
	if m != nil {
		m.activeClients.Set(float64(n))
	}
}

func (m *Metrics) failed(op string) {
	if m != nil {
		m.errors.WithLabelValues(op).Inc()
	}
}
