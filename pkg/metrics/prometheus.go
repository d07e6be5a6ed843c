package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetchTotal      *prometheus.CounterVec
	rateLimitHits   *prometheus.CounterVec
	backoffSeconds  *prometheus.CounterVec
	tickersTotal    *prometheus.CounterVec
	partitionWrites *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	runStatus       *prometheus.GaugeVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		fetchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpipe_fetch_attempts_total",
				Help: "Provider fetch attempts by result",
			},
			[]string{"provider", "result"},
		),
		rateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpipe_rate_limit_hits_total",
				Help: "Rate limit responses received from providers",
			},
			[]string{"provider"},
		),
		backoffSeconds: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpipe_backoff_seconds_total",
				Help: "Seconds spent backing off after provider failures",
			},
			[]string{"provider"},
		),
		tickersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpipe_tickers_total",
				Help: "Tickers handled per stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		partitionWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpipe_partition_writes_total",
				Help: "History partition writes by result",
			},
			[]string{"result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpipe_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockpipe_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"operation"},
		),
		runStatus: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockpipe_last_run_status",
				Help: "1 for the status of the last run of each stage, 0 otherwise",
			},
			[]string{"stage", "status"},
		),
	}
}

// RecordFetch records one provider attempt.
func (r *Recorder) RecordFetch(provider, result string) {
	r.fetchTotal.WithLabelValues(provider, result).Inc()
}

func (r *Recorder) RecordRateLimitHit(provider string) {
	r.rateLimitHits.WithLabelValues(provider).Inc()
}

func (r *Recorder) RecordBackoff(provider string, seconds float64) {
	r.backoffSeconds.WithLabelValues(provider).Add(seconds)
}

// RecordTicker records a ticker outcome for a stage.
func (r *Recorder) RecordTicker(stage, outcome string) {
	r.tickersTotal.WithLabelValues(stage, outcome).Inc()
}

func (r *Recorder) RecordPartitionWrite(result string) {
	r.partitionWrites.WithLabelValues(result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordRunStatus flips the status gauge of stage to status.
func (r *Recorder) RecordRunStatus(stage, status string) {
	for _, s := range []string{"success", "partial", "failed", "terminated", "skipped"} {
		v := 0.0
		if s == status {
			v = 1
		}
		r.runStatus.WithLabelValues(stage, s).Set(v)
	}
}

// Nop discards everything. Used in tests and dry runs.
type Nop struct{}

func (Nop) RecordFetch(string, string)     {}
func (Nop) RecordRateLimitHit(string)      {}
func (Nop) RecordBackoff(string, float64)  {}
func (Nop) RecordTicker(string, string)    {}
func (Nop) RecordPartitionWrite(string)    {}
func (Nop) RecordError(string)             {}
func (Nop) RecordLatency(string, float64)  {}
func (Nop) RecordRunStatus(string, string) {}
