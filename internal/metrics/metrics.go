package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives the events of the finance service.
type Recorder interface {
	MutationSettled(operation, outcome string, elapsed time.Duration)
	Rollback(collection string)
	SummaryLookup(hit bool)
	StoreFetch(collection string, err error)
	PendingOps(collection string, n int)
}

// Metrics records to Prometheus collectors.
type Metrics struct {
	mutationsTotal   *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	rollbacksTotal   *prometheus.CounterVec
	summaryLookups   *prometheus.CounterVec
	storeFetches     *prometheus.CounterVec
	pendingOps       *prometheus.GaugeVec
}

var _ Recorder = (*Metrics)(nil)

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// to expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		mutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_mutations_total",
				Help: "Total number of settled mutations",
			},
			[]string{"operation", "outcome"},
		),
		mutationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fintrack_mutation_settle_duration_milliseconds",
				Help:    "Time from optimistic apply to settlement in milliseconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"operation"},
		),
		rollbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_rollbacks_total",
				Help: "Total number of optimistic changes rolled back",
			},
			[]string{"collection"},
		),
		summaryLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_summary_cache_lookups_total",
				Help: "Monthly summary cache lookups by result",
			},
			[]string{"result"},
		),
		storeFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_store_fetches_total",
				Help: "Collection fetches from the ledger store",
			},
			[]string{"collection", "status"},
		),
		pendingOps: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fintrack_pending_mutations",
				Help: "Optimistic mutations waiting for their store write",
			},
			[]string{"collection"},
		),
	}
}

func (m *Metrics) MutationSettled(operation, outcome string, elapsed time.Duration) {
	m.mutationsTotal.WithLabelValues(operation, outcome).Inc()
	m.mutationDuration.WithLabelValues(operation).Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) Rollback(collection string) {
	m.rollbacksTotal.WithLabelValues(collection).Inc()
}

func (m *Metrics) SummaryLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.summaryLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) StoreFetch(collection string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.storeFetches.WithLabelValues(collection, status).Inc()
}

func (m *Metrics) PendingOps(collection string, n int) {
	m.pendingOps.WithLabelValues(collection).Set(float64(n))
}

// Noop discards every event.
type Noop struct{}

var _ Recorder = Noop{}

func (Noop) MutationSettled(string, string, time.Duration) {}
func (Noop) Rollback(string)                              {}
func (Noop) SummaryLookup(bool)                           {}
func (Noop) StoreFetch(string, error)                     {}
func (Noop) PendingOps(string, int)                       {}
