package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RankingRecomputes    *prometheus.CounterVec
	RankingDuration      prometheus.Histogram
	RankingStaleDiscards prometheus.Counter
	ActiveWorkers        prometheus.Gauge
	MembershipChanges    *prometheus.CounterVec
	EventsIngested       *prometheus.CounterVec
	KafkaMessages        *prometheus.CounterVec
	RankingCacheLookups  *prometheus.CounterVec
}

// New registers collectors on reg. Passing nil uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RankingRecomputes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_ranking_recomputes_total",
			Help: "Total number of ranking recomputations",
		}, []string{"result"}),
		RankingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "contest_ranking_compute_seconds",
			Help:    "Time spent computing one ranking snapshot",
			Buckets: prometheus.DefBuckets,
		}),
		RankingStaleDiscards: factory.NewCounter(prometheus.CounterOpts{
			Name: "contest_ranking_stale_discards_total",
			Help: "Snapshots dropped because the contest changed during computation",
		}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "contest_ranking_workers",
			Help: "Number of running per-contest ranking workers",
		}),
		MembershipChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_membership_changes_total",
			Help: "Join and leave attempts by outcome",
		}, []string{"operation", "outcome"}),
		EventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_submission_events_total",
			Help: "Graded submission events received by source and outcome",
		}, []string{"source", "outcome"}),
		KafkaMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_messages_processed_total",
			Help: "Total number of Kafka messages processed",
		}, []string{"topic", "status"}),
		RankingCacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_ranking_cache_lookups_total",
			Help: "Final ranking cache lookups by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncRecompute(result string) {
	m.RankingRecomputes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveCompute(seconds float64) {
	m.RankingDuration.Observe(seconds)
}

func (m *Metrics) IncStaleDiscard() {
	m.RankingStaleDiscards.Inc()
}

func (m *Metrics) IncWorkers() {
	m.ActiveWorkers.Inc()
}

func (m *Metrics) DecWorkers() {
	m.ActiveWorkers.Dec()
}

func (m *Metrics) IncMembership(operation, outcome string) {
	m.MembershipChanges.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) IncEvent(source, outcome string) {
	m.EventsIngested.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) IncKafkaMessage(topic, status string) {
	m.KafkaMessages.WithLabelValues(topic, status).Inc()
}

func (m *Metrics) IncCacheLookup(result string) {
	m.RankingCacheLookups.WithLabelValues(result).Inc()
}
