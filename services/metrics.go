package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bündelt die Prometheus-Kollektoren von Sampler und Generator.
type Metrics struct {
	QueriedIDs     prometheus.Counter
	NewNodes       prometheus.Counter
	ReferenceEdges prometheus.Counter
	DeferredIDs    prometheus.Counter
	SkippedIDs     prometheus.Counter
	SourceRetries  prometheus.Counter
	RelationEdges  *prometheus.GaugeVec
	RunDuration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueriedIDs: f.NewCounter(prometheus.CounterOpts{
			Name: "citnet_sampler_queried_ids_total",
			Help: "Identifiers looked up at the record source.",
		}),
		NewNodes: f.NewCounter(prometheus.CounterOpts{
			Name: "citnet_sampler_new_nodes_total",
			Help: "Nodes inserted by seeding or expansion.",
		}),
		ReferenceEdges: f.NewCounter(prometheus.CounterOpts{
			Name: "citnet_sampler_reference_edges_total",
			Help: "Reference edges inserted.",
		}),
		DeferredIDs: f.NewCounter(prometheus.CounterOpts{
			Name: "citnet_sampler_deferred_ids_total",
			Help: "Identifiers left unprocessed after exhausted retries.",
		}),
		SkippedIDs: f.NewCounter(prometheus.CounterOpts{
			Name: "citnet_sampler_skipped_ids_total",
			Help: "Identifiers the record source does not know.",
		}),
		SourceRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "citnet_source_retries_total",
			Help: "Retried record source requests.",
		}),
		RelationEdges: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "citnet_relation_edges",
			Help: "Edges in the last generated set per relation.",
		}, []string{"relation"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "citnet_run_duration_seconds",
			Help:    "Duration of seed, expand, generate and cluster runs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 8),
		}, []string{"operation"}),
	}
}
