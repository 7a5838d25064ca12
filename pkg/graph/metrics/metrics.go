package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Graph metrics
	NodesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stix2graph_nodes_created_total",
			Help: "Number of graph nodes committed",
		},
		[]string{"label"},
	)

	EdgesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stix2graph_edges_created_total",
			Help: "Number of graph relationships committed",
		},
		[]string{"type"},
	)

	TransactionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stix2graph_transaction_failures_total",
			Help: "Number of rolled back graph transactions",
		},
		[]string{"op"},
	)

	UnresolvedReferences = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stix2graph_unresolved_references_total",
			Help: "Number of references skipped because an endpoint was not indexed",
		},
		[]string{"relation"},
	)

	// Loader metrics
	RecordsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stix2graph_records_total",
			Help: "Number of records processed per phase",
		},
		[]string{"phase"},
	)

	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "stix2graph_phase_duration_seconds",
			Help: "Time spent in each load phase",
		},
		[]string{"phase"},
	)
)
