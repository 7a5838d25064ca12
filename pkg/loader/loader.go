// Package loader runs the two-phase load: every record becomes a node first,
// then every reference becomes an edge.
package loader

import (
	"context"

	"github.com/athapong/stix2graph/pkg/config"
	"github.com/athapong/stix2graph/pkg/graph"
	"github.com/athapong/stix2graph/pkg/graph/builder"
	"github.com/athapong/stix2graph/pkg/graph/metrics"
	"github.com/athapong/stix2graph/pkg/graph/storage"
	"github.com/athapong/stix2graph/pkg/stix"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	phaseNodes         = "nodes"
	phaseRelationships = "relationships"
)

// Summary reports what a load created and skipped.
type Summary struct {
	Records      int `json:"records"`
	Nodes        int `json:"nodes"`
	NodeFailures int `json:"node_failures"`
	Edges        int `json:"edges"`
	EdgeFailures int `json:"edge_failures"`
	Unresolved   int `json:"unresolved"`
	Duplicates   int `json:"duplicates"`
}

// Fields returns the summary as log fields.
func (s Summary) Fields() logrus.Fields {
	return logrus.Fields{
		"records":       s.Records,
		"nodes":         s.Nodes,
		"node_failures": s.NodeFailures,
		"edges":         s.Edges,
		"edge_failures": s.EdgeFailures,
		"unresolved":    s.Unresolved,
		"duplicates":    s.Duplicates,
	}
}

// Loader owns the gateway for one process and builds with it.
type Loader struct {
	gw     *graph.Gateway
	newID  builder.IDGenerator
	logger logrus.FieldLogger
}

// New opens the configured store and wires the builders to it. Failing to
// open the store is the only hard error a load can produce.
func New(ctx context.Context, cfg config.StoreConfig, logger logrus.FieldLogger) (*Loader, error) {
	store, err := storage.OpenStore(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "graph store unavailable")
	}
	return NewWithStore(store, logger, nil), nil
}

// NewWithStore wires the builders to an already opened store. A nil
// generator uses builder.NewUUIDGenerator.
func NewWithStore(store graph.Store, logger logrus.FieldLogger, newID builder.IDGenerator) *Loader {
	if newID == nil {
		newID = builder.NewUUIDGenerator()
	}
	gw := graph.NewGateway(store, logger)
	return &Loader{
		gw:     gw,
		newID:  newID,
		logger: gw.Logger(),
	}
}

// Load creates the nodes of all records in input order, then their
// relationships in input order. Per-record failures are logged and counted,
// never returned.
func (l *Loader) Load(ctx context.Context, records []stix.Record) Summary {
	var stats builder.Stats
	nodes, relationships := l.builders(&stats)
	summary := Summary{Records: len(records)}

	seen := mapset.NewThreadUnsafeSet[string]()
	l.phase(phaseNodes, len(records), func() {
		for _, rec := range records {
			if !seen.Add(rec.RecordID()) {
				summary.Duplicates++
				l.logger.WithField("record_id", rec.RecordID()).Warn("Duplicate record identifier in input")
			}
			nodes.Build(ctx, rec)
		}
	})

	l.phase(phaseRelationships, len(records), func() {
		for _, rec := range records {
			relationships.Build(ctx, rec)
		}
	})

	summary.Nodes = stats.Nodes
	summary.NodeFailures = stats.NodeFailures
	summary.Edges = stats.Edges
	summary.EdgeFailures = stats.EdgeFailures
	summary.Unresolved = stats.Unresolved
	return summary
}

// LoadOne runs both phases for a single record. Its references resolve only
// against records that are already in the store.
func (l *Loader) LoadOne(ctx context.Context, rec stix.Record) Summary {
	return l.Load(ctx, []stix.Record{rec})
}

// Snapshot exports the store content when the backend supports it.
func (l *Loader) Snapshot() (*graph.KnowledgeGraphData, bool) {
	return l.gw.Snapshot()
}

// Close releases the graph store. Calling it more than once is a no-op.
func (l *Loader) Close() error {
	return l.gw.Close()
}

// builders returns builders counting into stats.
func (l *Loader) builders(stats *builder.Stats) (*builder.NodeBuilder, *builder.RelationshipBuilder) {
	embedded := builder.NewEmbeddedBuilder(l.gw, l.newID, stats)
	return builder.NewNodeBuilder(l.gw, embedded, stats), builder.NewRelationshipBuilder(l.gw, stats)
}

func (l *Loader) phase(name string, records int, run func()) {
	l.logger.WithFields(logrus.Fields{
		"phase":   name,
		"records": records,
	}).Info("Starting load phase")

	timer := prometheus.NewTimer(metrics.PhaseDuration.WithLabelValues(name))
	run()
	elapsed := timer.ObserveDuration()

	metrics.RecordsLoaded.WithLabelValues(name).Add(float64(records))
	l.logger.WithFields(logrus.Fields{
		"phase":    name,
		"duration": elapsed.String(),
	}).Info("Load phase completed")
}
