package builder

import (
	"context"
	"sort"
	"strings"

	"github.com/athapong/stix2graph/pkg/graph"
	"github.com/athapong/stix2graph/pkg/graph/metrics"
	"github.com/athapong/stix2graph/pkg/stix"
	"github.com/sirupsen/logrus"
)

// RelationshipBuilder draws the edges implied by a record's reference fields.
// It must run after every node of the load exists.
type RelationshipBuilder struct {
	gw     *graph.Gateway
	stats  *Stats
	logger logrus.FieldLogger
}

// NewRelationshipBuilder creates a relationship builder.
func NewRelationshipBuilder(gw *graph.Gateway, stats *Stats) *RelationshipBuilder {
	if stats == nil {
		stats = &Stats{}
	}
	return &RelationshipBuilder{
		gw:     gw,
		stats:  stats,
		logger: gw.Logger(),
	}
}

// Build creates every edge rec's reference fields call for and returns how
// many were created.
func (b *RelationshipBuilder) Build(ctx context.Context, rec stix.Record) int {
	id := rec.RecordID()
	base := rec.Base()
	created := 0

	link := func(fromID, toID, relation string, props graph.Properties) {
		if b.Link(ctx, fromID, toID, relation, props) {
			created++
		}
	}
	linkAll := func(toIDs []string, relation string) {
		for _, to := range toIDs {
			link(id, to, relation, nil)
		}
	}

	if base.CreatedByRef != "" {
		link(id, base.CreatedByRef, RelCreatedBy, nil)
	}
	linkAll(base.ObjectMarkingRefs, RelHasMarking)

	switch r := rec.(type) {
	case *stix.DomainObject:
		linkAll(r.ObjectRefs, RelRefersTo)
		created += b.genericRefs(ctx, id, r.Fields, r.Lists)
	case *stix.ObservableObject:
		created += b.genericRefs(ctx, id, r.Fields, r.Lists)
	case *stix.RelationshipObject:
		link(r.SourceRef, r.TargetRef, r.RelationshipType, graph.Properties{
			"id":          r.ID,
			"description": r.Description,
			"start_time":  r.StartTime,
			"stop_time":   r.StopTime,
		})
	case *stix.SightingObject:
		if r.SightingOfRef != "" {
			link(id, r.SightingOfRef, RelSightingOf, nil)
		}
		linkAll(r.ObservedDataRefs, RelObservedData)
		linkAll(r.WhereSightedRefs, RelWhereSighted)
	case *stix.LanguageContent:
		if r.ObjectRef != "" {
			link(id, r.ObjectRef, RelLanguageContentOf, nil)
		}
	case *stix.MarkingDefinition:
	}
	return created
}

// genericRefs links kind-specific "<name>_ref" and "<name>_refs" fields with
// the relation NAME, visiting fields in name order.
func (b *RelationshipBuilder) genericRefs(ctx context.Context, id string, fields map[string]string, lists map[string][]string) int {
	created := 0
	for _, name := range sortedKeys(fields) {
		if !strings.HasSuffix(name, "_ref") || fields[name] == "" {
			continue
		}
		if b.Link(ctx, id, fields[name], RefRelation(name), nil) {
			created++
		}
	}
	for _, name := range sortedKeys(lists) {
		if !strings.HasSuffix(name, "_refs") {
			continue
		}
		relation := RefRelation(name)
		for _, to := range lists[name] {
			if b.Link(ctx, id, to, relation, nil) {
				created++
			}
		}
	}
	return created
}

// Link resolves both identifiers through the index and creates a relation
// edge between them in one transaction. An unresolved endpoint skips the
// edge.
func (b *RelationshipBuilder) Link(ctx context.Context, fromID, toID, relation string, props graph.Properties) bool {
	log := b.logger.WithFields(logrus.Fields{
		"from":     fromID,
		"to":       toID,
		"relation": relation,
	})

	from, ok := b.gw.Lookup(ctx, fromID)
	if !ok {
		b.unresolved(log, relation, fromID)
		return false
	}
	to, ok := b.gw.Lookup(ctx, toID)
	if !ok {
		b.unresolved(log, relation, toID)
		return false
	}

	_, ok = graph.WithTransaction(ctx, b.gw, "create_relationship", func(tx graph.Tx) (struct{}, error) {
		relType, err := graph.NewRelType(relation)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, tx.CreateRelationship(from, to, relType, props)
	})
	if !ok {
		log.Error("Failed to create relationship")
		b.stats.EdgeFailures++
		return false
	}

	b.stats.Edges++
	metrics.EdgesCreated.WithLabelValues(relation).Inc()
	return true
}

func (b *RelationshipBuilder) unresolved(log logrus.FieldLogger, relation, id string) {
	log.WithField("missing", id).Warn("Reference not found in identifier index, skipping edge")
	b.stats.Unresolved++
	metrics.UnresolvedReferences.WithLabelValues(relation).Inc()
}

// RefRelation derives a relation name from a reference field name:
// "sample_refs" becomes "SAMPLE", "parent_directory_ref" becomes
// "PARENT_DIRECTORY".
func RefRelation(field string) string {
	name := strings.TrimSuffix(strings.TrimSuffix(field, "_refs"), "_ref")
	return strings.ToUpper(name)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
