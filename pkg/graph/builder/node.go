package builder

import (
	"context"

	"github.com/athapong/stix2graph/pkg/graph"
	"github.com/athapong/stix2graph/pkg/graph/metrics"
	"github.com/athapong/stix2graph/pkg/stix"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// NodeBuilder creates one indexed node per record and hands the record's
// embedded collections to the EmbeddedBuilder.
type NodeBuilder struct {
	gw       *graph.Gateway
	embedded *EmbeddedBuilder
	stats    *Stats
	logger   logrus.FieldLogger
}

// NewNodeBuilder creates a node builder sharing stats with embedded.
func NewNodeBuilder(gw *graph.Gateway, embedded *EmbeddedBuilder, stats *Stats) *NodeBuilder {
	if stats == nil {
		stats = embedded.stats
	}
	return &NodeBuilder{
		gw:       gw,
		embedded: embedded,
		stats:    stats,
		logger:   gw.Logger(),
	}
}

// Build creates the node for rec, indexes it under the record identifier and
// then builds its embedded entities. A failed node is logged and skipped.
func (b *NodeBuilder) Build(ctx context.Context, rec stix.Record) (graph.NodeRef, bool) {
	log := b.logger.WithFields(logrus.Fields{
		"record_id": rec.RecordID(),
		"kind":      rec.Kind(),
	})

	ids := b.embedded.Plan(rec)
	props := Properties(rec, ids)

	ref, ok := graph.WithTransaction(ctx, b.gw, "create_node", func(tx graph.Tx) (graph.NodeRef, error) {
		if rec.RecordID() == "" {
			return 0, errors.New("record has no identifier")
		}
		label, err := graph.NewLabel(rec.Kind())
		if err != nil {
			return 0, err
		}
		ref, err := tx.CreateNode(label, props)
		if err != nil {
			return 0, err
		}
		if err := tx.Index(rec.RecordID(), ref); err != nil {
			return 0, err
		}
		return ref, nil
	})
	if !ok {
		log.Error("Skipping record, node not created")
		b.stats.NodeFailures++
		return 0, false
	}

	b.stats.Nodes++
	metrics.NodesCreated.WithLabelValues(rec.Kind()).Inc()
	log.WithField("node", ref).Debug("Created node")

	b.embedded.Build(ctx, ref, rec, ids)
	return ref, true
}

// Properties returns the property bag of rec's node. Optional fields are
// defaulted to "" or an empty list, and every embedded collection is
// represented by the list of its planned synthetic ids.
func Properties(rec stix.Record, ids CollectionIDs) graph.Properties {
	props := graph.Properties{}

	switch r := rec.(type) {
	case *stix.DomainObject:
		fields, lists := stix.NormalizeFields(r.Kind(), r.Fields, r.Lists)
		putFields(props, fields, lists)
		props["object_refs"] = stix.Strings(r.ObjectRefs)
		props["kill_chain_phases"] = stix.Strings(ids.KillChainPhases)
	case *stix.ObservableObject:
		fields, lists := stix.NormalizeFields(r.Kind(), r.Fields, r.Lists)
		putFields(props, fields, lists)
		props["hashes"] = stix.Strings(ids.Hashes)
	case *stix.RelationshipObject:
		props["relationship_type"] = r.RelationshipType
		props["description"] = r.Description
		props["source_ref"] = r.SourceRef
		props["target_ref"] = r.TargetRef
		props["start_time"] = r.StartTime
		props["stop_time"] = r.StopTime
	case *stix.SightingObject:
		props["description"] = r.Description
		props["first_seen"] = r.FirstSeen
		props["last_seen"] = r.LastSeen
		props["count"] = stix.Int(r.Count)
		props["sighting_of_ref"] = r.SightingOfRef
		props["observed_data_refs"] = stix.Strings(r.ObservedDataRefs)
		props["where_sighted_refs"] = stix.Strings(r.WhereSightedRefs)
		props["summary"] = stix.Bool(r.Summary)
	case *stix.MarkingDefinition:
		props["name"] = r.Name
		props["definition_type"] = r.DefinitionType
		props["marking_object"] = ids.MarkingObject
	case *stix.LanguageContent:
		props["object_ref"] = r.ObjectRef
		props["object_modified"] = r.ObjectModified
		props["contents"] = stix.Strings(ids.Contents)
	}

	base := rec.Base()
	props["id"] = base.ID
	props["type"] = base.Type
	props["spec_version"] = base.SpecVersion
	props["created"] = base.Created
	props["modified"] = base.Modified
	props["created_by_ref"] = base.CreatedByRef
	props["revoked"] = stix.Bool(base.Revoked)
	props["confidence"] = stix.Int(base.Confidence)
	props["lang"] = base.Lang
	props["labels"] = stix.Strings(base.Labels)
	props["object_marking_refs"] = stix.Strings(base.ObjectMarkingRefs)
	props["external_references"] = stix.Strings(ids.ExternalReferences)
	props["granular_markings"] = stix.Strings(ids.GranularMarkings)
	return props
}

func putFields(props graph.Properties, fields map[string]string, lists map[string][]string) {
	for k, v := range fields {
		props[k] = v
	}
	for k, v := range lists {
		props[k] = v
	}
}
