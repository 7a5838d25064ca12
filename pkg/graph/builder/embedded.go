package builder

import (
	"context"

	"github.com/athapong/stix2graph/pkg/graph"
	"github.com/athapong/stix2graph/pkg/graph/metrics"
	"github.com/athapong/stix2graph/pkg/stix"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CollectionIDs holds the synthetic identifiers planned for a record's
// embedded collections, one per item and in item order.
type CollectionIDs struct {
	ExternalReferences []string
	KillChainPhases    []string
	GranularMarkings   []string
	Hashes             []string
	Contents           []string
	MarkingObject      string
}

// EmbeddedBuilder materializes nested collections as child nodes wired to
// their parent. Every item is created in its own transaction; a failed item
// is logged and does not affect its siblings.
type EmbeddedBuilder struct {
	gw     *graph.Gateway
	newID  IDGenerator
	stats  *Stats
	logger logrus.FieldLogger
}

// NewEmbeddedBuilder creates an embedded-entity builder. A nil generator
// uses NewUUIDGenerator.
func NewEmbeddedBuilder(gw *graph.Gateway, newID IDGenerator, stats *Stats) *EmbeddedBuilder {
	if newID == nil {
		newID = NewUUIDGenerator()
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &EmbeddedBuilder{
		gw:     gw,
		newID:  newID,
		stats:  stats,
		logger: gw.Logger(),
	}
}

// Plan generates the synthetic identifiers for every collection rec carries.
func (b *EmbeddedBuilder) Plan(rec stix.Record) CollectionIDs {
	base := rec.Base()
	ids := CollectionIDs{
		ExternalReferences: b.newID.IDs(LabelExternalReference, len(base.ExternalReferences)),
		GranularMarkings:   b.newID.IDs(LabelGranularMarking, len(base.GranularMarkings)),
	}
	switch r := rec.(type) {
	case *stix.DomainObject:
		ids.KillChainPhases = b.newID.IDs(LabelKillChainPhase, len(r.KillChainPhases))
	case *stix.ObservableObject:
		ids.Hashes = b.newID.IDs(LabelHashes, len(r.Hashes))
	case *stix.LanguageContent:
		ids.Contents = b.newID.IDs(LabelContents, len(r.Contents))
	case *stix.MarkingDefinition:
		if r.Definition != nil {
			ids.MarkingObject = b.newID(LabelMarkingObject)
		}
	case *stix.RelationshipObject, *stix.SightingObject:
	}
	return ids
}

// Build creates the children of every collection rec carries under parent,
// consuming ids positionally.
func (b *EmbeddedBuilder) Build(ctx context.Context, parent graph.NodeRef, rec stix.Record, ids CollectionIDs) {
	base := rec.Base()
	b.ExternalReferences(ctx, parent, ids.ExternalReferences, base.ExternalReferences)
	b.GranularMarkings(ctx, parent, ids.GranularMarkings, base.GranularMarkings)

	switch r := rec.(type) {
	case *stix.DomainObject:
		b.KillChainPhases(ctx, parent, ids.KillChainPhases, r.KillChainPhases)
	case *stix.ObservableObject:
		b.Hashes(ctx, parent, ids.Hashes, r.Hashes)
	case *stix.LanguageContent:
		b.LanguageContents(ctx, parent, ids.Contents, r.Contents)
	case *stix.MarkingDefinition:
		b.MarkingObject(ctx, parent, ids.MarkingObject, r)
	case *stix.RelationshipObject, *stix.SightingObject:
	}
}

// BuildByID is Build for a parent known only by its record identifier. The
// parent is resolved through the identifier index first; if that fails the
// error is logged and nothing is created.
func (b *EmbeddedBuilder) BuildByID(ctx context.Context, parentID string, rec stix.Record, ids CollectionIDs) bool {
	parent, ok := b.gw.Lookup(ctx, parentID)
	if !ok {
		b.logger.WithFields(logrus.Fields{
			"record_id": parentID,
			"kind":      rec.Kind(),
		}).Error("Parent node not found in identifier index, skipping embedded entities")
		b.stats.Unresolved++
		return false
	}
	b.Build(ctx, parent, rec, ids)
	return true
}

// KillChainPhases creates one kill_chain_phase node per phase.
func (b *EmbeddedBuilder) KillChainPhases(ctx context.Context, parent graph.NodeRef, ids []string, phases []stix.KillChainPhase) int {
	if !b.matches("kill_chain_phases", ids, len(phases)) {
		return 0
	}
	created := 0
	for i, phase := range phases {
		props := graph.Properties{
			"kill_chain_phase_id": ids[i],
			"kill_chain_name":     phase.KillChainName,
			"phase_name":          phase.PhaseName,
		}
		if _, ok := b.createChild(ctx, parent, LabelKillChainPhase, RelHasKillChainPhase, props); ok {
			created++
		}
	}
	return created
}

// ExternalReferences creates one external_reference node per reference and
// then the hashes of each reference under it.
func (b *EmbeddedBuilder) ExternalReferences(ctx context.Context, parent graph.NodeRef, ids []string, refs []stix.ExternalReference) int {
	if !b.matches("external_references", ids, len(refs)) {
		return 0
	}
	created := 0
	for i, ref := range refs {
		hashIDs := b.newID.IDs(LabelHashes, len(ref.Hashes))
		props := graph.Properties{
			"external_reference_id": ids[i],
			"source_name":           ref.SourceName,
			"description":           ref.Description,
			"url":                   ref.URL,
			"external_id":           ref.ExternalID,
			"hashes":                hashIDs,
		}
		child, ok := b.createChild(ctx, parent, LabelExternalReference, RelHasExternalRef, props)
		if !ok {
			continue
		}
		created++
		if len(ref.Hashes) > 0 {
			b.Hashes(ctx, child, hashIDs, ref.Hashes)
		}
	}
	return created
}

// GranularMarkings creates one granular_marking node per marking.
func (b *EmbeddedBuilder) GranularMarkings(ctx context.Context, parent graph.NodeRef, ids []string, markings []stix.GranularMarking) int {
	if !b.matches("granular_markings", ids, len(markings)) {
		return 0
	}
	created := 0
	for i, gm := range markings {
		props := graph.Properties{
			"granular_marking_id": ids[i],
			"marking_ref":         gm.MarkingRef,
			"lang":                gm.Lang,
			"selectors":           stix.Strings(gm.Selectors),
		}
		if _, ok := b.createChild(ctx, parent, LabelGranularMarking, RelHasGranularMarking, props); ok {
			created++
		}
	}
	return created
}

// Hashes creates one hashes node per hash entry.
func (b *EmbeddedBuilder) Hashes(ctx context.Context, parent graph.NodeRef, ids []string, hashes []stix.Hash) int {
	if !b.matches("hashes", ids, len(hashes)) {
		return 0
	}
	created := 0
	for i, h := range hashes {
		props := graph.Properties{
			"hash_id": ids[i],
			"type":    h.Algorithm,
			"value":   h.Value,
		}
		if _, ok := b.createChild(ctx, parent, LabelHashes, RelHasHashes, props); ok {
			created++
		}
	}
	return created
}

// LanguageContents creates one contents node per language and, under it,
// one translations node per translated field.
func (b *EmbeddedBuilder) LanguageContents(ctx context.Context, parent graph.NodeRef, ids []string, blocks []stix.LanguageBlock) int {
	if !b.matches("contents", ids, len(blocks)) {
		return 0
	}
	created := 0
	for i, block := range blocks {
		translationIDs := b.newID.IDs(LabelTranslations, len(block.Translations))
		props := graph.Properties{
			"contents_id":  ids[i],
			"lang":         block.Lang,
			"translations": translationIDs,
		}
		child, ok := b.createChild(ctx, parent, LabelContents, RelHasContents, props)
		if !ok {
			continue
		}
		created++
		b.Translations(ctx, child, translationIDs, block.Translations)
	}
	return created
}

// Translations creates one translations node per translated field.
func (b *EmbeddedBuilder) Translations(ctx context.Context, parent graph.NodeRef, ids []string, translations []stix.Translation) int {
	if !b.matches("translations", ids, len(translations)) {
		return 0
	}
	created := 0
	for i, t := range translations {
		props := graph.Properties{
			"translation_id": ids[i],
			"field":          t.Field,
			"value":          t.Value,
		}
		if _, ok := b.createChild(ctx, parent, LabelTranslations, RelHasTranslation, props); ok {
			created++
		}
	}
	return created
}

// MarkingObject creates the marking_object node of a marking definition.
// Statement and TLP definitions both set exactly one "marking" property.
func (b *EmbeddedBuilder) MarkingObject(ctx context.Context, parent graph.NodeRef, id string, def *stix.MarkingDefinition) bool {
	var marking string
	switch m := def.Definition.(type) {
	case stix.StatementMarking:
		marking = m.Statement
	case stix.TLPMarking:
		marking = m.TLP
	case nil:
		return false
	default:
		b.logger.WithFields(logrus.Fields{
			"record_id": def.ID,
			"variant":   m,
		}).Error("Unsupported marking definition variant")
		return false
	}
	props := graph.Properties{
		"marking_id":      id,
		"marking":         marking,
		"definition_type": def.DefinitionType,
	}
	_, ok := b.createChild(ctx, parent, LabelMarkingObject, RelHasMarkingObject, props)
	return ok
}

// matches reports whether the planned ids line up with the collection.
func (b *EmbeddedBuilder) matches(collection string, ids []string, n int) bool {
	if len(ids) == n {
		return true
	}
	b.logger.WithError(ErrIDCountMismatch).WithFields(logrus.Fields{
		"collection": collection,
		"ids":        len(ids),
		"items":      n,
	}).Error("Skipping embedded collection")
	b.stats.NodeFailures += n
	return false
}

// createChild creates a node and the edge from parent to it in one
// transaction.
func (b *EmbeddedBuilder) createChild(ctx context.Context, parent graph.NodeRef, label, relation string, props graph.Properties) (graph.NodeRef, bool) {
	child, ok := graph.WithTransaction(ctx, b.gw, "create_"+label, func(tx graph.Tx) (graph.NodeRef, error) {
		l, err := graph.NewLabel(label)
		if err != nil {
			return 0, err
		}
		rt, err := graph.NewRelType(relation)
		if err != nil {
			return 0, err
		}
		ref, err := tx.CreateNode(l, props)
		if err != nil {
			return 0, err
		}
		if err := tx.CreateRelationship(parent, ref, rt, nil); err != nil {
			return 0, errors.Wrapf(err, "wire %s to parent", label)
		}
		return ref, nil
	})
	if !ok {
		b.logger.WithFields(logrus.Fields{
			"collection": label,
			"parent":     parent,
		}).Error("Failed to create embedded entity")
		b.stats.NodeFailures++
		return 0, false
	}
	b.stats.Nodes++
	b.stats.Edges++
	metrics.NodesCreated.WithLabelValues(label).Inc()
	metrics.EdgesCreated.WithLabelValues(relation).Inc()
	return child, true
}
