// Package builder turns records into graph nodes and relationships. The node
// and embedded-entity builders run in the first load phase, the relationship
// builder in the second.
package builder

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Relationship types with fixed meaning.
const (
	RelHasMarkingObject   = "HAS_MARKING_OBJECT"
	RelHasKillChainPhase  = "HAS_KILL_CHAIN_PHASE"
	RelHasExternalRef     = "HAS_EXTERNAL_REF"
	RelHasGranularMarking = "HAS_GRANULAR_MARKING"
	RelHasContents        = "HAS_CONTENTS"
	RelHasTranslation     = "HAS_TRANSLATION"
	RelHasHashes          = "HAS_HASHES"
	RelCreatedBy          = "CREATED_BY"
	RelHasMarking         = "HAS_MARKING"
	RelRefersTo           = "REFERS_TO"
	RelSightingOf         = "SIGHTING_OF"
	RelObservedData       = "OBSERVED_DATA"
	RelWhereSighted       = "WHERE_SIGHTED"
	RelLanguageContentOf  = "LANGUAGE_CONTENT_OF"
)

// Labels of embedded-entity nodes.
const (
	LabelKillChainPhase    = "kill_chain_phase"
	LabelExternalReference = "external_reference"
	LabelGranularMarking   = "granular_marking"
	LabelHashes            = "hashes"
	LabelContents          = "contents"
	LabelTranslations      = "translations"
	LabelMarkingObject     = "marking_object"
)

var ErrIDCountMismatch = errors.New("synthetic id count does not match collection length")

// IDGenerator returns a fresh synthetic identifier for an embedded entity
// of the given kind.
type IDGenerator func(kind string) string

// NewUUIDGenerator returns a generator producing "<kind>--<uuid v4>".
func NewUUIDGenerator() IDGenerator {
	return func(kind string) string {
		return kind + "--" + uuid.New().String()
	}
}

// IDs returns n identifiers in order.
func (g IDGenerator) IDs(kind string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = g(kind)
	}
	return ids
}

// Stats counts what the builders created and skipped. Builders are used
// from a single goroutine.
type Stats struct {
	Nodes        int
	NodeFailures int
	Edges        int
	EdgeFailures int
	Unresolved   int
}
