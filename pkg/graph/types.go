package graph

import (
	"context"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
)

var (
	ErrInvalidLabel   = errors.New("invalid node label")
	ErrInvalidRelType = errors.New("invalid relationship type")
	ErrNodeNotFound   = errors.New("node not found")
	ErrStoreClosed    = errors.New("graph store closed")
	ErrStoreLocked    = errors.New("graph store locked by another process")
)

// NodeRef is the store-assigned handle of a created node.
type NodeRef int64

// Properties is a node or edge property bag. Values are strings or string
// lists.
type Properties map[string]interface{}

// Label is a sanitized node label.
type Label string

// RelType is a sanitized relationship type.
type RelType string

// Tx is the mutation surface available inside a transaction.
type Tx interface {
	// CreateNode creates a node with the given label and properties.
	CreateNode(label Label, props Properties) (NodeRef, error)
	// CreateRelationship draws a directed edge between two existing nodes.
	CreateRelationship(from, to NodeRef, relType RelType, props Properties) error
	// Index registers node under a record identifier.
	Index(id string, node NodeRef) error
}

// Store is the graph database behind the gateway.
type Store interface {
	// Update runs fn in one transaction, committing when fn returns nil and
	// rolling back otherwise.
	Update(ctx context.Context, fn func(tx Tx) error) error
	// Lookup resolves a record identifier through the identifier index.
	Lookup(ctx context.Context, id string) (NodeRef, bool, error)
	Close() error
}

// Snapshotter is implemented by stores that can export their content.
type Snapshotter interface {
	Snapshot() *KnowledgeGraphData
}

var (
	droppedRunes = mapset.NewSet[rune]('"', '\\', '\n', '\r')
	spacedRunes  = mapset.NewSet[rune](',', ':', '\'', ';', '.')
)

// Sanitize rewrites characters that are illegal in labels and relationship
// type names: quotes, backslashes and line breaks are dropped, ", : ' ; ."
// become a space and "-" becomes "_". All other characters are kept.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case droppedRunes.Contains(r):
		case spacedRunes.Contains(r):
			b.WriteByte(' ')
		case r == '-':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NewLabel sanitizes a record kind into a node label.
func NewLabel(kind string) (Label, error) {
	s := Sanitize(kind)
	if strings.TrimSpace(s) == "" {
		return "", errors.Wrapf(ErrInvalidLabel, "%q", kind)
	}
	return Label(s), nil
}

// NewRelType sanitizes a relation name into a relationship type.
func NewRelType(name string) (RelType, error) {
	s := Sanitize(name)
	if strings.TrimSpace(s) == "" {
		return "", errors.Wrapf(ErrInvalidRelType, "%q", name)
	}
	return RelType(s), nil
}
