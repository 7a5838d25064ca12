package graph

import (
	"context"

	"github.com/athapong/stix2graph/pkg/stix"
)

// Document is one input document, typically a bundle file, and the records
// decoded from it.
type Document struct {
	Name    string        `json:"name"`
	Content []byte        `json:"-"`
	Records []stix.Record `json:"-"`
}

// RecordDecoder turns document content into records in document order.
type RecordDecoder interface {
	Decode(ctx context.Context, content []byte) ([]stix.Record, error)
}

// Records concatenates the records of docs in document order.
func Records(docs []*Document) []stix.Record {
	n := 0
	for _, d := range docs {
		n += len(d.Records)
	}
	records := make([]stix.Record, 0, n)
	for _, d := range docs {
		records = append(records, d.Records...)
	}
	return records
}
