package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/athapong/stix2graph/pkg/stix"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineDecoder yields one domain object per line; "bad" fails the document.
type lineDecoder struct{}

func (lineDecoder) Decode(ctx context.Context, content []byte) ([]stix.Record, error) {
	var records []stix.Record
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		if line == "bad" {
			return nil, errors.New("bad line")
		}
		records = append(records, &stix.DomainObject{Common: stix.Common{Type: "note", ID: line}})
	}
	return records, nil
}

func TestPipelineKeepsDocumentOrder(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := NewPipeline(lineDecoder{}, logger, 2)

	docs := []*Document{
		{Name: "a", Content: []byte("note--1\nnote--2")},
		{Name: "b", Content: []byte("note--3")},
		{Name: "c", Content: []byte("note--4\nnote--5")},
	}
	require.NoError(t, p.BatchProcess(context.Background(), docs))

	var ids []string
	for _, rec := range Records(docs) {
		ids = append(ids, rec.RecordID())
	}
	assert.Equal(t, []string{"note--1", "note--2", "note--3", "note--4", "note--5"}, ids)
}

func TestPipelineReportsFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	p := NewPipeline(lineDecoder{}, logger, 0)

	err := p.BatchProcess(context.Background(), []*Document{
		{Name: "good", Content: []byte("note--1")},
		{Name: "broken", Content: []byte("bad")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.NotEmpty(t, hook.AllEntries())

	assert.Error(t, p.Process(context.Background(), nil))
}
