package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/athapong/stix2graph/pkg/graph"
	"github.com/pkg/errors"
)

// JSONGraphStore persists graph snapshots as a JSON file
type JSONGraphStore struct {
	filePath string
}

// NewJSONGraphStore creates a new JSON graph store
func NewJSONGraphStore(filePath string) *JSONGraphStore {
	return &JSONGraphStore{
		filePath: filePath,
	}
}

// StoreGraph writes the snapshot, replacing the previous file atomically
func (s *JSONGraphStore) StoreGraph(ctx context.Context, data *graph.KnowledgeGraphData) error {
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode graph snapshot")
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0644); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, s.filePath), "replace %s", s.filePath)
}

// LoadGraph loads a snapshot. A missing file yields an error matching
// os.ErrNotExist.
func (s *JSONGraphStore) LoadGraph(ctx context.Context) (*graph.KnowledgeGraphData, error) {
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", s.filePath)
	}

	var data graph.KnowledgeGraphData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrapf(err, "decode %s", s.filePath)
	}
	for i := range data.Nodes {
		normalizeDecoded(data.Nodes[i].Properties)
	}
	for i := range data.Edges {
		normalizeDecoded(data.Edges[i].Properties)
	}
	return &data, nil
}

// normalizeDecoded turns JSON-decoded string arrays back into []string.
func normalizeDecoded(props map[string]interface{}) {
	for k, v := range props {
		list, ok := v.([]interface{})
		if !ok {
			continue
		}
		values := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				values = append(values, s)
			}
		}
		props[k] = values
	}
}
