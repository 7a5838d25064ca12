// Package storage provides the graph store backends: a directory-backed
// store for local loads and a Neo4j store.
package storage

import (
	"context"

	"github.com/athapong/stix2graph/pkg/config"
	"github.com/athapong/stix2graph/pkg/graph"
	"github.com/pkg/errors"
)

// OpenStore opens the backend selected by cfg. Any failure here means the
// store is unavailable.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (graph.Store, error) {
	switch cfg.Backend {
	case config.BackendDirectory, "":
		s, err := OpenDirectory(ctx, cfg.Directory)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendNeo4j:
		s, err := NewNeo4jStorage(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.Errorf("unknown store backend %q", cfg.Backend)
	}
}
