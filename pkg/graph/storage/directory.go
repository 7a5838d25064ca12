package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/athapong/stix2graph/pkg/graph"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

const (
	snapshotFile = "graph.json"
	lockFile     = "store.lock"
)

// DirectoryStore is a graph store rooted at a directory. It holds an
// exclusive lock on the directory while open, keeps the graph in memory and
// writes a JSON snapshot on Close.
type DirectoryStore struct {
	*graph.MemoryKnowledgeGraph

	dir       string
	snapshots *JSONGraphStore
	lock      *flock.Flock
	closeOnce sync.Once
	closeErr  error
}

// OpenDirectory opens or creates the store at dir. It fails with
// graph.ErrStoreLocked when another process holds the directory.
func OpenDirectory(ctx context.Context, dir string) (*DirectoryStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "create store directory %s", dir)
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "lock store directory %s", dir)
	}
	if !locked {
		return nil, errors.Wrapf(graph.ErrStoreLocked, "%s", dir)
	}

	s := &DirectoryStore{
		MemoryKnowledgeGraph: graph.NewMemoryKnowledgeGraph(),
		dir:                  dir,
		snapshots:            NewJSONGraphStore(filepath.Join(dir, snapshotFile)),
		lock:                 lock,
	}

	data, err := s.snapshots.LoadGraph(ctx)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		_ = lock.Unlock()
		return nil, err
	default:
		if err := s.Restore(data); err != nil {
			_ = lock.Unlock()
			return nil, errors.Wrapf(err, "restore %s", dir)
		}
	}
	return s, nil
}

// Dir returns the store's directory.
func (s *DirectoryStore) Dir() string {
	return s.dir
}

// Flush writes the current snapshot without closing the store.
func (s *DirectoryStore) Flush(ctx context.Context) error {
	return s.snapshots.StoreGraph(ctx, s.Snapshot())
}

// Close persists the graph and releases the directory lock. Only the first
// call has an effect.
func (s *DirectoryStore) Close() error {
	s.closeOnce.Do(func() {
		flushErr := s.Flush(context.Background())
		_ = s.MemoryKnowledgeGraph.Close()
		unlockErr := s.lock.Unlock()
		if flushErr != nil {
			s.closeErr = flushErr
			return
		}
		s.closeErr = errors.Wrap(unlockErr, "unlock store directory")
	})
	return s.closeErr
}
