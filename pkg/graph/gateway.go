package graph

import (
	"context"
	"sync"

	"github.com/athapong/stix2graph/pkg/graph/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Gateway owns the process-wide graph store handle. Builders receive it
// explicitly; every mutation goes through WithTransaction.
type Gateway struct {
	store  Store
	logger logrus.FieldLogger

	mutex  sync.Mutex
	closed bool
}

// NewGateway wraps an opened store. A nil logger falls back to a JSON
// logrus logger.
func NewGateway(store Store, logger logrus.FieldLogger) *Gateway {
	if logger == nil {
		l := logrus.New()
		l.SetFormatter(&logrus.JSONFormatter{})
		logger = l
	}
	return &Gateway{
		store:  store,
		logger: logger,
	}
}

// Logger returns the gateway's logger.
func (g *Gateway) Logger() logrus.FieldLogger {
	return g.logger
}

// WithTransaction runs body in its own transaction. It returns the body's
// result and true on commit. On any failure, including a panic inside body,
// the transaction is rolled back, the failure is logged under op and the
// zero value and false are returned.
func WithTransaction[T any](ctx context.Context, g *Gateway, op string, body func(tx Tx) (T, error)) (T, bool) {
	var result T
	if g.isClosed() {
		g.logger.WithField("op", op).Error("Graph store is closed")
		metrics.TransactionFailures.WithLabelValues(op).Inc()
		return result, false
	}

	err := g.store.Update(ctx, func(tx Tx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("transaction body panicked: %v", r)
			}
		}()
		v, err := body(tx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		g.logger.WithError(err).WithField("op", op).Error("Transaction rolled back")
		metrics.TransactionFailures.WithLabelValues(op).Inc()
		var zero T
		return zero, false
	}
	return result, true
}

// Lookup resolves a record identifier through the identifier index.
func (g *Gateway) Lookup(ctx context.Context, id string) (NodeRef, bool) {
	if g.isClosed() {
		return 0, false
	}
	ref, ok, err := g.store.Lookup(ctx, id)
	if err != nil {
		g.logger.WithError(err).WithField("record_id", id).Error("Index lookup failed")
		return 0, false
	}
	return ref, ok
}

// Snapshot exports the store content when the backend supports it.
func (g *Gateway) Snapshot() (*KnowledgeGraphData, bool) {
	s, ok := g.store.(Snapshotter)
	if !ok {
		return nil, false
	}
	return s.Snapshot(), true
}

// Close releases the store. Calling it more than once is a no-op.
func (g *Gateway) Close() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	return errors.Wrap(g.store.Close(), "close graph store")
}

func (g *Gateway) isClosed() bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.closed
}
