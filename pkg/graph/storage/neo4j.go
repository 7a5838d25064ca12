package storage

import (
	"context"
	"strings"

	"github.com/athapong/stix2graph/pkg/graph"
	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
	"github.com/pkg/errors"
)

// indexLabel marks nodes registered in the identifier index.
const indexLabel = "StixObject"

// Neo4jStorage implements graph.Store on a Neo4j server. The identifier
// index is the StixObject(id) schema index.
type Neo4jStorage struct {
	driver   neo4j.Driver
	database string
}

// NewNeo4jStorage creates a new Neo4j storage instance, verifies the
// connection and ensures the identifier index exists.
func NewNeo4jStorage(uri, username, password, database string) (*Neo4jStorage, error) {
	auth := neo4j.BasicAuth(username, password, "")
	driver, err := neo4j.NewDriver(uri, auth)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Neo4j driver")
	}
	if err := driver.VerifyConnectivity(); err != nil {
		driver.Close()
		return nil, errors.Wrapf(err, "connect to Neo4j at %s", uri)
	}

	s := &Neo4jStorage{
		driver:   driver,
		database: database,
	}
	if err := s.ensureIndex(); err != nil {
		driver.Close()
		return nil, err
	}
	return s, nil
}

func (s *Neo4jStorage) session(mode neo4j.AccessMode) neo4j.Session {
	return s.driver.NewSession(neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

func (s *Neo4jStorage) ensureIndex() error {
	session := s.session(neo4j.AccessModeWrite)
	defer session.Close()

	result, err := session.Run(
		"CREATE INDEX stix_object_id IF NOT EXISTS FOR (n:"+indexLabel+") ON (n.id)",
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "create identifier index")
	}
	_, err = result.Consume()
	return errors.Wrap(err, "create identifier index")
}

// Update implements graph.Store with one managed write transaction.
func (s *Neo4jStorage) Update(ctx context.Context, fn func(tx graph.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	session := s.session(neo4j.AccessModeWrite)
	defer session.Close()

	_, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		return nil, fn(&neo4jTx{tx: tx})
	})
	return err
}

type neo4jTx struct {
	tx neo4j.Transaction
}

func (t *neo4jTx) CreateNode(label graph.Label, props graph.Properties) (graph.NodeRef, error) {
	if label == "" {
		return 0, graph.ErrInvalidLabel
	}
	result, err := t.tx.Run(
		"CREATE (n:"+quoteName(string(label))+") SET n = $props RETURN id(n)",
		map[string]interface{}{"props": map[string]interface{}(props)},
	)
	if err != nil {
		return 0, errors.Wrapf(err, "create %s node", label)
	}
	record, err := result.Single()
	if err != nil {
		return 0, errors.Wrapf(err, "create %s node", label)
	}
	id, ok := record.Values[0].(int64)
	if !ok {
		return 0, errors.Errorf("unexpected node id %v", record.Values[0])
	}
	return graph.NodeRef(id), nil
}

func (t *neo4jTx) CreateRelationship(from, to graph.NodeRef, relType graph.RelType, props graph.Properties) error {
	if relType == "" {
		return graph.ErrInvalidRelType
	}
	if props == nil {
		props = graph.Properties{}
	}
	result, err := t.tx.Run(`
		MATCH (from), (to)
		WHERE id(from) = $from AND id(to) = $to
		CREATE (from)-[r:`+quoteName(string(relType))+`]->(to)
		SET r = $props
		RETURN count(r)
	`, map[string]interface{}{
		"from":  int64(from),
		"to":    int64(to),
		"props": map[string]interface{}(props),
	})
	if err != nil {
		return errors.Wrapf(err, "create %s relationship", relType)
	}
	record, err := result.Single()
	if err != nil {
		return errors.Wrapf(err, "create %s relationship", relType)
	}
	if n, _ := record.Values[0].(int64); n == 0 {
		return errors.Wrapf(graph.ErrNodeNotFound, "%d-[%s]->%d", from, relType, to)
	}
	return nil
}

func (t *neo4jTx) Index(id string, node graph.NodeRef) error {
	result, err := t.tx.Run(
		"MATCH (n) WHERE id(n) = $node SET n:"+indexLabel+", n.id = $id RETURN count(n)",
		map[string]interface{}{"node": int64(node), "id": id},
	)
	if err != nil {
		return errors.Wrapf(err, "index %s", id)
	}
	record, err := result.Single()
	if err != nil {
		return errors.Wrapf(err, "index %s", id)
	}
	if n, _ := record.Values[0].(int64); n == 0 {
		return errors.Wrapf(graph.ErrNodeNotFound, "index %q -> %d", id, node)
	}
	return nil
}

// Lookup implements graph.Store. It resolves to the earliest node indexed
// under id.
func (s *Neo4jStorage) Lookup(ctx context.Context, id string) (graph.NodeRef, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	session := s.session(neo4j.AccessModeRead)
	defer session.Close()

	ref, err := session.ReadTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		result, err := tx.Run(
			"MATCH (n:"+indexLabel+" {id: $id}) RETURN id(n) ORDER BY id(n) LIMIT 1",
			map[string]interface{}{"id": id},
		)
		if err != nil {
			return nil, err
		}
		if result.Next() {
			return result.Record().Values[0], nil
		}
		return nil, result.Err()
	})
	if err != nil {
		return 0, false, errors.Wrapf(err, "lookup %s", id)
	}
	nodeID, ok := ref.(int64)
	if !ok {
		return 0, false, nil
	}
	return graph.NodeRef(nodeID), true, nil
}

// Close implements graph.Store
func (s *Neo4jStorage) Close() error {
	if s.driver != nil {
		return s.driver.Close()
	}
	return nil
}

// quoteName backtick-quotes a label or relationship type for Cypher.
func quoteName(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
