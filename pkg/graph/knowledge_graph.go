package graph

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Node represents a node in the knowledge graph
type Node struct {
	ID         NodeRef                `json:"id"`
	Label      string                 `json:"label"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Edge represents a relationship between nodes in the knowledge graph
type Edge struct {
	Source     NodeRef                `json:"source"`
	Target     NodeRef                `json:"target"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// IndexEntry maps a record identifier to its node.
type IndexEntry struct {
	Key  string  `json:"key"`
	Node NodeRef `json:"node"`
}

// KnowledgeGraphData is a point-in-time copy of a graph, in creation order.
type KnowledgeGraphData struct {
	Nodes       []Node       `json:"nodes"`
	Edges       []Edge       `json:"edges"`
	Index       []IndexEntry `json:"index"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// Node returns the node with the given handle.
func (d *KnowledgeGraphData) Node(ref NodeRef) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == ref {
			return n, true
		}
	}
	return Node{}, false
}

// NodesWithLabel returns the nodes carrying label.
func (d *KnowledgeGraphData) NodesWithLabel(label string) []Node {
	nodes := make([]Node, 0)
	for _, n := range d.Nodes {
		if n.Label == label {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// EdgesOfType returns the edges of relType.
func (d *KnowledgeGraphData) EdgesOfType(relType string) []Edge {
	edges := make([]Edge, 0)
	for _, e := range d.Edges {
		if e.Type == relType {
			edges = append(edges, e)
		}
	}
	return edges
}

// Outgoing returns the edges of relType leaving from. An empty relType
// matches every type.
func (d *KnowledgeGraphData) Outgoing(from NodeRef, relType string) []Edge {
	edges := make([]Edge, 0)
	for _, e := range d.Edges {
		if e.Source == from && (relType == "" || e.Type == relType) {
			edges = append(edges, e)
		}
	}
	return edges
}

// Resolve returns every node indexed under id, earliest first.
func (d *KnowledgeGraphData) Resolve(id string) []NodeRef {
	refs := make([]NodeRef, 0, 1)
	for _, entry := range d.Index {
		if entry.Key == id {
			refs = append(refs, entry.Node)
		}
	}
	return refs
}

// MemoryKnowledgeGraph is a transactional in-memory graph with an
// identifier index. Mutations are buffered per transaction and applied on
// commit only.
type MemoryKnowledgeGraph struct {
	nodes    map[NodeRef]*Node
	order    []NodeRef
	edges    []Edge
	index    map[string][]NodeRef
	indexLog []IndexEntry
	lastRef  NodeRef
	closed   bool
	mutex    sync.RWMutex
}

// NewMemoryKnowledgeGraph creates a new in-memory knowledge graph
func NewMemoryKnowledgeGraph() *MemoryKnowledgeGraph {
	return &MemoryKnowledgeGraph{
		nodes: make(map[NodeRef]*Node),
		edges: make([]Edge, 0),
		index: make(map[string][]NodeRef),
	}
}

type memoryTx struct {
	graph *MemoryKnowledgeGraph
	nodes []Node
	edges []Edge
	index []IndexEntry
}

// Update implements Store.
func (g *MemoryKnowledgeGraph) Update(ctx context.Context, fn func(tx Tx) error) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.closed {
		return ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{graph: g}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (tx *memoryTx) CreateNode(label Label, props Properties) (NodeRef, error) {
	if label == "" {
		return 0, ErrInvalidLabel
	}
	tx.graph.lastRef++
	ref := tx.graph.lastRef
	tx.nodes = append(tx.nodes, Node{
		ID:         ref,
		Label:      string(label),
		Properties: copyProperties(props),
	})
	return ref, nil
}

func (tx *memoryTx) CreateRelationship(from, to NodeRef, relType RelType, props Properties) error {
	if relType == "" {
		return ErrInvalidRelType
	}
	if !tx.exists(from) {
		return errors.Wrapf(ErrNodeNotFound, "source %d", from)
	}
	if !tx.exists(to) {
		return errors.Wrapf(ErrNodeNotFound, "target %d", to)
	}
	tx.edges = append(tx.edges, Edge{
		Source:     from,
		Target:     to,
		Type:       string(relType),
		Properties: copyProperties(props),
	})
	return nil
}

func (tx *memoryTx) Index(id string, node NodeRef) error {
	if !tx.exists(node) {
		return errors.Wrapf(ErrNodeNotFound, "index %q -> %d", id, node)
	}
	tx.index = append(tx.index, IndexEntry{Key: id, Node: node})
	return nil
}

func (tx *memoryTx) exists(ref NodeRef) bool {
	if _, ok := tx.graph.nodes[ref]; ok {
		return true
	}
	for _, n := range tx.nodes {
		if n.ID == ref {
			return true
		}
	}
	return false
}

func (tx *memoryTx) commit() {
	g := tx.graph
	for i := range tx.nodes {
		node := tx.nodes[i]
		g.nodes[node.ID] = &node
		g.order = append(g.order, node.ID)
	}
	g.edges = append(g.edges, tx.edges...)
	for _, entry := range tx.index {
		g.index[entry.Key] = append(g.index[entry.Key], entry.Node)
		g.indexLog = append(g.indexLog, entry)
	}
}

// Lookup implements Store. It resolves to the earliest node indexed under id.
func (g *MemoryKnowledgeGraph) Lookup(ctx context.Context, id string) (NodeRef, bool, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	if g.closed {
		return 0, false, ErrStoreClosed
	}
	refs := g.index[id]
	if len(refs) == 0 {
		return 0, false, nil
	}
	return refs[0], true, nil
}

// Close implements Store.
func (g *MemoryKnowledgeGraph) Close() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.closed = true
	return nil
}

// Snapshot returns a copy of the graph content for serialization or
// visualization
func (g *MemoryKnowledgeGraph) Snapshot() *KnowledgeGraphData {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	data := &KnowledgeGraphData{
		Nodes:       make([]Node, 0, len(g.order)),
		Edges:       make([]Edge, 0, len(g.edges)),
		Index:       append([]IndexEntry(nil), g.indexLog...),
		GeneratedAt: time.Now(),
	}
	for _, ref := range g.order {
		n := g.nodes[ref]
		data.Nodes = append(data.Nodes, Node{ID: n.ID, Label: n.Label, Properties: copyProperties(n.Properties)})
	}
	for _, e := range g.edges {
		e.Properties = copyProperties(e.Properties)
		data.Edges = append(data.Edges, e)
	}
	return data
}

// Restore replaces the graph content with data. Node handles are kept, and
// new handles continue after the highest restored one.
func (g *MemoryKnowledgeGraph) Restore(data *KnowledgeGraphData) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	nodes := make(map[NodeRef]*Node, len(data.Nodes))
	order := make([]NodeRef, 0, len(data.Nodes))
	var last NodeRef
	for i := range data.Nodes {
		n := data.Nodes[i]
		if _, dup := nodes[n.ID]; dup {
			return errors.Errorf("duplicate node handle %d in snapshot", n.ID)
		}
		n.Properties = copyProperties(n.Properties)
		nodes[n.ID] = &n
		order = append(order, n.ID)
		if n.ID > last {
			last = n.ID
		}
	}
	for _, e := range data.Edges {
		if nodes[e.Source] == nil || nodes[e.Target] == nil {
			return errors.Wrapf(ErrNodeNotFound, "snapshot edge %d-[%s]->%d", e.Source, e.Type, e.Target)
		}
	}
	index := make(map[string][]NodeRef)
	for _, entry := range data.Index {
		if nodes[entry.Node] == nil {
			return errors.Wrapf(ErrNodeNotFound, "snapshot index %q", entry.Key)
		}
		index[entry.Key] = append(index[entry.Key], entry.Node)
	}

	g.nodes = nodes
	g.order = order
	g.edges = append(make([]Edge, 0, len(data.Edges)), data.Edges...)
	g.index = index
	g.indexLog = append([]IndexEntry(nil), data.Index...)
	g.lastRef = last
	return nil
}

func copyProperties(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		if list, ok := v.([]string); ok {
			cp := make([]string, len(list))
			copy(cp, list)
			v = cp
		}
		out[k] = v
	}
	return out
}
