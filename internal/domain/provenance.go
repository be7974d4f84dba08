package domain

import (
	"fmt"
	"sort"
	"time"
)

// NodeID is the handle of a provenance node.
type NodeID int

const (
	NoNode NodeID = -1
	// InitNode vouches for the seeded knowledge.
	InitNode NodeID = 0
)

// InitNodeName is the name of the bootstrap node.
const InitNodeName = "init"

type EdgeKind string

const (
	EdgeAdd    EdgeKind = "ADD"
	EdgeUpdate EdgeKind = "UPDATE"
)

// DualityEdge links a fact to the execution node that vouches for it.
type DualityEdge struct {
	Fact      FactID   `json:"fact"`
	Node      NodeID   `json:"node"`
	Certainty float64  `json:"certainty"`
	Kind      EdgeKind `json:"kind"`
}

// Justification is one slot of the binding that enabled a node: the
// precondition it satisfied and the fact bound to it.
type Justification struct {
	Slot         string
	Precondition Precondition
	Condition    string
	Fact         FactID
}

// Edge runs from the node vouching for a justifying fact to the node it enabled.
type Edge struct {
	From           NodeID
	To             NodeID
	Justifications []Justification
}

// Node records one module execution.
type Node struct {
	ID        NodeID
	Name      string
	Log       []string
	StartedAt time.Time
	EndedAt   time.Time
	MetaKey   string
	Meta      MetaPrecondition

	in      []int
	out     []int
	duality []DualityEdge
}

func (n *Node) DualityEdges() []DualityEdge {
	out := make([]DualityEdge, len(n.duality))
	copy(out, n.duality)
	return out
}

// ProvenanceGraph is the execution graph of a run. It is append-only and
// acyclic as long as edges only point at the node being committed.
type ProvenanceGraph struct {
	nodes []*Node
	edges []Edge
}

// NewProvenanceGraph creates a graph holding only the init node.
func NewProvenanceGraph(now time.Time) *ProvenanceGraph {
	g := &ProvenanceGraph{}
	g.AddNode(Node{Name: InitNodeName, StartedAt: now, EndedAt: now})
	return g
}

func (g *ProvenanceGraph) Init() *Node { return g.nodes[InitNode] }

func (g *ProvenanceGraph) Node(id NodeID) (*Node, bool) {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil, false
	}
	return g.nodes[id], true
}

func (g *ProvenanceGraph) Len() int { return len(g.nodes) }

// Nodes returns the nodes in insertion order.
func (g *ProvenanceGraph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

func (g *ProvenanceGraph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// AddNode appends n and returns the stored node with its handle assigned.
func (g *ProvenanceGraph) AddNode(n Node) *Node {
	n.ID = NodeID(len(g.nodes))
	n.in, n.out, n.duality = nil, nil, nil
	stored := &n
	g.nodes = append(g.nodes, stored)
	return stored
}

func (g *ProvenanceGraph) DrawEdge(from, to NodeID, justifications []Justification) error {
	src, ok := g.Node(from)
	if !ok {
		return contractf("edge source node %d does not exist", from)
	}
	dst, ok := g.Node(to)
	if !ok {
		return contractf("edge target node %d does not exist", to)
	}
	idx := len(g.edges)
	g.edges = append(g.edges, Edge{From: from, To: to, Justifications: justifications})
	src.out = append(src.out, idx)
	dst.in = append(dst.in, idx)
	return nil
}

// DrawDuality records that node vouches for the attached fact f.
func (g *ProvenanceGraph) DrawDuality(f *Fact, node NodeID, certainty float64, kind EdgeKind) error {
	if err := ValidCertainty(certainty); err != nil {
		return err
	}
	if !f.Attached() {
		return contractf("duality edge to off-graph fact %s", f.typ)
	}
	n, ok := g.Node(node)
	if !ok {
		return contractf("duality edge to unknown node %d", node)
	}
	e := DualityEdge{Fact: f.id, Node: node, Certainty: certainty, Kind: kind}
	f.duality = append(f.duality, e)
	n.duality = append(n.duality, e)
	return nil
}

// In returns the incoming edges of id.
func (g *ProvenanceGraph) In(id NodeID) []Edge {
	n, ok := g.Node(id)
	if !ok {
		return nil
	}
	out := make([]Edge, 0, len(n.in))
	for _, i := range n.in {
		out = append(out, g.edges[i])
	}
	return out
}

func (g *ProvenanceGraph) Out(id NodeID) []Edge {
	n, ok := g.Node(id)
	if !ok {
		return nil
	}
	out := make([]Edge, 0, len(n.out))
	for _, i := range n.out {
		out = append(out, g.edges[i])
	}
	return out
}

func (g *ProvenanceGraph) Successors(id NodeID) []NodeID {
	var out []NodeID
	for _, e := range g.Out(id) {
		out = append(out, e.To)
	}
	return out
}

func (g *ProvenanceGraph) Predecessors(id NodeID) []NodeID {
	var out []NodeID
	for _, e := range g.In(id) {
		out = append(out, e.From)
	}
	return out
}

// BFS visits the nodes reachable from start through next (Successors when nil)
// in breadth-first order.
func (g *ProvenanceGraph) BFS(start NodeID, next func(NodeID) []NodeID) []NodeID {
	if _, ok := g.Node(start); !ok {
		return nil
	}
	if next == nil {
		next = g.Successors
	}
	seen := map[NodeID]bool{start: true}
	queue := []NodeID{start}
	var order []NodeID
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		order = append(order, u)
		for _, v := range next(u) {
			if !seen[v] {
				seen[v] = true
				queue = append(queue, v)
			}
		}
	}
	return order
}

// TopoEntry is a node with its depth-first discovery and finish times.
type TopoEntry struct {
	Node       NodeID `json:"node"`
	Discovered int    `json:"discovered"`
	Finished   int    `json:"finished"`
}

// TopologicalSort runs a depth-first search from start and returns the nodes in
// finishing order. Reaching a node that is still open means a cycle.
func (g *ProvenanceGraph) TopologicalSort(start NodeID, next func(NodeID) []NodeID) ([]TopoEntry, error) {
	if _, ok := g.Node(start); !ok {
		return nil, fmt.Errorf("topological sort: unknown node %d", start)
	}
	if next == nil {
		next = g.Successors
	}

	const (
		white = iota
		grey
		black
	)
	color := make(map[NodeID]int)
	var order []TopoEntry
	clock := 0

	var visit func(NodeID) error
	visit = func(u NodeID) error {
		switch color[u] {
		case black:
			return nil
		case grey:
			return fmt.Errorf("node %d: %w", u, ErrCycle)
		}
		color[u] = grey
		clock++
		discovered := clock
		for _, v := range next(u) {
			if err := visit(v); err != nil {
				return err
			}
		}
		color[u] = black
		clock++
		order = append(order, TopoEntry{Node: u, Discovered: discovered, Finished: clock})
		return nil
	}

	if err := visit(start); err != nil {
		return nil, err
	}
	return order, nil
}

// Ancestors returns every node that id transitively depends on, id included,
// in finishing order so that each node comes after the nodes it depends on.
func (g *ProvenanceGraph) Ancestors(id NodeID) ([]TopoEntry, error) {
	return g.TopologicalSort(id, g.Predecessors)
}

// TimeOrdered returns the nodes reachable from init sorted by end time.
func (g *ProvenanceGraph) TimeOrdered() []*Node {
	ids := g.BFS(InitNode, nil)
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.nodes[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EndedAt.Before(out[j].EndedAt)
	})
	return out
}
