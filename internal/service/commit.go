package service

import (
	"fmt"
	"time"

	"github.com/Harshitk-cp/pinaht/internal/domain"
	"go.uber.org/zap"
)

// DefaultSeedCertainty is the certainty of the init node in seeded facts.
const DefaultSeedCertainty = 0.99

// Committer applies write buffers to the fact and provenance graphs and
// notifies the registered observers, in registration order.
type Committer struct {
	facts         *domain.FactGraph
	prov          *domain.ProvenanceGraph
	observers     []FactObserver
	seedCertainty float64
	logger        *zap.Logger
}

func NewCommitter(facts *domain.FactGraph, prov *domain.ProvenanceGraph, seedCertainty float64, logger *zap.Logger) *Committer {
	return &Committer{
		facts:         facts,
		prov:          prov,
		seedCertainty: seedCertainty,
		logger:        logger,
	}
}

func (c *Committer) Register(o FactObserver) {
	c.observers = append(c.observers, o)
}

func (c *Committer) notify(f *domain.Fact, onlyUpdate bool) {
	for _, o := range c.observers {
		o.Observe(f, onlyUpdate)
	}
}

// invalidator is an observer holding a cache derived from the whole graph.
type invalidator interface {
	Invalidate()
}

// invalidate marks every cached resolution stale. Meta-preconditions read
// beyond the bound facts, so a commit can change a score even for resolvers
// none of whose slots matched a new fact.
func (c *Committer) invalidate() {
	for _, o := range c.observers {
		if i, ok := o.(invalidator); ok {
			i.Invalidate()
		}
	}
}

// Seed attaches f and its subtree under parent.slot before the run starts.
// Every attached fact is vouched for by the init node. A nil parent means the
// root.
func (c *Committer) Seed(parent *domain.Fact, slot string, f *domain.Fact) error {
	if err := domain.ValidCertainty(c.seedCertainty); err != nil {
		return err
	}
	add := domain.PendingAdd{Parent: parent, Slot: slot, Fact: f, Certainty: c.seedCertainty, Recursive: true}
	if err := c.facts.CheckBatch([]domain.PendingAdd{add}); err != nil {
		return fmt.Errorf("seed %s: %w", f.Type(), err)
	}
	if parent == nil {
		parent = c.facts.Root()
	}

	attached, err := c.facts.Attach(parent, slot, f)
	if err != nil {
		return fmt.Errorf("seed %s: %w", f.Type(), err)
	}
	seedNode := c.prov.Init()
	for _, a := range attached {
		if err := c.prov.DrawDuality(a, seedNode.ID, c.seedCertainty, domain.EdgeAdd); err != nil {
			return err
		}
		c.notify(a, false)
		factsCommitted.Inc()
	}
	seedNode.Log = append(seedNode.Log, seedLine(parent, f))
	c.invalidate()
	c.logger.Debug("fact seeded",
		zap.String("type", f.Type()),
		zap.String("slot", slot),
		zap.Int("facts", len(attached)),
	)
	return nil
}

func seedLine(parent, f *domain.Fact) string {
	if parent.ID() == domain.RootID {
		if f.IsLeaf() {
			return fmt.Sprintf("we find %s with value: %s.", f.Type(), f)
		}
		return fmt.Sprintf("we know that %s exists.", f)
	}
	if f.IsLeaf() {
		return fmt.Sprintf("%s has a %s with value: %s.", parent, f.Type(), f)
	}
	return fmt.Sprintf("%s has a %s.", parent, f)
}

// Commit validates the whole buffer and, only if it is valid, records the
// execution node, its provenance edges, the new facts and the updates. sel may
// be nil for executions outside the scheduler.
func (c *Committer) Commit(buf *domain.WriteBuffer, sel *Selection, started, ended time.Time) (*domain.Node, error) {
	if err := c.validate(buf, sel); err != nil {
		return nil, fmt.Errorf("commit %s: %w", buf.Module(), err)
	}

	n := domain.Node{
		Name:      buf.Module(),
		Log:       buf.Log(),
		StartedAt: started,
		EndedAt:   ended,
	}
	if sel != nil {
		n.MetaKey = sel.MetaKey
		n.Meta = sel.Meta
	}
	node := c.prov.AddNode(n)

	if err := c.drawEdges(node.ID, sel); err != nil {
		return nil, err
	}

	added := 0
	for _, a := range buf.Adds() {
		parent := a.Parent
		if parent == nil {
			parent = c.facts.Root()
		}
		attached, err := c.facts.Attach(parent, a.Slot, a.Fact)
		if err != nil {
			return nil, fmt.Errorf("commit %s: %w", buf.Module(), err)
		}
		for _, f := range attached {
			if err := c.prov.DrawDuality(f, node.ID, a.Certainty, domain.EdgeAdd); err != nil {
				return nil, err
			}
			c.notify(f, false)
			added++
		}
	}
	factsCommitted.Add(float64(added))

	for _, u := range buf.Updates() {
		if err := c.prov.DrawDuality(u.Fact, node.ID, u.Certainty, domain.EdgeUpdate); err != nil {
			return nil, err
		}
		c.notify(u.Fact, true)
	}
	c.invalidate()

	c.logger.Debug("module committed",
		zap.String("module", node.Name),
		zap.Int("node", int(node.ID)),
		zap.Int("facts", added),
		zap.Int("updates", len(buf.Updates())),
	)
	return node, nil
}

func (c *Committer) validate(buf *domain.WriteBuffer, sel *Selection) error {
	adds := buf.Adds()
	if err := c.facts.CheckBatch(adds); err != nil {
		return err
	}

	pending := make(map[*domain.Fact]bool)
	for _, a := range adds {
		pending[a.Fact] = true
		for _, d := range a.Fact.Descendants() {
			pending[d] = true
		}
	}
	for _, u := range buf.Updates() {
		if !c.facts.Owns(u.Fact) && !pending[u.Fact] {
			return fmt.Errorf("%w: update of %s, which is not in the graph", domain.ErrContractViolation, u.Fact.Type())
		}
	}

	if sel == nil {
		return nil
	}
	for _, s := range sel.Support {
		if _, ok := c.prov.Node(s.Node); !ok {
			return fmt.Errorf("%w: slot %s is justified by unknown node %d", domain.ErrContractViolation, s.Slot, s.Node)
		}
	}
	return nil
}

// drawEdges links every node vouching for a bound fact to the new node, one
// edge per source node in first-seen slot order. Unjustified executions hang
// off the init node.
func (c *Committer) drawEdges(to domain.NodeID, sel *Selection) error {
	var sources []domain.NodeID
	grouped := make(map[domain.NodeID][]domain.Justification)
	if sel != nil {
		for _, s := range sel.Support {
			if _, ok := grouped[s.Node]; !ok {
				sources = append(sources, s.Node)
			}
			j := domain.Justification{Slot: s.Slot, Precondition: s.Precondition, Fact: s.Fact.ID()}
			if s.Precondition != nil {
				j.Condition = s.Precondition.String()
			}
			grouped[s.Node] = append(grouped[s.Node], j)
		}
	}
	if len(sources) == 0 {
		return c.prov.DrawEdge(domain.InitNode, to, nil)
	}
	for _, src := range sources {
		if err := c.prov.DrawEdge(src, to, grouped[src]); err != nil {
			return err
		}
	}
	return nil
}
