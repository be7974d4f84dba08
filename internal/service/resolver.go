package service

import (
	"github.com/Harshitk-cp/pinaht/internal/domain"
)

// FactObserver is notified by the Committer for every attached or updated fact.
type FactObserver interface {
	Observe(f *domain.Fact, onlyUpdate bool)
}

type match struct {
	certainty float64
	fact      *domain.Fact
}

// BoundSlot is one slot of a candidate binding.
type BoundSlot struct {
	Name      string
	Certainty float64
	Fact      *domain.Fact
}

// Candidate is a binding that satisfies one disjunct.
type Candidate struct {
	MetaKey       string
	MetaCertainty float64
	Slots         []BoundSlot
}

// Score is the meta certainty times every slot certainty.
func (c Candidate) Score() float64 {
	score := c.MetaCertainty
	for _, s := range c.Slots {
		score *= s.Certainty
	}
	return score
}

func (c Candidate) Binding() domain.Binding {
	b := make(domain.Binding, len(c.Slots))
	for _, s := range c.Slots {
		b[s.Name] = s.Fact
	}
	return b
}

// Resolver keeps, for one module or flag, the facts matching each slot of its
// DNF and turns them into candidate bindings.
//
// Slots are keyed by name across the whole DNF: two disjuncts naming the same
// slot share one match list and the precondition declared last.
type Resolver struct {
	dnf           domain.DNF
	lineage       domain.Lineage
	slotOrder     []string
	preconditions map[string]domain.Precondition
	matches       map[string][]match
	executed      map[string][]domain.Binding
	updated       bool
}

func NewResolver(dnf domain.DNF, lineage domain.Lineage) *Resolver {
	r := &Resolver{
		dnf:           dnf,
		lineage:       lineage,
		preconditions: make(map[string]domain.Precondition),
		matches:       make(map[string][]match),
		executed:      make(map[string][]domain.Binding),
	}
	for _, d := range dnf {
		for _, s := range d.Slots {
			if _, ok := r.preconditions[s.Name]; !ok {
				r.slotOrder = append(r.slotOrder, s.Name)
			}
			r.preconditions[s.Name] = s.Precondition
		}
	}
	return r
}

func (r *Resolver) DNF() domain.DNF { return r.dnf }

// Precondition returns the precondition guarding slot.
func (r *Resolver) Precondition(slot string) domain.Precondition {
	return r.preconditions[slot]
}

// Meta returns the meta precondition of the disjunct with the given key.
func (r *Resolver) Meta(metaKey string) domain.MetaPrecondition {
	for _, d := range r.dnf {
		if d.Key == metaKey {
			return d.Meta
		}
	}
	return nil
}

// Update grades f against every slot. Unless onlyUpdate is set, matching facts
// are appended to the slot's match list. Any match marks the resolver updated.
func (r *Resolver) Update(f *domain.Fact, onlyUpdate bool) {
	for _, name := range r.slotOrder {
		c := r.preconditions[name].Holds(f)
		if c <= 0 {
			continue
		}
		if !onlyUpdate {
			r.matches[name] = append(r.matches[name], match{certainty: c, fact: f})
		}
		r.updated = true
	}
}

// Observe implements FactObserver.
func (r *Resolver) Observe(f *domain.Fact, onlyUpdate bool) { r.Update(f, onlyUpdate) }

func (r *Resolver) Updated() bool { return r.updated }

// Invalidate forces the next scheduler tick to resolve again.
func (r *Resolver) Invalidate() { r.updated = true }

// MarkExecuted excludes b from future resolutions of metaKey.
func (r *Resolver) MarkExecuted(metaKey string, b domain.Binding) {
	r.executed[metaKey] = append(r.executed[metaKey], b)
	r.updated = true
}

func (r *Resolver) wasExecuted(metaKey string, b domain.Binding) bool {
	for _, done := range r.executed[metaKey] {
		if done.Same(b) {
			return true
		}
	}
	return false
}

// Resolve enumerates, disjunct by disjunct, the cartesian product of the slot
// match lists and returns every binding whose meta certainty is positive.
// Already executed bindings score 0. Resolve clears the updated flag.
func (r *Resolver) Resolve() []Candidate {
	r.updated = false

	var out []Candidate
	for _, d := range r.dnf {
		lists := make([][]match, len(d.Slots))
		empty := false
		for i, s := range d.Slots {
			lists[i] = r.matches[s.Name]
			if len(lists[i]) == 0 {
				empty = true
			}
		}
		if empty {
			continue
		}

		// odometer over the match lists, last slot fastest
		idx := make([]int, len(lists))
		for {
			slots := make([]BoundSlot, len(d.Slots))
			b := make(domain.Binding, len(d.Slots))
			for i, s := range d.Slots {
				m := lists[i][idx[i]]
				slots[i] = BoundSlot{Name: s.Name, Certainty: m.certainty, Fact: m.fact}
				b[s.Name] = m.fact
			}

			certainty := 0.0
			if !r.wasExecuted(d.Key, b) {
				certainty = d.Meta.Holds(r.lineage, b)
			}
			if certainty > 0 {
				out = append(out, Candidate{MetaKey: d.Key, MetaCertainty: certainty, Slots: slots})
			}

			if !advance(idx, lists) {
				break
			}
		}
	}
	return out
}

func advance(idx []int, lists [][]match) bool {
	for i := len(idx) - 1; i >= 0; i-- {
		idx[i]++
		if idx[i] < len(lists[i]) {
			return true
		}
		idx[i] = 0
	}
	return false
}
