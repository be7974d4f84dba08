package precondition

import (
	"fmt"
	"strings"

	"github.com/Harshitk-cp/pinaht/internal/domain"
)

// Aggregate reduces the facts reached by IdenticalParents to a certainty.
type Aggregate func(facts []*domain.Fact) float64

// IdentityAggregate is 1 when every fact is the same fact.
func IdentityAggregate(facts []*domain.Fact) float64 {
	for _, f := range facts[1:] {
		if !f.Same(facts[0]) {
			return 0.0
		}
	}
	return 1.0
}

// metaFunc adapts a function to domain.MetaPrecondition.
type metaFunc struct {
	name string
	fn   func(domain.Lineage, domain.Binding) float64
}

func (m metaFunc) Holds(l domain.Lineage, b domain.Binding) float64 { return m.fn(l, b) }
func (m metaFunc) String() string                                  { return m.name }

func bound(b domain.Binding, slots []string) ([]*domain.Fact, bool) {
	out := make([]*domain.Fact, 0, len(slots))
	for _, s := range slots {
		f, ok := b[s]
		if !ok || f == nil {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// Static always returns v.
func Static(v float64) domain.MetaPrecondition {
	v = clamp(v)
	return metaFunc{
		name: fmt.Sprintf("Static(%g)", v),
		fn:   func(domain.Lineage, domain.Binding) float64 { return v },
	}
}

// IsParent holds when the fact bound to parentSlot is each child itself or one
// of its first maxDepth ancestors.
func IsParent(parentSlot string, childSlots []string, maxDepth int) domain.MetaPrecondition {
	return metaFunc{
		name: fmt.Sprintf("IsParent(%s <- %s, %d)", parentSlot, strings.Join(childSlots, ","), maxDepth),
		fn: func(l domain.Lineage, b domain.Binding) float64 {
			parent, ok := b[parentSlot]
			if !ok {
				return 0.0
			}
			children, ok := bound(b, childSlots)
			if !ok {
				return 0.0
			}
			for _, c := range children {
				found := c.Same(parent)
				cur := c
				for i := 0; i < maxDepth && !found; i++ {
					if p := l.Parent(cur); p != nil {
						cur = p
					}
					found = cur.Same(parent)
				}
				if !found {
					return 0.0
				}
			}
			return 1.0
		},
	}
}

// IdenticalParents walks every bound fact depth steps up and aggregates the
// facts reached. A walk past the root scores 0. A nil agg means
// IdentityAggregate.
func IdenticalParents(slots []string, depth int, agg Aggregate) domain.MetaPrecondition {
	if agg == nil {
		agg = IdentityAggregate
	}
	return metaFunc{
		name: fmt.Sprintf("IdenticalParents(%s, %d)", strings.Join(slots, ","), depth),
		fn: func(l domain.Lineage, b domain.Binding) float64 {
			facts, ok := bound(b, slots)
			if !ok || len(facts) == 0 {
				return 0.0
			}
			for i := 0; i < depth; i++ {
				for j, f := range facts {
					p := l.Parent(f)
					if p == nil {
						return 0.0
					}
					facts[j] = p
				}
			}
			return clamp(agg(facts))
		},
	}
}

// IdenticalFacts compares the bound facts themselves.
func IdenticalFacts(slots []string, agg Aggregate) domain.MetaPrecondition {
	return IdenticalParents(slots, 0, agg)
}

// IdenticalAncestors grades how much of their ancestry the bound facts share.
// Chains run root first; the score drops with the distance of the shortest and
// the longest chain from the deepest common row.
func IdenticalAncestors(slots []string) domain.MetaPrecondition {
	return metaFunc{
		name: fmt.Sprintf("IdenticalAncestors(%s)", strings.Join(slots, ",")),
		fn: func(l domain.Lineage, b domain.Binding) float64 {
			facts, ok := bound(b, slots)
			if !ok || len(facts) == 0 {
				return 0.0
			}
			chains := make([][]*domain.Fact, len(facts))
			minimum, maximum := -1, 0
			for i, f := range facts {
				var chain []*domain.Fact
				for cur := f; cur != nil; cur = l.Parent(cur) {
					chain = append(chain, cur)
				}
				for a, z := 0, len(chain)-1; a < z; a, z = a+1, z-1 {
					chain[a], chain[z] = chain[z], chain[a]
				}
				chains[i] = chain
				if minimum < 0 || len(chain) < minimum {
					minimum = len(chain)
				}
				maximum = max(maximum, len(chain))
			}
			if maximum <= 1 {
				return 1.0
			}

			depth := 0
			for row := 0; row < maximum; row++ {
				if !sameRow(chains, row) {
					break
				}
				depth = row
			}

			spread := float64((minimum-depth-1)+(maximum-depth-1)) / float64(2*(maximum-1))
			return clamp(1.0 - spread)
		},
	}
}

func sameRow(chains [][]*domain.Fact, row int) bool {
	if row >= len(chains[0]) {
		return false
	}
	first := chains[0][row]
	for _, c := range chains[1:] {
		if row >= len(c) || !c[row].Same(first) {
			return false
		}
	}
	return true
}

// Merge combines metas with f. A nil f means Min.
func Merge(metas []domain.MetaPrecondition, f func([]float64) float64) domain.MetaPrecondition {
	if f == nil {
		f = Min
	}
	names := make([]string, len(metas))
	for i, m := range metas {
		names[i] = m.String()
	}
	return metaFunc{
		name: "Merge(" + strings.Join(names, ", ") + ")",
		fn: func(l domain.Lineage, b domain.Binding) float64 {
			vals := make([]float64, len(metas))
			for i, m := range metas {
				vals[i] = m.Holds(l, b)
			}
			return clamp(f(vals))
		},
	}
}

func Min(vals []float64) float64 {
	if len(vals) == 0 {
		return 0.0
	}
	out := vals[0]
	for _, v := range vals[1:] {
		out = min(out, v)
	}
	return out
}

func Max(vals []float64) float64 {
	out := 0.0
	for _, v := range vals {
		out = max(out, v)
	}
	return out
}

func Product(vals []float64) float64 {
	out := 1.0
	for _, v := range vals {
		out *= v
	}
	return out
}

// Invert returns 1 - m.
func Invert(m domain.MetaPrecondition) domain.MetaPrecondition {
	return metaFunc{
		name: "Invert(" + m.String() + ")",
		fn: func(l domain.Lineage, b domain.Binding) float64 {
			return clamp(1.0 - m.Holds(l, b))
		},
	}
}

// CheckEmptyChild holds when the fact bound to parentSlot declares childSlot
// and has nothing in it yet.
func CheckEmptyChild(parentSlot, childSlot string) domain.MetaPrecondition {
	return metaFunc{
		name: fmt.Sprintf("CheckEmptyChild(%s.%s)", parentSlot, childSlot),
		fn: func(_ domain.Lineage, b domain.Binding) float64 {
			f, ok := b[parentSlot]
			if !ok || f == nil || !f.HasSlot(childSlot) {
				return 0.0
			}
			if len(f.Children(childSlot)) > 0 {
				return 0.0
			}
			return 1.0
		},
	}
}
