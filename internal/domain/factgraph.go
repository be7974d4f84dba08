package domain

import (
	"strings"
	"unicode"
)

// FactGraph is the arena of attached facts. Handles index into facts; the root
// sits at RootID. It is not safe for concurrent use.
type FactGraph struct {
	schema *Schema
	facts  []*Fact
	slotOf map[FactID]string
}

func NewFactGraph(schema *Schema) *FactGraph {
	root := newRoot()
	root.typ = schema.rootName()
	if t, ok := schema.Type(schema.rootName()); ok {
		for _, sd := range schema.slotsOf(t) {
			root.declareSlot(sd.Name)
		}
	}
	return &FactGraph{
		schema: schema,
		facts:  []*Fact{root},
		slotOf: map[FactID]string{},
	}
}

func (s *Schema) rootName() string {
	if s == nil || s.Root == "" {
		return RootType
	}
	return s.Root
}

func (g *FactGraph) Schema() *Schema { return g.schema }
func (g *FactGraph) Root() *Fact     { return g.facts[RootID] }
func (g *FactGraph) Len() int        { return len(g.facts) }

func (g *FactGraph) Fact(id FactID) (*Fact, bool) {
	if id < 0 || int(id) >= len(g.facts) {
		return nil, false
	}
	return g.facts[id], true
}

// Parent resolves the parent handle of f. Roots and off-graph facts have none.
func (g *FactGraph) Parent(f *Fact) *Fact {
	if f == nil || f.parent == NoFact {
		return nil
	}
	p, _ := g.Fact(f.parent)
	return p
}

// SlotOf returns the slot name f was attached under.
func (g *FactGraph) SlotOf(f *Fact) string {
	return g.slotOf[f.id]
}

// Owns reports whether f is attached to this graph.
func (g *FactGraph) Owns(f *Fact) bool {
	if f == nil || !f.Attached() {
		return false
	}
	own, ok := g.Fact(f.id)
	return ok && own == f
}

// Attach adds f and everything linked below it under parent.slot. It returns
// the attached facts in pre-order, f first.
func (g *FactGraph) Attach(parent *Fact, slot string, f *Fact) ([]*Fact, error) {
	if parent == nil {
		parent = g.Root()
	}
	if err := g.checkAttach(parent, slot, f, len(parent.slots[slot])); err != nil {
		return nil, err
	}

	parent.declareSlot(slot)
	parent.slots[slot] = append(parent.slots[slot], f)

	attached := []*Fact{f}
	g.link(parent, slot, f)
	var visit func(*Fact)
	visit = func(n *Fact) {
		for _, s := range n.slotOrder {
			for _, c := range n.slots[s] {
				g.link(n, s, c)
				attached = append(attached, c)
				visit(c)
			}
		}
	}
	visit(f)
	return attached, nil
}

func (g *FactGraph) link(parent *Fact, slot string, f *Fact) {
	f.id = FactID(len(g.facts))
	f.parent = parent.id
	f.linked = false
	g.facts = append(g.facts, f)
	g.slotOf[f.id] = slot
}

func (g *FactGraph) checkAttach(parent *Fact, slot string, f *Fact, existing int) error {
	switch {
	case f == nil:
		return contractf("nil fact")
	case !g.Owns(parent):
		return contractf("parent %s is not attached to this graph", parent.typ)
	case f.Attached():
		return contractf("fact %d (%s) is already attached", f.id, f.typ)
	case f.linked:
		return contractf("fact %s is linked below another fact; add its ancestor instead", f.typ)
	}
	return g.checkPlacement(parent, slot, f, existing)
}

func (g *FactGraph) checkPlacement(parent *Fact, slot string, f *Fact, existing int) error {
	if parent.IsLeaf() {
		return contractf("leaf fact %s cannot have children", parent.typ)
	}
	if err := g.schema.CheckSlot(parent.typ, slot, f.typ, existing); err != nil {
		return err
	}
	return g.schema.CheckSubtree(f)
}

// CheckBatch validates a sequence of adds as if they were applied in order,
// without touching the graph. Parents may be attached or added earlier in the
// batch.
func (g *FactGraph) CheckBatch(adds []PendingAdd) error {
	pending := make(map[*Fact]bool)
	counts := make(map[*Fact]map[string]int)

	for _, a := range adds {
		parent := a.Parent
		if parent == nil {
			parent = g.Root()
		}
		f := a.Fact
		switch {
		case f == nil:
			return contractf("nil fact for slot %q", a.Slot)
		case !g.Owns(parent) && !pending[parent]:
			return contractf("parent %s of %s is neither attached nor added before it", parent.typ, f.typ)
		case f.Attached():
			return contractf("fact %d (%s) is already attached", f.id, f.typ)
		case pending[f]:
			return contractf("fact %s is added twice", f.typ)
		case f.linked:
			return contractf("fact %s is linked below another fact; add its ancestor instead", f.typ)
		}
		descendants := f.Descendants()
		if !a.Recursive && len(descendants) > 0 {
			return contractf("non-recursive add of %s, which has %d linked facts", f.typ, len(descendants))
		}

		if counts[parent] == nil {
			counts[parent] = make(map[string]int)
		}
		existing := len(parent.slots[a.Slot]) + counts[parent][a.Slot]
		if err := g.checkPlacement(parent, a.Slot, f, existing); err != nil {
			return err
		}
		counts[parent][a.Slot]++

		pending[f] = true
		for _, d := range descendants {
			pending[d] = true
		}
	}
	return nil
}

// Walk visits the attached facts in pre-order. fn receives the slot a fact sits
// in and its depth below the root; returning false skips the subtree.
func (g *FactGraph) Walk(fn func(f *Fact, slot string, depth int) bool) {
	var visit func(*Fact, string, int)
	visit = func(f *Fact, slot string, depth int) {
		if !fn(f, slot, depth) {
			return
		}
		for _, s := range f.slotOrder {
			for _, c := range f.slots[s] {
				visit(c, s, depth+1)
			}
		}
	}
	visit(g.Root(), "", 0)
}

// Render is the sanitized display string of f.
func (g *FactGraph) Render(f *Fact) string {
	switch f.kind {
	case KindBranch:
		return ""
	case KindLeafExtends:
		prefix := ""
		if base := g.schema.ScalarBase(f.typ); base != "" {
			prefix = "(" + base + ") "
		}
		return prefix + Sanitize(f.value)
	case KindLeafCustom:
		if f.value == "" {
			return "-"
		}
	}
	return Sanitize(f.value)
}

// Export flattens the tree into records in pre-order.
func (g *FactGraph) Export() []FactRecord {
	out := make([]FactRecord, 0, len(g.facts))
	g.Walk(func(f *Fact, slot string, depth int) bool {
		out = append(out, FactRecord{
			ID:       f.id,
			Parent:   f.parent,
			Slot:     slot,
			Depth:    depth,
			Type:     f.typ,
			Kind:     f.kind,
			Value:    f.value,
			Rendered: g.Render(f),
			Duality:  f.DualityEdges(),
		})
		return true
	})
	return out
}

var htmlEscaper = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	"/", "&#47;",
	`\`, "&#92;",
)

// Sanitize keeps printable ASCII, spaces and newlines, trims surrounding blanks
// and escapes markup characters.
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == ' ':
			return r
		case r > unicode.MaxASCII:
			return -1
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			return r
		}
		return -1
	}, s)
	s = strings.Trim(s, " \n")
	return htmlEscaper.Replace(s)
}
