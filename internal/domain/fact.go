package domain

// FactID is the stable arena handle of an attached fact.
type FactID int

const (
	// NoFact is the handle of a fact that has not entered the graph yet.
	NoFact FactID = -1
	// RootID is the handle of the root fact.
	RootID FactID = 0
)

type Kind string

const (
	KindBranch      Kind = "BRANCH"
	KindLeafExtends Kind = "LEAF_EXTENDS"
	KindLeafEnum    Kind = "LEAF_ENUM"
	KindLeafCustom  Kind = "LEAF_CUSTOM"
)

func ValidKind(k string) bool {
	switch Kind(k) {
	case KindBranch, KindLeafExtends, KindLeafEnum, KindLeafCustom:
		return true
	}
	return false
}

// RootType is the type name of the distinguished root fact.
const RootType = "Root"

// Fact is a typed node of the append-only knowledge tree.
//
// A fact is built off-graph by a module (NewBranch, NewExtends, ...), linked to
// other off-graph facts with AddChild, and handed to a WriteBuffer. It receives
// its handle and parent link when the commit manager attaches it. Attached facts
// are never mutated again except for gaining children and duality edges through
// a commit.
type Fact struct {
	id      FactID
	typ     string
	kind    Kind
	value   string
	payload any

	parent FactID
	linked bool // off-graph: already a child of another fact

	slots     map[string][]*Fact
	slotOrder []string

	duality []DualityEdge
}

func newFact(kind Kind, typ, value string) *Fact {
	return &Fact{
		id:     NoFact,
		typ:    typ,
		kind:   kind,
		value:  value,
		parent: NoFact,
	}
}

// NewBranch creates an off-graph composite fact with the given declared slots.
func NewBranch(typ string, slots ...string) *Fact {
	f := newFact(KindBranch, typ, "")
	f.slots = make(map[string][]*Fact, len(slots))
	for _, s := range slots {
		f.declareSlot(s)
	}
	return f
}

// NewExtends creates a leaf wrapping a scalar rendered as string.
func NewExtends(typ, value string) *Fact {
	return newFact(KindLeafExtends, typ, value)
}

// NewEnum creates a leaf holding one enumeration value.
func NewEnum(typ, value string) *Fact {
	return newFact(KindLeafEnum, typ, value)
}

// NewCustom creates a custom leaf. The payload is opaque to the core (a live
// shell session, a parsed banner, ...) and is not part of equality.
func NewCustom(typ, value string, payload any) *Fact {
	f := newFact(KindLeafCustom, typ, value)
	f.payload = payload
	return f
}

func newRoot() *Fact {
	f := NewBranch(RootType)
	f.id = RootID
	return f
}

func (f *Fact) ID() FactID     { return f.id }
func (f *Fact) Type() string   { return f.typ }
func (f *Fact) Kind() Kind     { return f.kind }
func (f *Fact) Value() string  { return f.value }
func (f *Fact) Payload() any   { return f.payload }
func (f *Fact) Parent() FactID { return f.parent }
func (f *Fact) Attached() bool { return f.id != NoFact }
func (f *Fact) IsLeaf() bool   { return f.kind != KindBranch }

func (f *Fact) declareSlot(name string) {
	if _, ok := f.slots[name]; ok {
		return
	}
	f.slots[name] = nil
	f.slotOrder = append(f.slotOrder, name)
}

// AddChild links an off-graph child under an off-graph branch. Attached facts
// only grow through a commit.
func (f *Fact) AddChild(slot string, child *Fact) error {
	switch {
	case f.Attached():
		return contractf("cannot add child to attached fact %d (%s); use a write buffer", f.id, f.typ)
	case f.IsLeaf():
		return contractf("leaf fact %s cannot have children", f.typ)
	case child == nil:
		return contractf("nil child for slot %q", slot)
	case child.Attached() || child.linked:
		return contractf("fact %s already has a parent", child.typ)
	case child == f || child.contains(f):
		return contractf("adding %s under %s would create a cycle", child.typ, f.typ)
	}
	f.declareSlot(slot)
	f.slots[slot] = append(f.slots[slot], child)
	child.linked = true
	return nil
}

func (f *Fact) contains(target *Fact) bool {
	for _, d := range f.Descendants() {
		if d == target {
			return true
		}
	}
	return false
}

// Children returns a copy of the ordered children in slot.
func (f *Fact) Children(slot string) []*Fact {
	children := f.slots[slot]
	if len(children) == 0 {
		return nil
	}
	out := make([]*Fact, len(children))
	copy(out, children)
	return out
}

// Slots returns the slot names in declaration order.
func (f *Fact) Slots() []string {
	out := make([]string, len(f.slotOrder))
	copy(out, f.slotOrder)
	return out
}

func (f *Fact) HasSlot(name string) bool {
	_, ok := f.slots[name]
	return ok
}

// Descendants returns every fact below f in pre-order, slot order first.
func (f *Fact) Descendants() []*Fact {
	var out []*Fact
	var visit func(*Fact)
	visit = func(n *Fact) {
		for _, s := range n.slotOrder {
			for _, c := range n.slots[s] {
				out = append(out, c)
				visit(c)
			}
		}
	}
	visit(f)
	return out
}

func (f *Fact) DualityEdges() []DualityEdge {
	out := make([]DualityEdge, len(f.duality))
	copy(out, f.duality)
	return out
}

// VouchedBy returns the node of the most recent duality edge.
func (f *Fact) VouchedBy() (NodeID, bool) {
	if len(f.duality) == 0 {
		return NoNode, false
	}
	return f.duality[len(f.duality)-1].Node, true
}

// Same reports identity: handle equality for attached facts, pointer equality otherwise.
func (f *Fact) Same(other *Fact) bool {
	if f == nil || other == nil {
		return false
	}
	if f.Attached() && other.Attached() {
		return f.id == other.id
	}
	return f == other
}

// FuzzyEq is the graded equivalence used by value preconditions. Leaves compare
// exactly. Composites score 1.0 on identity and 0.5 for any other fact of the
// same type; the 0.5 is a long-standing heuristic and is kept as is. The root
// is equivalent to nothing, itself included.
func (f *Fact) FuzzyEq(other *Fact) float64 {
	if other == nil || f.id == RootID {
		return 0.0
	}
	if f.Same(other) {
		return 1.0
	}
	if f.typ != other.typ || f.kind != other.kind {
		return 0.0
	}
	if f.kind == KindBranch {
		return 0.5
	}
	if f.value == other.value {
		return 1.0
	}
	return 0.0
}

func (f *Fact) String() string {
	if f.kind == KindBranch {
		return f.typ
	}
	return f.value
}
