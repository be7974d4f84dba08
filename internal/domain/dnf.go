package domain

import "fmt"

// Precondition grades a single fact.
type Precondition interface {
	Holds(f *Fact) float64
	// Doc describes why f satisfies the precondition, for node logs.
	Doc(f *Fact) string
	String() string
}

// Lineage resolves parent handles. *FactGraph implements it.
type Lineage interface {
	Parent(f *Fact) *Fact
}

// Binding maps slot names of a disjunct to the facts bound to them.
type Binding map[string]*Fact

// IDs returns the handles of the bound facts keyed by slot name.
func (b Binding) IDs() map[string]FactID {
	out := make(map[string]FactID, len(b))
	for k, f := range b {
		out[k] = f.ID()
	}
	return out
}

// Same reports whether both bindings bind identical facts to the same slots.
func (b Binding) Same(o Binding) bool {
	if len(b) != len(o) {
		return false
	}
	for k, f := range b {
		g, ok := o[k]
		if !ok || !f.Same(g) {
			return false
		}
	}
	return true
}

// MetaPrecondition grades a whole binding.
type MetaPrecondition interface {
	Holds(l Lineage, b Binding) float64
	String() string
}

type Slot struct {
	Name         string
	Precondition Precondition
}

// Disjunct is one alternative way to satisfy a module.
type Disjunct struct {
	Key   string
	Slots []Slot
	Meta  MetaPrecondition
}

// DNF is an ordered disjunction; earlier disjuncts win ties.
type DNF []Disjunct

func (d DNF) Validate() error {
	keys := make(map[string]bool, len(d))
	for _, dis := range d {
		if dis.Key == "" {
			return contractf("disjunct without key")
		}
		if keys[dis.Key] {
			return contractf("disjunct key %q declared twice", dis.Key)
		}
		keys[dis.Key] = true
		if dis.Meta == nil {
			return contractf("disjunct %q has no meta precondition", dis.Key)
		}
		names := make(map[string]bool, len(dis.Slots))
		for _, s := range dis.Slots {
			if s.Name == "" || s.Precondition == nil {
				return contractf("disjunct %q has an incomplete slot", dis.Key)
			}
			if names[s.Name] {
				return contractf("slot %q declared twice in disjunct %q", s.Name, dis.Key)
			}
			names[s.Name] = true
		}
	}
	return nil
}

func (d Disjunct) String() string {
	return fmt.Sprintf("%s(%d slots, %s)", d.Key, len(d.Slots), d.Meta)
}
