package domain

import "fmt"

// PendingAdd is a fact a module wants attached under Parent.Slot.
type PendingAdd struct {
	Parent    *Fact
	Slot      string
	Fact      *Fact
	Certainty float64
	Recursive bool
}

// PendingUpdate re-vouches for an already attached fact.
type PendingUpdate struct {
	Fact      *Fact
	Certainty float64
}

// WriteBuffer collects a module's writes until commit. Nothing in it touches
// the fact graph.
type WriteBuffer struct {
	module  string
	adds    []PendingAdd
	updates []PendingUpdate
	log     []string
}

func NewWriteBuffer(module string) *WriteBuffer {
	return &WriteBuffer{module: module}
}

func (b *WriteBuffer) Module() string { return b.module }

// AddFact buffers f under parent.slot. A nil parent means the root. With
// recursive set, every fact already linked below f is attached with it.
func (b *WriteBuffer) AddFact(parent *Fact, slot string, f *Fact, certainty float64, recursive bool) error {
	if err := ValidCertainty(certainty); err != nil {
		return err
	}
	if f == nil {
		return contractf("nil fact for slot %q", slot)
	}
	if slot == "" {
		return contractf("empty slot name for fact %s", f.typ)
	}
	b.adds = append(b.adds, PendingAdd{
		Parent:    parent,
		Slot:      slot,
		Fact:      f,
		Certainty: certainty,
		Recursive: recursive,
	})
	return nil
}

// UpdateFact buffers a new certainty for an attached fact.
func (b *WriteBuffer) UpdateFact(f *Fact, certainty float64) error {
	if err := ValidCertainty(certainty); err != nil {
		return err
	}
	if f == nil {
		return contractf("nil fact update")
	}
	b.updates = append(b.updates, PendingUpdate{Fact: f, Certainty: certainty})
	return nil
}

// Report appends a line to the execution node's log.
func (b *WriteBuffer) Report(format string, args ...any) {
	b.log = append(b.log, fmt.Sprintf(format, args...))
}

func (b *WriteBuffer) Adds() []PendingAdd       { return append([]PendingAdd(nil), b.adds...) }
func (b *WriteBuffer) Updates() []PendingUpdate { return append([]PendingUpdate(nil), b.updates...) }
func (b *WriteBuffer) Log() []string            { return append([]string(nil), b.log...) }

func (b *WriteBuffer) Empty() bool {
	return len(b.adds) == 0 && len(b.updates) == 0
}
