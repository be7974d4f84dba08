package domain

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed types.yaml
var defaultSchemaYAML []byte

// KindAbstract is a schema-only kind: it groups slots for the types extending it
// and never appears on a fact.
const KindAbstract = "ABSTRACT"

type Multiplicity string

const (
	Singleton Multiplicity = "SINGLETON"
	List      Multiplicity = "LIST"
)

type SlotDef struct {
	Name         string       `yaml:"name"`
	Type         string       `yaml:"type"`
	Multiplicity Multiplicity `yaml:"multiplicity"`
}

type TypeDef struct {
	Name        string    `yaml:"name"`
	Kind        string    `yaml:"kind"`
	Description string    `yaml:"description"`
	Is          string    `yaml:"is,omitempty"`
	Enum        []string  `yaml:"enum,omitempty"`
	Extends     string    `yaml:"extends,omitempty"`
	Slots       []SlotDef `yaml:"slots,omitempty"`
}

// Schema is the closed set of fact types a run may attach. A nil *Schema
// accepts any type in any slot.
type Schema struct {
	Root  string    `yaml:"root"`
	Types []TypeDef `yaml:"types"`

	byName map[string]*TypeDef
}

// DefaultSchema returns the built-in assessment type model.
func DefaultSchema() *Schema {
	s, err := ParseSchema(defaultSchemaYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in type schema is invalid: %v", err))
	}
	return s
}

func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return ParseSchema(data)
}

func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if s.Root == "" {
		s.Root = RootType
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks model consistency and indexes the types.
func (s *Schema) Validate() error {
	if len(s.Types) == 0 {
		return fmt.Errorf("schema does not contain any type")
	}
	s.byName = make(map[string]*TypeDef, len(s.Types))
	for i := range s.Types {
		t := &s.Types[i]
		if t.Name == "" {
			return fmt.Errorf("missing name attribute in a type")
		}
		if _, dup := s.byName[t.Name]; dup {
			return fmt.Errorf("type %q declared twice", t.Name)
		}
		if t.Kind != KindAbstract && !ValidKind(t.Kind) {
			return fmt.Errorf("unrecognized kind %q of type %q", t.Kind, t.Name)
		}
		s.byName[t.Name] = t
	}

	for i := range s.Types {
		if err := s.validateType(&s.Types[i]); err != nil {
			return err
		}
	}

	root, ok := s.byName[s.Root]
	if !ok {
		return fmt.Errorf("root type %q is not declared", s.Root)
	}
	if Kind(root.Kind) != KindBranch {
		return fmt.Errorf("root type %q must be of kind BRANCH", s.Root)
	}
	return nil
}

func (s *Schema) validateType(t *TypeDef) error {
	if t.Extends != "" {
		base, ok := s.byName[t.Extends]
		if !ok {
			return fmt.Errorf("type %q extends type %q, which is not found", t.Name, t.Extends)
		}
		if base.Kind != KindAbstract {
			return fmt.Errorf("type %q extends type %q, which is not of kind ABSTRACT", t.Name, t.Extends)
		}
		if len(base.Slots) > 0 && Kind(t.Kind) != KindBranch {
			return fmt.Errorf("type %q extends %q which has slots, thus it has to be of kind BRANCH", t.Name, t.Extends)
		}
	}

	switch t.Kind {
	case string(KindBranch):
		if len(s.slotsOf(t)) == 0 {
			return fmt.Errorf("type %q of kind BRANCH must define slots", t.Name)
		}
		if t.Is != "" || len(t.Enum) > 0 {
			return fmt.Errorf("type %q of kind BRANCH can't have attributes 'is' or 'enum'", t.Name)
		}
	case string(KindLeafExtends):
		if t.Is == "" {
			return fmt.Errorf("missing 'is' attribute in type %q of kind LEAF_EXTENDS", t.Name)
		}
		switch t.Is {
		case "str", "int", "float", "bool":
		default:
			return fmt.Errorf("'is' attribute of type %q must be one of str, int, float, bool", t.Name)
		}
	case string(KindLeafEnum):
		if len(t.Enum) == 0 {
			return fmt.Errorf("type %q of kind LEAF_ENUM should have at least one enumeration value", t.Name)
		}
		for _, v := range t.Enum {
			if v == "" {
				return fmt.Errorf("empty enum value in type %q", t.Name)
			}
		}
	case string(KindLeafCustom):
		if t.Is != "" || len(t.Enum) > 0 {
			return fmt.Errorf("type %q of kind LEAF_CUSTOM can't have attributes 'is' or 'enum'", t.Name)
		}
	case KindAbstract:
		if t.Is != "" || len(t.Enum) > 0 || t.Extends != "" {
			return fmt.Errorf("type %q of kind ABSTRACT can't have attributes 'is', 'enum' or 'extends'", t.Name)
		}
	}

	if len(t.Slots) > 0 && Kind(t.Kind) != KindBranch && t.Kind != KindAbstract {
		return fmt.Errorf("type %q of kind %s can't have slots", t.Name, t.Kind)
	}
	seen := make(map[string]bool)
	for i := range t.Slots {
		slot := &t.Slots[i]
		if slot.Name == "" {
			return fmt.Errorf("slot name in type %q cannot be empty", t.Name)
		}
		if seen[slot.Name] {
			return fmt.Errorf("slot %q declared twice in type %q", slot.Name, t.Name)
		}
		seen[slot.Name] = true
		if _, ok := s.byName[slot.Type]; !ok {
			return fmt.Errorf("slot %q of type %q has unknown type %q", slot.Name, t.Name, slot.Type)
		}
		switch slot.Multiplicity {
		case "":
			slot.Multiplicity = List
		case Singleton, List:
		default:
			return fmt.Errorf("slot %q of type %q must be SINGLETON or LIST", slot.Name, t.Name)
		}
	}
	return nil
}

// Type looks up a declared type.
func (s *Schema) Type(name string) (*TypeDef, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.byName[name]
	return t, ok
}

// slotsOf returns the type's own slots followed by those of its abstract base.
func (s *Schema) slotsOf(t *TypeDef) []SlotDef {
	slots := append([]SlotDef(nil), t.Slots...)
	if t.Extends != "" {
		if base, ok := s.byName[t.Extends]; ok {
			slots = append(slots, base.Slots...)
		}
	}
	return slots
}

func (s *Schema) slot(typ, name string) (SlotDef, bool) {
	t, ok := s.Type(typ)
	if !ok {
		return SlotDef{}, false
	}
	for _, sd := range s.slotsOf(t) {
		if sd.Name == name {
			return sd, true
		}
	}
	return SlotDef{}, false
}

// IsA reports whether typ is target or extends it. Without a schema only exact
// names match.
func (s *Schema) IsA(typ, target string) bool {
	if typ == target {
		return true
	}
	t, ok := s.Type(typ)
	return ok && t.Extends == target
}

// New builds an off-graph fact of the declared type with its slots declared.
func (s *Schema) New(typ, value string) (*Fact, error) {
	t, ok := s.Type(typ)
	if !ok {
		return nil, contractf("unknown fact type %q", typ)
	}
	var f *Fact
	switch Kind(t.Kind) {
	case KindBranch:
		var names []string
		for _, sd := range s.slotsOf(t) {
			names = append(names, sd.Name)
		}
		f = NewBranch(typ, names...)
	case KindLeafExtends:
		f = NewExtends(typ, value)
	case KindLeafEnum:
		f = NewEnum(typ, value)
	case KindLeafCustom:
		f = NewCustom(typ, value, nil)
	default:
		return nil, contractf("type %q of kind %s cannot be instantiated", typ, t.Kind)
	}
	if err := s.CheckFact(f); err != nil {
		return nil, err
	}
	return f, nil
}

// CheckFact validates a single fact against its declared type.
func (s *Schema) CheckFact(f *Fact) error {
	if s == nil {
		return nil
	}
	t, ok := s.Type(f.typ)
	if !ok {
		return contractf("unknown fact type %q", f.typ)
	}
	if Kind(t.Kind) != f.kind {
		return contractf("fact of type %q has kind %s, declared %s", f.typ, f.kind, t.Kind)
	}
	switch f.kind {
	case KindLeafEnum:
		for _, v := range t.Enum {
			if v == f.value {
				return nil
			}
		}
		return contractf("value %q is not an enumeration value of %q", f.value, f.typ)
	case KindLeafExtends:
		return checkScalar(t, f.value)
	case KindBranch:
		for _, name := range f.slotOrder {
			if _, ok := s.slot(f.typ, name); !ok {
				return contractf("type %q has no slot %q", f.typ, name)
			}
		}
	}
	return nil
}

func checkScalar(t *TypeDef, value string) error {
	var err error
	switch t.Is {
	case "int":
		_, err = strconv.ParseInt(value, 10, 64)
	case "float":
		_, err = strconv.ParseFloat(value, 64)
	case "bool":
		_, err = strconv.ParseBool(value)
	}
	if err != nil {
		return contractf("value %q is not a valid %s for type %q", value, t.Is, t.Name)
	}
	return nil
}

// CheckSlot validates placing a child of childType into parentType.slot, which
// already holds existing facts.
func (s *Schema) CheckSlot(parentType, slot, childType string, existing int) error {
	if s == nil {
		return nil
	}
	sd, ok := s.slot(parentType, slot)
	if !ok {
		return contractf("type %q has no slot %q", parentType, slot)
	}
	if !s.IsA(childType, sd.Type) {
		return contractf("slot %s.%s expects %s, got %s", parentType, slot, sd.Type, childType)
	}
	if sd.Multiplicity == Singleton && existing > 0 {
		return contractf("slot %s.%s is a singleton and already holds a fact", parentType, slot)
	}
	return nil
}

// CheckSubtree validates f and every fact linked below it.
func (s *Schema) CheckSubtree(f *Fact) error {
	if s == nil {
		return nil
	}
	if err := s.CheckFact(f); err != nil {
		return err
	}
	for _, name := range f.slotOrder {
		children := f.slots[name]
		for i, c := range children {
			if err := s.CheckSlot(f.typ, name, c.typ, i); err != nil {
				return err
			}
			if err := s.CheckSubtree(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// ScalarBase returns the 'is' attribute of a LEAF_EXTENDS type.
func (s *Schema) ScalarBase(typ string) string {
	t, ok := s.Type(typ)
	if !ok {
		return ""
	}
	return t.Is
}
