// Package scenario loads YAML scenarios: start knowledge plus scripted modules
// and flags that exercise the scheduling core without touching a real target.
package scenario

import (
	"fmt"
	"os"

	"github.com/Harshitk-cp/pinaht/internal/domain"
	"gopkg.in/yaml.v3"
)

// FactSpec describes a fact and the facts linked below it.
type FactSpec struct {
	Type     string      `yaml:"type"`
	Value    string      `yaml:"value,omitempty"`
	Children []ChildSpec `yaml:"children,omitempty"`
}

type ChildSpec struct {
	Slot string   `yaml:"slot"`
	Fact FactSpec `yaml:"fact"`
}

// SeedSpec is start knowledge attached under the root.
type SeedSpec struct {
	Slot string   `yaml:"slot"`
	Fact FactSpec `yaml:"fact"`
}

// SlotSpec is a slot precondition. Every condition given must hold; the
// certainty is the smallest of them.
type SlotSpec struct {
	Name     string       `yaml:"name"`
	Type     string       `yaml:"type,omitempty"`
	Value    string       `yaml:"value,omitempty"`
	Contains string       `yaml:"contains,omitempty"`
	Version  *VersionSpec `yaml:"version,omitempty"`
}

type VersionSpec struct {
	Between []string `yaml:"between,omitempty"`
	Below   string   `yaml:"below,omitempty"`
	AtLeast string   `yaml:"at_least,omitempty"`
}

// IsParentSpec checks lineage up to Depth steps. A missing depth means 1; an
// explicit 0 only accepts the children themselves.
type IsParentSpec struct {
	Parent   string   `yaml:"parent"`
	Children []string `yaml:"children"`
	Depth    *int     `yaml:"depth,omitempty"`
}

// IdenticalParentsSpec compares the facts Depth steps up, 1 when unset. A
// depth of 0 compares the bound facts themselves.
type IdenticalParentsSpec struct {
	Slots []string `yaml:"slots"`
	Depth *int     `yaml:"depth,omitempty"`
}

type EmptyChildSpec struct {
	Parent string `yaml:"parent"`
	Slot   string `yaml:"slot"`
}

// MetaSpec describes one meta precondition. Exactly one field is set; an
// empty spec always holds.
type MetaSpec struct {
	Static             *float64              `yaml:"static,omitempty"`
	IsParent           *IsParentSpec         `yaml:"is_parent,omitempty"`
	IdenticalParents   *IdenticalParentsSpec `yaml:"identical_parents,omitempty"`
	IdenticalFacts     []string              `yaml:"identical_facts,omitempty"`
	IdenticalAncestors []string              `yaml:"identical_ancestors,omitempty"`
	EmptyChild         *EmptyChildSpec       `yaml:"empty_child,omitempty"`
	Not                *MetaSpec             `yaml:"not,omitempty"`
	All                []MetaSpec            `yaml:"all,omitempty"`
}

type DisjunctSpec struct {
	Key   string     `yaml:"key"`
	Slots []SlotSpec `yaml:"slots"`
	Meta  *MetaSpec  `yaml:"meta,omitempty"`
}

// ProduceSpec is a fact a scripted module adds. Parent names a bound slot;
// empty means the root.
type ProduceSpec struct {
	Parent    string   `yaml:"parent,omitempty"`
	Slot      string   `yaml:"slot"`
	Certainty float64  `yaml:"certainty"`
	Fact      FactSpec `yaml:"fact"`
}

type UpdateSpec struct {
	Slot      string  `yaml:"slot"`
	Certainty float64 `yaml:"certainty"`
}

type ModuleSpec struct {
	Name      string         `yaml:"name"`
	Disjuncts []DisjunctSpec `yaml:"disjuncts"`
	Produce   []ProduceSpec  `yaml:"produce,omitempty"`
	Update    []UpdateSpec   `yaml:"update,omitempty"`
	Report    string         `yaml:"report,omitempty"`
	// Fail makes the first Fail executions return an error.
	Fail int `yaml:"fail,omitempty"`
}

// CheckSpec requires the fact bound to Slot to carry Value.
type CheckSpec struct {
	Slot  string `yaml:"slot"`
	Value string `yaml:"value"`
}

type FlagSpec struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Disjuncts   []DisjunctSpec `yaml:"disjuncts"`
	Check       *CheckSpec     `yaml:"check,omitempty"`
}

// File is the YAML document.
type File struct {
	Name          string       `yaml:"name"`
	MaxIterations int          `yaml:"max_iterations,omitempty"`
	Seed          []SeedSpec   `yaml:"seed"`
	Modules       []ModuleSpec `yaml:"modules"`
	Flags         []FlagSpec   `yaml:"flags,omitempty"`
}

// Scenario is a loaded, schema-checked scenario.
type Scenario struct {
	Name          string
	MaxIterations int
	Seeds         []SeedSpec
	Modules       []domain.Module
	Flags         []domain.Flag

	schema *domain.Schema
}

func Load(path string, schema *domain.Schema) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data, schema)
}

func Parse(data []byte, schema *domain.Schema) (*Scenario, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if f.Name == "" {
		return nil, fmt.Errorf("scenario has no name")
	}

	s := &Scenario{
		Name:          f.Name,
		MaxIterations: f.MaxIterations,
		Seeds:         f.Seed,
		schema:        schema,
	}
	for _, seed := range f.Seed {
		if _, err := BuildFact(schema, seed.Fact); err != nil {
			return nil, fmt.Errorf("seed %s: %w", seed.Slot, err)
		}
	}
	for _, ms := range f.Modules {
		m, err := NewScriptedModule(schema, ms)
		if err != nil {
			return nil, err
		}
		s.Modules = append(s.Modules, m)
	}
	for _, fs := range f.Flags {
		fl, err := NewScriptedFlag(schema, fs)
		if err != nil {
			return nil, err
		}
		s.Flags = append(s.Flags, fl)
	}
	return s, nil
}

// Seeder is implemented by service.Runner.
type Seeder interface {
	Seed(parent *domain.Fact, slot string, f *domain.Fact) error
}

// SeedInto attaches the start knowledge under the root.
func (s *Scenario) SeedInto(dst Seeder) error {
	for _, seed := range s.Seeds {
		f, err := BuildFact(s.schema, seed.Fact)
		if err != nil {
			return fmt.Errorf("seed %s: %w", seed.Slot, err)
		}
		if err := dst.Seed(nil, seed.Slot, f); err != nil {
			return err
		}
	}
	return nil
}
