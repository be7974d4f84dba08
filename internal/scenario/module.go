package scenario

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/pinaht/internal/domain"
)

// ErrScriptedFailure is returned by a scripted module told to fail.
var ErrScriptedFailure = errors.New("scripted failure")

// ScriptedModule is a module whose preconditions and findings come from a
// scenario file.
type ScriptedModule struct {
	spec     ModuleSpec
	schema   *domain.Schema
	dnf      domain.DNF
	failures int
	runs     int
}

func NewScriptedModule(schema *domain.Schema, spec ModuleSpec) (*ScriptedModule, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("module without name")
	}
	dnf, err := buildDNF(schema, spec.Disjuncts)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", spec.Name, err)
	}
	for _, p := range spec.Produce {
		if err := domain.ValidCertainty(p.Certainty); err != nil {
			return nil, fmt.Errorf("module %s: %w", spec.Name, err)
		}
		if _, err := BuildFact(schema, p.Fact); err != nil {
			return nil, fmt.Errorf("module %s: %w", spec.Name, err)
		}
	}
	return &ScriptedModule{spec: spec, schema: schema, dnf: dnf, failures: spec.Fail}, nil
}

func (m *ScriptedModule) Name() string                { return m.spec.Name }
func (m *ScriptedModule) PreconditionDNF() domain.DNF { return m.dnf }

// Runs is the number of times Execute was called.
func (m *ScriptedModule) Runs() int { return m.runs }

func (m *ScriptedModule) Execute(ctx context.Context, buf *domain.WriteBuffer, metaKey string, b domain.Binding) error {
	m.runs++
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.failures > 0 {
		m.failures--
		return fmt.Errorf("%s via %s: %w", m.spec.Name, metaKey, ErrScriptedFailure)
	}

	for _, p := range m.spec.Produce {
		var parent *domain.Fact
		if p.Parent != "" {
			var ok bool
			if parent, ok = b[p.Parent]; !ok {
				return fmt.Errorf("produce: slot %q is not bound", p.Parent)
			}
		}
		f, err := BuildFact(m.schema, p.Fact)
		if err != nil {
			return err
		}
		if err := buf.AddFact(parent, p.Slot, f, p.Certainty, true); err != nil {
			return err
		}
	}
	for _, u := range m.spec.Update {
		f, ok := b[u.Slot]
		if !ok {
			return fmt.Errorf("update: slot %q is not bound", u.Slot)
		}
		if err := buf.UpdateFact(f, u.Certainty); err != nil {
			return err
		}
	}
	if m.spec.Report != "" {
		buf.Report("%s", m.spec.Report)
	}
	return nil
}

// ScriptedFlag is a goal declared in a scenario file.
type ScriptedFlag struct {
	spec FlagSpec
	dnf  domain.DNF
}

func NewScriptedFlag(schema *domain.Schema, spec FlagSpec) (*ScriptedFlag, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("flag without name")
	}
	dnf, err := buildDNF(schema, spec.Disjuncts)
	if err != nil {
		return nil, fmt.Errorf("flag %s: %w", spec.Name, err)
	}
	return &ScriptedFlag{spec: spec, dnf: dnf}, nil
}

func (f *ScriptedFlag) Name() string                { return f.spec.Name }
func (f *ScriptedFlag) PreconditionDNF() domain.DNF { return f.dnf }
func (f *ScriptedFlag) Description() string         { return f.spec.Description }

func (f *ScriptedFlag) Check(_ string, b domain.Binding) bool {
	if f.spec.Check == nil {
		return true
	}
	fact, ok := b[f.spec.Check.Slot]
	return ok && fact.Value() == f.spec.Check.Value
}
