package scenario

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Harshitk-cp/pinaht/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadBackdoor(t *testing.T) {
	sc, err := Load("testdata/backdoor.yaml", domain.DefaultSchema())
	require.NoError(t, err)

	assert.Equal(t, "vsftpd-backdoor", sc.Name)
	assert.Equal(t, 50, sc.MaxIterations)
	require.Len(t, sc.Modules, 2)
	assert.Equal(t, "portscan", sc.Modules[0].Name())
	assert.Equal(t, "vsftpd_backdoor", sc.Modules[1].Name())
	require.Len(t, sc.Flags, 1)
	assert.Equal(t, "root_shell", sc.Flags[0].Name())
	assert.Equal(t, "obtain a root shell on the target", sc.Flags[0].Description())

	dnf := sc.Modules[1].PreconditionDNF()
	require.Len(t, dnf, 1)
	assert.Equal(t, "backdoor", dnf[0].Key)
	assert.Len(t, dnf[0].Slots, 3)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/nope.yaml", domain.DefaultSchema())
	assert.Error(t, err)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no name",
			yaml: "modules: []",
			want: "no name",
		},
		{
			name: "module without name",
			yaml: `
name: x
modules:
  - disjuncts: [{key: k, slots: [{name: t, type: Target}]}]`,
			want: "module without name",
		},
		{
			name: "unknown slot type",
			yaml: `
name: x
modules:
  - name: m
    disjuncts: [{key: k, slots: [{name: t, type: Spaceship}]}]`,
			want: `unknown type "Spaceship"`,
		},
		{
			name: "slot without condition",
			yaml: `
name: x
modules:
  - name: m
    disjuncts: [{key: k, slots: [{name: t}]}]`,
			want: "has no condition",
		},
		{
			name: "value without type",
			yaml: `
name: x
modules:
  - name: m
    disjuncts: [{key: k, slots: [{name: t, value: UP}]}]`,
			want: "value needs a type",
		},
		{
			name: "two meta combinators",
			yaml: `
name: x
modules:
  - name: m
    disjuncts:
      - key: k
        slots: [{name: t, type: Target}]
        meta:
          static: 0.5
          identical_facts: [t]`,
			want: "wrap them in all",
		},
		{
			name: "one version bound",
			yaml: `
name: x
modules:
  - name: m
    disjuncts:
      - key: k
        slots: [{name: v, type: Version, version: {between: [1.0]}}]`,
			want: "two bounds",
		},
		{
			name: "produce certainty out of range",
			yaml: `
name: x
modules:
  - name: m
    disjuncts: [{key: k, slots: [{name: t, type: Target}]}]
    produce:
      - {slot: target, certainty: 1.5, fact: {type: Target}}`,
			want: "certainty",
		},
		{
			name: "seed breaks the schema",
			yaml: `
name: x
seed:
  - slot: target
    fact:
      type: Target
      children:
        - {slot: status, fact: {type: Status, value: SIDEWAYS}}`,
			want: "seed target",
		},
		{
			name: "flag without name",
			yaml: `
name: x
flags:
  - disjuncts: [{key: k, slots: [{name: t, type: Target}]}]`,
			want: "flag without name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), domain.DefaultSchema())
			require.Error(t, err)
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestBuildFact(t *testing.T) {
	s := domain.DefaultSchema()
	f, err := BuildFact(s, FactSpec{
		Type: "Service",
		Children: []ChildSpec{
			{Slot: "port", Fact: FactSpec{Type: "Port", Value: "21"}},
			{Slot: "service_name", Fact: FactSpec{Type: "Name", Value: "vsftpd"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Service", f.Type())
	assert.False(t, f.Attached())
	require.Len(t, f.Children("port"), 1)
	assert.Equal(t, "21", f.Children("port")[0].Value())

	_, err = BuildFact(s, FactSpec{Type: "Port", Value: "twenty-one"})
	assert.ErrorIs(t, err, domain.ErrContractViolation)

	// a second port breaks the singleton slot
	_, err = BuildFact(s, FactSpec{
		Type: "Service",
		Children: []ChildSpec{
			{Slot: "port", Fact: FactSpec{Type: "Port", Value: "21"}},
			{Slot: "port", Fact: FactSpec{Type: "Port", Value: "22"}},
		},
	})
	assert.ErrorIs(t, err, domain.ErrContractViolation)
}

func TestScriptedModuleFailsThenProduces(t *testing.T) {
	s := domain.DefaultSchema()
	m, err := NewScriptedModule(s, ModuleSpec{
		Name:      "flaky",
		Disjuncts: []DisjunctSpec{{Key: "k", Slots: []SlotSpec{{Name: "t", Type: "Target"}}}},
		Produce: []ProduceSpec{{
			Parent:    "t",
			Slot:      "status",
			Certainty: 0.7,
			Fact:      FactSpec{Type: "Status", Value: "UP"},
		}},
		Report: "host is up",
		Fail:   1,
	})
	require.NoError(t, err)

	target, err := s.New("Target", "")
	require.NoError(t, err)
	b := domain.Binding{"t": target}

	buf := domain.NewWriteBuffer("flaky")
	err = m.Execute(context.Background(), buf, "k", b)
	assert.True(t, errors.Is(err, ErrScriptedFailure))
	assert.True(t, buf.Empty())

	buf = domain.NewWriteBuffer("flaky")
	require.NoError(t, m.Execute(context.Background(), buf, "k", b))
	assert.Equal(t, 2, m.Runs())

	adds := buf.Adds()
	require.Len(t, adds, 1)
	assert.Same(t, target, adds[0].Parent)
	assert.Equal(t, "status", adds[0].Slot)
	assert.Equal(t, "UP", adds[0].Fact.Value())
	assert.Equal(t, 0.7, adds[0].Certainty)
	assert.True(t, adds[0].Recursive)
	assert.Equal(t, []string{"host is up"}, buf.Log())
}

func TestScriptedModuleNeedsBoundParent(t *testing.T) {
	s := domain.DefaultSchema()
	m, err := NewScriptedModule(s, ModuleSpec{
		Name:      "m",
		Disjuncts: []DisjunctSpec{{Key: "k", Slots: []SlotSpec{{Name: "t", Type: "Target"}}}},
		Produce:   []ProduceSpec{{Parent: "host", Slot: "status", Certainty: 1, Fact: FactSpec{Type: "Status", Value: "UP"}}},
	})
	require.NoError(t, err)

	err = m.Execute(context.Background(), domain.NewWriteBuffer("m"), "k", domain.Binding{})
	assert.ErrorContains(t, err, `slot "host" is not bound`)
}

func TestScriptedModuleHonoursContext(t *testing.T) {
	m, err := NewScriptedModule(domain.DefaultSchema(), ModuleSpec{
		Name:      "m",
		Disjuncts: []DisjunctSpec{{Key: "k", Slots: []SlotSpec{{Name: "t", Type: "Target"}}}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = m.Execute(ctx, domain.NewWriteBuffer("m"), "k", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScriptedFlagCheck(t *testing.T) {
	s := domain.DefaultSchema()
	disjuncts := []DisjunctSpec{{Key: "shell", Slots: []SlotSpec{{Name: "p", Type: "Privilege"}}}}

	checked, err := NewScriptedFlag(s, FlagSpec{Name: "root", Disjuncts: disjuncts, Check: &CheckSpec{Slot: "p", Value: "ROOT"}})
	require.NoError(t, err)
	open, err := NewScriptedFlag(s, FlagSpec{Name: "any", Disjuncts: disjuncts})
	require.NoError(t, err)

	root := domain.NewEnum("Privilege", "ROOT")
	user := domain.NewEnum("Privilege", "USER")

	assert.True(t, checked.Check("shell", domain.Binding{"p": root}))
	assert.False(t, checked.Check("shell", domain.Binding{"p": user}))
	assert.False(t, checked.Check("shell", domain.Binding{}))
	assert.True(t, open.Check("shell", domain.Binding{"p": user}))
}

func TestSlotConditionsTakeTheMinimum(t *testing.T) {
	s := domain.DefaultSchema()
	dnf, err := buildDNF(s, []DisjunctSpec{{
		Key: "k",
		Slots: []SlotSpec{{
			Name:     "n",
			Type:     "Name",
			Contains: "vsftpd",
		}},
	}})
	require.NoError(t, err)
	p := dnf[0].Slots[0].Precondition

	hit, err := s.New("Name", "vsftpd 2.3.4")
	require.NoError(t, err)
	miss, err := s.New("Name", "proftpd")
	require.NoError(t, err)

	assert.Equal(t, 1.0, p.Holds(hit))
	assert.Equal(t, 0.0, p.Holds(miss))
	assert.Equal(t, 0.0, p.Holds(domain.NewEnum("Privilege", "ROOT")))
}

func TestMetaDepth(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"is_parent default", "is_parent: {parent: a, children: [b]}", "IsParent(a <- b, 1)"},
		{"is_parent zero", "is_parent: {parent: a, children: [b], depth: 0}", "IsParent(a <- b, 0)"},
		{"identical_parents default", "identical_parents: {slots: [a, b]}", "IdenticalParents(a,b, 1)"},
		{"identical_parents zero", "identical_parents: {slots: [a, b], depth: 0}", "IdenticalParents(a,b, 0)"},
		{"identical_parents two", "identical_parents: {slots: [a, b], depth: 2}", "IdenticalParents(a,b, 2)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var spec MetaSpec
			require.NoError(t, yaml.Unmarshal([]byte(tt.yaml), &spec))
			m, err := buildMeta(&spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.String())
		})
	}

	var spec MetaSpec
	require.NoError(t, yaml.Unmarshal([]byte("is_parent: {parent: a, children: [b], depth: -1}"), &spec))
	_, err := buildMeta(&spec)
	assert.ErrorContains(t, err, "negative depth")
}

func TestBuildDNFWithoutSchema(t *testing.T) {
	dnf, err := buildDNF(nil, []DisjunctSpec{{
		Key:   "k",
		Slots: []SlotSpec{{Name: "x", Type: "Whatever"}},
	}})
	require.NoError(t, err)
	p := dnf[0].Slots[0].Precondition
	assert.Equal(t, 1.0, p.Holds(domain.NewBranch("Whatever")))
	assert.Equal(t, 0.0, p.Holds(domain.NewBranch("Target")))
}

type recordingSeeder struct {
	slots []string
	facts []*domain.Fact
}

func (r *recordingSeeder) Seed(parent *domain.Fact, slot string, f *domain.Fact) error {
	if parent != nil {
		return errors.New("seed below the root only")
	}
	r.slots = append(r.slots, slot)
	r.facts = append(r.facts, f)
	return nil
}

func TestSeedIntoBuildsFreshFacts(t *testing.T) {
	sc, err := Load("testdata/backdoor.yaml", domain.DefaultSchema())
	require.NoError(t, err)

	first, second := &recordingSeeder{}, &recordingSeeder{}
	require.NoError(t, sc.SeedInto(first))
	require.NoError(t, sc.SeedInto(second))

	assert.Equal(t, []string{"target"}, first.slots)
	require.Len(t, first.facts[0].Children("ipaddress"), 1)
	assert.Equal(t, "10.0.0.5", first.facts[0].Children("ipaddress")[0].Value())
	assert.NotSame(t, first.facts[0], second.facts[0], "every run gets its own facts")
}
