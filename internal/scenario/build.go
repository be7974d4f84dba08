package scenario

import (
	"fmt"
	"strings"

	"github.com/Harshitk-cp/pinaht/internal/domain"
	"github.com/Harshitk-cp/pinaht/internal/precondition"
)

// BuildFact creates an off-graph fact tree from spec.
func BuildFact(schema *domain.Schema, spec FactSpec) (*domain.Fact, error) {
	f, err := schema.New(spec.Type, spec.Value)
	if err != nil {
		return nil, err
	}
	for _, c := range spec.Children {
		child, err := BuildFact(schema, c.Fact)
		if err != nil {
			return nil, err
		}
		if err := f.AddChild(c.Slot, child); err != nil {
			return nil, err
		}
	}
	if err := schema.CheckSubtree(f); err != nil {
		return nil, err
	}
	return f, nil
}

func buildDNF(schema *domain.Schema, specs []DisjunctSpec) (domain.DNF, error) {
	dnf := make(domain.DNF, 0, len(specs))
	for _, ds := range specs {
		d := domain.Disjunct{Key: ds.Key}
		for _, ss := range ds.Slots {
			p, err := buildPrecondition(schema, ss)
			if err != nil {
				return nil, fmt.Errorf("disjunct %s: %w", ds.Key, err)
			}
			d.Slots = append(d.Slots, domain.Slot{Name: ss.Name, Precondition: p})
		}
		meta, err := buildMeta(ds.Meta)
		if err != nil {
			return nil, fmt.Errorf("disjunct %s: %w", ds.Key, err)
		}
		d.Meta = meta
		dnf = append(dnf, d)
	}
	if err := dnf.Validate(); err != nil {
		return nil, err
	}
	return dnf, nil
}

func buildPrecondition(schema *domain.Schema, spec SlotSpec) (domain.Precondition, error) {
	var parts []domain.Precondition
	if spec.Type != "" {
		if schema != nil {
			if _, ok := schema.Type(spec.Type); !ok {
				return nil, fmt.Errorf("slot %s: unknown type %q", spec.Name, spec.Type)
			}
		}
		parts = append(parts, precondition.CheckTypeOf(schema, spec.Type))
	}
	if spec.Value != "" {
		if spec.Type == "" {
			return nil, fmt.Errorf("slot %s: value needs a type", spec.Name)
		}
		tmpl, err := schema.New(spec.Type, spec.Value)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", spec.Name, err)
		}
		parts = append(parts, precondition.CheckValue(tmpl))
	}
	if spec.Contains != "" {
		needle := spec.Contains
		parts = append(parts, precondition.CheckString(
			func(s string) float64 {
				if strings.Contains(s, needle) {
					return 1.0
				}
				return 0.0
			},
			func(string) string { return "contains " + needle },
		))
	}
	if spec.Version != nil {
		vp, err := buildVersion(spec.Version)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", spec.Name, err)
		}
		parts = append(parts, vp...)
	}

	switch len(parts) {
	case 0:
		return nil, fmt.Errorf("slot %s has no condition", spec.Name)
	case 1:
		return parts[0], nil
	}
	return precondition.CompareValue(
		func(f *domain.Fact) float64 {
			out := 1.0
			for _, p := range parts {
				out = min(out, p.Holds(f))
			}
			return out
		},
		func(f *domain.Fact) string {
			docs := make([]string, len(parts))
			for i, p := range parts {
				docs[i] = p.Doc(f)
			}
			return strings.Join(docs, "; ")
		},
	), nil
}

func buildVersion(spec *VersionSpec) ([]domain.Precondition, error) {
	var out []domain.Precondition
	if len(spec.Between) > 0 {
		if len(spec.Between) != 2 {
			return nil, fmt.Errorf("version between needs two bounds")
		}
		lo, err := domain.ParseVersion(spec.Between[0])
		if err != nil {
			return nil, err
		}
		hi, err := domain.ParseVersion(spec.Between[1])
		if err != nil {
			return nil, err
		}
		out = append(out, precondition.VersionBetween(lo, hi))
	}
	if spec.Below != "" {
		v, err := domain.ParseVersion(spec.Below)
		if err != nil {
			return nil, err
		}
		out = append(out, precondition.VersionBelow(v))
	}
	if spec.AtLeast != "" {
		v, err := domain.ParseVersion(spec.AtLeast)
		if err != nil {
			return nil, err
		}
		out = append(out, precondition.VersionAtLeast(v))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty version condition")
	}
	return out, nil
}

func buildMeta(spec *MetaSpec) (domain.MetaPrecondition, error) {
	if spec == nil {
		return precondition.Static(1.0), nil
	}

	var metas []domain.MetaPrecondition
	if spec.Static != nil {
		metas = append(metas, precondition.Static(*spec.Static))
	}
	if p := spec.IsParent; p != nil {
		depth, err := metaDepth(p.Depth)
		if err != nil {
			return nil, fmt.Errorf("is_parent: %w", err)
		}
		metas = append(metas, precondition.IsParent(p.Parent, p.Children, depth))
	}
	if p := spec.IdenticalParents; p != nil {
		depth, err := metaDepth(p.Depth)
		if err != nil {
			return nil, fmt.Errorf("identical_parents: %w", err)
		}
		metas = append(metas, precondition.IdenticalParents(p.Slots, depth, nil))
	}
	if len(spec.IdenticalFacts) > 0 {
		metas = append(metas, precondition.IdenticalFacts(spec.IdenticalFacts, nil))
	}
	if len(spec.IdenticalAncestors) > 0 {
		metas = append(metas, precondition.IdenticalAncestors(spec.IdenticalAncestors))
	}
	if p := spec.EmptyChild; p != nil {
		metas = append(metas, precondition.CheckEmptyChild(p.Parent, p.Slot))
	}
	if spec.Not != nil {
		inner, err := buildMeta(spec.Not)
		if err != nil {
			return nil, err
		}
		metas = append(metas, precondition.Invert(inner))
	}
	if len(spec.All) > 0 {
		var all []domain.MetaPrecondition
		for i := range spec.All {
			m, err := buildMeta(&spec.All[i])
			if err != nil {
				return nil, err
			}
			all = append(all, m)
		}
		metas = append(metas, precondition.Merge(all, precondition.Min))
	}

	switch len(metas) {
	case 0:
		return precondition.Static(1.0), nil
	case 1:
		return metas[0], nil
	}
	return nil, fmt.Errorf("meta sets %d combinators; wrap them in all", len(metas))
}

func metaDepth(d *int) (int, error) {
	if d == nil {
		return 1, nil
	}
	if *d < 0 {
		return 0, fmt.Errorf("negative depth %d", *d)
	}
	return *d, nil
}
