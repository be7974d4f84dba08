// Package precondition is the library of fact predicates and binding
// combinators modules build their DNFs from.
package precondition

import (
	"fmt"

	"github.com/Harshitk-cp/pinaht/internal/domain"
)

type checkType struct {
	typ    string
	schema *domain.Schema
}

// CheckType holds for facts of exactly the named type.
func CheckType(typ string) domain.Precondition {
	return checkType{typ: typ}
}

// CheckTypeOf holds for facts of the named type or of a type extending it.
func CheckTypeOf(schema *domain.Schema, typ string) domain.Precondition {
	return checkType{typ: typ, schema: schema}
}

func (c checkType) Holds(f *domain.Fact) float64 {
	if f == nil {
		return 0.0
	}
	if c.schema.IsA(f.Type(), c.typ) {
		return 1.0
	}
	return 0.0
}

func (c checkType) Doc(f *domain.Fact) string {
	return fmt.Sprintf("checks if %s is of type %s", f, c.typ)
}

func (c checkType) String() string { return "CheckType(" + c.typ + ")" }

type checkValue struct {
	template *domain.Fact
}

// CheckValue grades facts by their fuzzy equality to template.
func CheckValue(template *domain.Fact) domain.Precondition {
	return checkValue{template: template}
}

func (c checkValue) Holds(f *domain.Fact) float64 {
	if f == nil {
		return 0.0
	}
	return f.FuzzyEq(c.template)
}

func (c checkValue) Doc(f *domain.Fact) string {
	return fmt.Sprintf("checks if %s is fuzzy equal to the value %s", f, c.template)
}

func (c checkValue) String() string {
	return fmt.Sprintf("CheckValue(%s=%s)", c.template.Type(), c.template)
}

type compareValue struct {
	fn       func(*domain.Fact) float64
	describe func(*domain.Fact) string
}

// CompareValue grades facts with an arbitrary function. describe may be nil.
func CompareValue(fn func(*domain.Fact) float64, describe func(*domain.Fact) string) domain.Precondition {
	return compareValue{fn: fn, describe: describe}
}

func (c compareValue) Holds(f *domain.Fact) float64 {
	if f == nil {
		return 0.0
	}
	return clamp(c.fn(f))
}

func (c compareValue) Doc(f *domain.Fact) string {
	info := "no information"
	if c.describe != nil {
		info = c.describe(f)
	}
	return fmt.Sprintf("checks if %s fulfills the function f: %s", f, info)
}

func (c compareValue) String() string { return "CompareValue" }

type checkString struct {
	fn       func(string) float64
	describe func(string) string
}

// CheckString grades the value of scalar leaves with fn. Other facts score 0.
func CheckString(fn func(string) float64, describe func(string) string) domain.Precondition {
	return checkString{fn: fn, describe: describe}
}

func (c checkString) Holds(f *domain.Fact) float64 {
	if f == nil || f.Kind() != domain.KindLeafExtends {
		return 0.0
	}
	return clamp(c.fn(f.Value()))
}

func (c checkString) Doc(f *domain.Fact) string {
	info := "no information"
	if c.describe != nil {
		info = c.describe(f.Value())
	}
	return fmt.Sprintf("checks if the string %s fulfills the function f: %s", f, info)
}

func (c checkString) String() string { return "CheckString" }

type checkVersion struct {
	fn   func(domain.Version) float64
	desc string
}

// CheckVersion grades Version leaves with fn. Other facts, and versions that
// do not parse, score 0.
func CheckVersion(fn func(domain.Version) float64, description string) domain.Precondition {
	if description == "" {
		description = "no information"
	}
	return checkVersion{fn: fn, desc: description}
}

func (c checkVersion) Holds(f *domain.Fact) float64 {
	if f == nil || f.Type() != domain.VersionType {
		return 0.0
	}
	v, err := domain.ParseVersion(f.Value())
	if err != nil {
		return 0.0
	}
	return clamp(c.fn(v))
}

func (c checkVersion) Doc(f *domain.Fact) string {
	return fmt.Sprintf("checks if the version %s fulfills the function f: %s", f, c.desc)
}

func (c checkVersion) String() string { return "CheckVersion(" + c.desc + ")" }

// VersionBetween holds for versions in [lo, hi].
func VersionBetween(lo, hi domain.Version) domain.Precondition {
	return CheckVersion(func(v domain.Version) float64 {
		return boolScore(v.Compare(lo) >= 0 && v.Compare(hi) <= 0)
	}, fmt.Sprintf("%s <= version <= %s", lo, hi))
}

// VersionBelow holds for versions strictly older than v.
func VersionBelow(v domain.Version) domain.Precondition {
	return CheckVersion(func(x domain.Version) float64 {
		return boolScore(x.Compare(v) < 0)
	}, fmt.Sprintf("version < %s", v))
}

func VersionAtLeast(v domain.Version) domain.Precondition {
	return CheckVersion(func(x domain.Version) float64 {
		return boolScore(x.Compare(v) >= 0)
	}, fmt.Sprintf("version >= %s", v))
}

func boolScore(ok bool) float64 {
	if ok {
		return 1.0
	}
	return 0.0
}

func clamp(v float64) float64 {
	switch {
	case v != v || v < 0:
		return 0.0
	case v > 1:
		return 1.0
	}
	return v
}
