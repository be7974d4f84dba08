package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// VersionType is the custom leaf type holding a Version.
const VersionType = "Version"

// Version is a dotted software version with an optional alphabetic suffix on
// each part, as printed by banners ("2.4.49", "1.0.1f", "7.2p2").
type Version struct {
	parts []versionPart
	raw   string
}

type versionPart struct {
	num    int
	suffix string
}

func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Version{}, fmt.Errorf("empty version")
	}
	v := Version{raw: raw}
	for _, field := range strings.Split(raw, ".") {
		i := 0
		for i < len(field) && field[i] >= '0' && field[i] <= '9' {
			i++
		}
		if i == 0 {
			return Version{}, fmt.Errorf("invalid version %q: part %q has no number", s, field)
		}
		n, err := strconv.Atoi(field[:i])
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		v.parts = append(v.parts, versionPart{num: n, suffix: field[i:]})
	}
	return v, nil
}

// Compare returns -1, 0 or 1. Missing parts count as 0 with no suffix, so
// "1.2" equals "1.2.0".
func (v Version) Compare(o Version) int {
	n := max(len(v.parts), len(o.parts))
	for i := 0; i < n; i++ {
		a, b := v.part(i), o.part(i)
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		if c := strings.Compare(a.suffix, b.suffix); c != 0 {
			return c
		}
	}
	return 0
}

func (v Version) part(i int) versionPart {
	if i < len(v.parts) {
		return v.parts[i]
	}
	return versionPart{}
}

func (v Version) String() string { return v.raw }
