package domain

import "testing"

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2.3.4", "2.3.4", 0},
		{"1.2", "1.2.0", 0},
		{"2.3.4", "2.3.10", -1},
		{"2.4.49", "2.4.5", 1},
		{"1.0.1f", "1.0.1g", -1},
		{"1.0.1", "1.0.1f", -1},
		{"7.2p2", "7.2p2", 0},
		{"10", "9.9.9", 1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			a, err := ParseVersion(tt.a)
			if err != nil {
				t.Fatal(err)
			}
			b, err := ParseVersion(tt.b)
			if err != nil {
				t.Fatal(err)
			}
			if got := a.Compare(b); got != tt.want {
				t.Errorf("Compare(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if got := b.Compare(a); got != -tt.want {
				t.Errorf("Compare(%s, %s) = %d, want %d", tt.b, tt.a, got, -tt.want)
			}
		})
	}
}

func TestParseVersionInvalid(t *testing.T) {
	for _, s := range []string{"", "  ", "v1.2", "1..2", "beta"} {
		if _, err := ParseVersion(s); err == nil {
			t.Errorf("ParseVersion(%q) should fail", s)
		}
	}
}

func TestVersionString(t *testing.T) {
	v, err := ParseVersion(" 2.3.4 ")
	if err != nil {
		t.Fatal(err)
	}
	if v.String() != "2.3.4" {
		t.Errorf("String() = %q", v.String())
	}
}
