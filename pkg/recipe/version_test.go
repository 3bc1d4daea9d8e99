package recipe

import (
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		want    string
	}{
		{name: "simple", input: "1.2.3", want: "1.2.3"},
		{name: "single component", input: "7", want: "7"},
		{name: "alpha component", input: "1.2.beta", want: "1.2.beta"},
		{name: "empty", input: "", wantErr: true},
		{name: "empty component", input: "1..2", wantErr: true},
		{name: "whitespace", input: " 1.2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVersion(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.String() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, v.String())
			}
		})
	}
}

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.3", "1.2.3", 0},
		{"1.2", "1.2.0", 0},
		{"1.2.3", "1.2.4", -1},
		{"2.0", "1.9.9", 1},
		{"1.10", "1.9", 1},
		{"1.2.beta", "1.2.beta", 0},
		{"1.2.alpha", "1.2.beta", -1},
		// Numeric components sort after non-numeric ones.
		{"1.2.1", "1.2.rc1", 1},
	}

	for _, tt := range tests {
		a := MustParseVersion(tt.a)
		b := MustParseVersion(tt.b)
		if got := a.Compare(b); got != tt.want {
			t.Errorf("Compare(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := b.Compare(a); got != -tt.want {
			t.Errorf("Compare(%s, %s) = %d, want %d", tt.b, tt.a, got, -tt.want)
		}
	}
}

func TestParseConstraint(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		any     bool
	}{
		{name: "empty is any", input: "", any: true},
		{name: "star is any", input: "*", any: true},
		{name: "bare version pins", input: "1.2.3"},
		{name: "minimum", input: ">=1.2"},
		{name: "range", input: ">=1.2 <2.0"},
		{name: "exclusion", input: "!=1.4"},
		{name: "bad operator", input: "~1.2", wantErr: true},
		{name: "caret unsupported", input: "^1.2", wantErr: true},
		{name: "missing version", input: ">=", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseConstraint(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.IsAny() != tt.any {
				t.Errorf("IsAny() = %v, want %v", c.IsAny(), tt.any)
			}
		})
	}
}

func TestConstraintMatches(t *testing.T) {
	tests := []struct {
		constraint string
		version    string
		want       bool
	}{
		{"", "1.0", true},
		{"1.2.3", "1.2.3", true},
		{"1.2.3", "1.2.4", false},
		{">=1.2", "1.2", true},
		{">=1.2", "1.1.9", false},
		{">=1.2 <2.0", "1.5", true},
		{">=1.2 <2.0", "2.0", false},
		{">=1.2 <2.0", "2.1", false},
		{">=1.0 !=1.4", "1.4", false},
		{">=1.0 !=1.4", "1.5", true},
		{"<2", "1.99.99", true},
	}

	for _, tt := range tests {
		c, err := ParseConstraint(tt.constraint)
		if err != nil {
			t.Fatalf("ParseConstraint(%q): %v", tt.constraint, err)
		}
		v := MustParseVersion(tt.version)
		if got := c.Matches(v); got != tt.want {
			t.Errorf("Matches(%q, %s) = %v, want %v", tt.constraint, tt.version, got, tt.want)
		}
	}
}

func TestConstraintAnd(t *testing.T) {
	a, err := ParseConstraint(">=1.2")
	if err != nil {
		t.Fatalf("ParseConstraint: %v", err)
	}
	b, err := ParseConstraint("<2.0")
	if err != nil {
		t.Fatalf("ParseConstraint: %v", err)
	}

	combined := a.And(b)
	if combined.Matches(MustParseVersion("2.5")) {
		t.Errorf("combined constraint should reject 2.5")
	}
	if !combined.Matches(MustParseVersion("1.5")) {
		t.Errorf("combined constraint should accept 1.5")
	}

	// And with the any constraint keeps the original.
	any, _ := ParseConstraint("")
	if got := a.And(any); !got.Matches(MustParseVersion("9.0")) || got.Matches(MustParseVersion("1.0")) {
		t.Errorf("And with any constraint changed satisfying set")
	}
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		input    string
		wantRepo string
		wantName string
	}{
		{input: "zlib", wantRepo: "", wantName: "zlib"},
		{input: "core:zlib", wantRepo: "core", wantName: "zlib"},
		{input: "_:odd:name", wantRepo: "", wantName: "odd:name"},
		{input: "extra:lib:x", wantRepo: "extra", wantName: "lib:x"},
	}

	for _, tt := range tests {
		ref := ParseRef(tt.input)
		if ref.Repo != tt.wantRepo || ref.Name != tt.wantName {
			t.Errorf("ParseRef(%q) = {%q, %q}, want {%q, %q}",
				tt.input, ref.Repo, ref.Name, tt.wantRepo, tt.wantName)
		}
	}
}
