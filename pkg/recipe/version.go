package recipe

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is an ordered package version. Versions are dot-separated
// components; numeric components compare numerically, everything else
// compares lexicographically. A missing component sorts before zero, so
// "1.2" < "1.2.0" is false ("1.2" == "1.2.0" numerically) but
// "1.2" < "1.2.1" holds.
type Version struct {
	raw   string
	parts []versionPart
}

type versionPart struct {
	num     int64
	str     string
	numeric bool
}

// ParseVersion parses a version string such as "1.2.3" or "2.0.rc1".
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return Version{}, fmt.Errorf("empty version string")
	}

	components := strings.Split(s, ".")
	parts := make([]versionPart, 0, len(components))
	for _, c := range components {
		if c == "" {
			return Version{}, fmt.Errorf("malformed version %q: empty component", s)
		}
		for _, r := range c {
			if !isVersionRune(r) {
				return Version{}, fmt.Errorf("malformed version %q: bad character %q", s, r)
			}
		}
		if n, err := strconv.ParseInt(c, 10, 64); err == nil {
			parts = append(parts, versionPart{num: n, numeric: true})
		} else {
			parts = append(parts, versionPart{str: c})
		}
	}

	return Version{raw: s, parts: parts}, nil
}

func isVersionRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		return true
	case r == '_', r == '+', r == '-':
		return true
	}
	return false
}

// MustParseVersion parses a version and panics on failure. For use in
// tests and static tables only.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1, 0, or 1 if v is less than, equal to, or greater
// than other.
func (v Version) Compare(other Version) int {
	n := len(v.parts)
	if len(other.parts) > n {
		n = len(other.parts)
	}

	for i := 0; i < n; i++ {
		var a, b versionPart
		if i < len(v.parts) {
			a = v.parts[i]
		} else {
			a = versionPart{num: 0, numeric: true}
		}
		if i < len(other.parts) {
			b = other.parts[i]
		} else {
			b = versionPart{num: 0, numeric: true}
		}

		if c := comparePart(a, b); c != 0 {
			return c
		}
	}

	return 0
}

// comparePart orders two version components. Numeric components sort
// after non-numeric ones of the same position ("1.0" > "1.rc1").
func comparePart(a, b versionPart) int {
	switch {
	case a.numeric && b.numeric:
		if a.num < b.num {
			return -1
		}
		if a.num > b.num {
			return 1
		}
		return 0
	case a.numeric:
		return 1
	case b.numeric:
		return -1
	default:
		return strings.Compare(a.str, b.str)
	}
}

// Equal reports whether the two versions compare as the same value.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

// IsZero reports whether the version is the unparsed zero value.
func (v Version) IsZero() bool {
	return len(v.parts) == 0
}

func (v Version) String() string {
	return v.raw
}

// ConstraintOp is a version predicate operator.
type ConstraintOp string

const (
	// OpExact pins a dependency to exactly one version.
	OpExact ConstraintOp = "=="

	// OpMinimum requires at least the given version.
	OpMinimum ConstraintOp = ">="

	// OpBelow bounds a range exclusively from above.
	OpBelow ConstraintOp = "<"

	// OpExclude rules out a single version.
	OpExclude ConstraintOp = "!="
)

// Predicate is a single version test.
type Predicate struct {
	Op      ConstraintOp
	Version Version
}

// Matches reports whether the predicate accepts v.
func (p Predicate) Matches(v Version) bool {
	c := v.Compare(p.Version)
	switch p.Op {
	case OpExact:
		return c == 0
	case OpMinimum:
		return c >= 0
	case OpBelow:
		return c < 0
	case OpExclude:
		return c != 0
	default:
		return false
	}
}

func (p Predicate) String() string {
	return string(p.Op) + p.Version.String()
}

// Constraint is a conjunction of version predicates. The zero value
// accepts every version. Constraints compose by intersection: a version
// satisfies the constraint only if it satisfies every predicate.
type Constraint struct {
	preds []Predicate
}

// AnyVersion is the constraint that accepts all versions.
func AnyVersion() Constraint {
	return Constraint{}
}

// ParseConstraint parses a constraint expression: one or more
// space-separated predicates such as "==1.0", ">=1.2 <2.0", or "!=1.5".
// A bare version is shorthand for an exact pin. An empty string accepts
// any version.
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return AnyVersion(), nil
	}

	var preds []Predicate
	for _, tok := range strings.Fields(s) {
		op := OpExact
		rest := tok
		switch {
		case strings.HasPrefix(tok, "=="):
			rest = tok[2:]
		case strings.HasPrefix(tok, ">="):
			op = OpMinimum
			rest = tok[2:]
		case strings.HasPrefix(tok, "!="):
			op = OpExclude
			rest = tok[2:]
		case strings.HasPrefix(tok, "<"):
			op = OpBelow
			rest = tok[1:]
		}

		v, err := ParseVersion(rest)
		if err != nil {
			return Constraint{}, fmt.Errorf("malformed constraint %q: %w", tok, err)
		}
		preds = append(preds, Predicate{Op: op, Version: v})
	}

	return Constraint{preds: preds}, nil
}

// MustParseConstraint parses a constraint and panics on failure.
func MustParseConstraint(s string) Constraint {
	c, err := ParseConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Matches reports whether v satisfies every predicate.
func (c Constraint) Matches(v Version) bool {
	for _, p := range c.preds {
		if !p.Matches(v) {
			return false
		}
	}
	return true
}

// And returns the intersection of two constraints.
func (c Constraint) And(other Constraint) Constraint {
	if len(other.preds) == 0 {
		return c
	}
	if len(c.preds) == 0 {
		return other
	}
	preds := make([]Predicate, 0, len(c.preds)+len(other.preds))
	preds = append(preds, c.preds...)
	preds = append(preds, other.preds...)
	return Constraint{preds: preds}
}

// IsAny reports whether the constraint accepts every version.
func (c Constraint) IsAny() bool {
	return len(c.preds) == 0
}

func (c Constraint) String() string {
	if len(c.preds) == 0 {
		return "*"
	}
	parts := make([]string, len(c.preds))
	for i, p := range c.preds {
		parts[i] = p.String()
	}
	return strings.Join(parts, " ")
}
