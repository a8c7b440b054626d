package version

import "strings"

// ConstraintType tags which fields of a Constraint are populated.
type ConstraintType string

const (
	ConstraintAny   ConstraintType = "any"
	ConstraintExact ConstraintType = "exact"
	ConstraintCaret ConstraintType = "caret"
	ConstraintTilde ConstraintType = "tilde"
	ConstraintRange ConstraintType = "range"
)

// Constraint is a parsed version requirement. Exactly the fields relevant to
// Type are non-nil: Min/Max for caret, tilde and range; Exact for exact.
type Constraint struct {
	Type  ConstraintType
	Min   Version
	Max   Version
	Exact Version
}

// ParseConstraint parses a constraint expression:
//
//	"*", "" and "latest"  match anything
//	"^1.2.3"              >=1.2.3 <2.0.0
//	"~1.2.3"              >=1.2.3 <1.3.0
//	">=1.2.3", ">1.2.3"   lower bounds (">" bumps the patch component)
//	"<=1.2.3", "<1.2.3"   upper bounds (both exclusive, see Satisfies)
//	"1.0.0 - 2.0.0"       bounded range
//	anything else         exact match
func ParseConstraint(raw string) Constraint {
	s := strings.TrimSpace(raw)

	switch s {
	case "", "*", "latest":
		return Constraint{Type: ConstraintAny}
	}

	switch {
	case strings.HasPrefix(s, "^"):
		min := Parse(s[1:])
		return Constraint{
			Type: ConstraintCaret,
			Min:  min,
			Max:  Version{min.component(0) + 1, 0, 0},
		}

	case strings.HasPrefix(s, "~"):
		min := Parse(s[1:])
		return Constraint{
			Type: ConstraintTilde,
			Min:  min,
			Max:  Version{min.component(0), min.component(1) + 1, 0},
		}

	case strings.HasPrefix(s, ">="):
		return Constraint{Type: ConstraintRange, Min: Parse(s[2:])}

	case strings.HasPrefix(s, ">"):
		min := Parse(s[1:])
		return Constraint{Type: ConstraintRange, Min: bumpPatch(min)}

	case strings.HasPrefix(s, "<="):
		return Constraint{Type: ConstraintRange, Max: Parse(s[2:])}

	case strings.HasPrefix(s, "<"):
		return Constraint{Type: ConstraintRange, Max: Parse(s[1:])}
	}

	if lo, hi, ok := strings.Cut(s, " - "); ok {
		return Constraint{Type: ConstraintRange, Min: Parse(lo), Max: Parse(hi)}
	}

	return Constraint{Type: ConstraintExact, Exact: Parse(s)}
}

// bumpPatch returns v with its patch (third) component incremented,
// normalized to at least three components.
func bumpPatch(v Version) Version {
	out := Version{v.component(0), v.component(1), v.component(2) + 1}
	for i := 3; i < len(v); i++ {
		out = append(out, v[i])
	}
	return out
}

// Satisfies reports whether v meets c. The lower bound is inclusive and the
// upper bound exclusive for every ranged constraint type, which makes "<=X"
// behave as "<X". That asymmetry is part of the published behavior.
func Satisfies(v Version, c Constraint) bool {
	switch c.Type {
	case ConstraintAny:
		return true
	case ConstraintExact:
		return Compare(v, c.Exact) == 0
	default:
		if c.Min != nil && Compare(v, c.Min) < 0 {
			return false
		}
		if c.Max != nil && Compare(v, c.Max) >= 0 {
			return false
		}
		return true
	}
}

// SatisfiesString parses both arguments and tests satisfaction.
func SatisfiesString(version, constraint string) bool {
	return Satisfies(Parse(version), ParseConstraint(constraint))
}
