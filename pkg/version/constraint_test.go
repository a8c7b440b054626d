package version

import "testing"

func TestParseConstraintTypes(t *testing.T) {
	tests := []struct {
		raw      string
		expected ConstraintType
	}{
		{"*", ConstraintAny},
		{"", ConstraintAny},
		{"latest", ConstraintAny},
		{"^1.2.0", ConstraintCaret},
		{"~1.2.0", ConstraintTilde},
		{">=1.0.0", ConstraintRange},
		{">1.0.0", ConstraintRange},
		{"<=2.0.0", ConstraintRange},
		{"<2.0.0", ConstraintRange},
		{"1.0.0 - 2.0.0", ConstraintRange},
		{"1.2.3", ConstraintExact},
	}

	for _, tt := range tests {
		c := ParseConstraint(tt.raw)
		if c.Type != tt.expected {
			t.Errorf("ParseConstraint(%q).Type = %s, expected %s", tt.raw, c.Type, tt.expected)
		}
	}
}

func TestCaretBounds(t *testing.T) {
	c := ParseConstraint("^1.2.0")
	if Compare(c.Min, Version{1, 2, 0}) != 0 {
		t.Errorf("expected min 1.2.0, got %v", c.Min)
	}
	if Compare(c.Max, Version{2, 0, 0}) != 0 {
		t.Errorf("expected max 2.0.0, got %v", c.Max)
	}
}

func TestTildeBounds(t *testing.T) {
	c := ParseConstraint("~1.2.4")
	if Compare(c.Min, Version{1, 2, 4}) != 0 {
		t.Errorf("expected min 1.2.4, got %v", c.Min)
	}
	if Compare(c.Max, Version{1, 3, 0}) != 0 {
		t.Errorf("expected max 1.3.0, got %v", c.Max)
	}
}

func TestGreaterThanBumpsPatch(t *testing.T) {
	c := ParseConstraint(">1.2.3")
	if Compare(c.Min, Version{1, 2, 4}) != 0 {
		t.Errorf("expected min 1.2.4, got %v", c.Min)
	}
	if c.Max != nil {
		t.Errorf("expected no max, got %v", c.Max)
	}
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		version    string
		constraint string
		expected   bool
	}{
		// Wildcards match everything.
		{"0.0.1", "*", true},
		{"99.99.99", "*", true},
		{"1.0.0", "latest", true},

		// Caret: same major.
		{"1.9.9", "^1.2.0", true},
		{"1.2.0", "^1.2.0", true},
		{"2.0.0", "^1.2.0", false},
		{"1.1.9", "^1.2.0", false},

		// Tilde: same major.minor.
		{"1.2.9", "~1.2.0", true},
		{"1.3.0", "~1.2.0", false},
		{"1.2.0", "~1.2.0", true},

		// Open ranges.
		{"1.0.0", ">=1.0.0", true},
		{"0.9.9", ">=1.0.0", false},
		{"1.0.0", ">1.0.0", false},
		{"1.0.1", ">1.0.0", true},
		{"1.9.9", "<2.0.0", true},
		{"2.0.0", "<2.0.0", false},

		// The upper bound is exclusive even for "<=".
		{"2.0.0", "<=2.0.0", false},
		{"1.9.9", "<=2.0.0", true},

		// Hyphen ranges.
		{"1.5.0", "1.0.0 - 2.0.0", true},
		{"2.0.0", "1.0.0 - 2.0.0", false},
		{"0.9.0", "1.0.0 - 2.0.0", false},

		// Exact.
		{"1.2.3", "1.2.3", true},
		{"1.2.3", "1.2.4", false},
		{"1.2", "1.2.0", true},
	}

	for _, tt := range tests {
		got := SatisfiesString(tt.version, tt.constraint)
		if got != tt.expected {
			t.Errorf("Satisfies(%q, %q) = %v, expected %v", tt.version, tt.constraint, got, tt.expected)
		}
	}
}
