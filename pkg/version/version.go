// Package version implements the simplified version and constraint semantics
// used by the plugin compatibility planner.
//
// The grammar is deliberately not full semver: segments are reduced to their
// leading digit run, and prerelease/build metadata is ignored. Installed
// plugins were published against these exact rules, so they must not be
// silently upgraded to strict semver.
package version

import "strings"

// Version is a parsed version: one integer per dotted segment.
type Version []int

// Parse parses a version string. Leading constraint sigils (v, ^, ~, >, <, =)
// are stripped, the remainder is split on '.', and each segment contributes
// its leading digit run (0 when the segment has none).
func Parse(raw string) Version {
	s := strings.TrimSpace(raw)
	s = strings.TrimLeft(s, "v^~>=<")

	if s == "" {
		return Version{0}
	}

	segments := strings.Split(s, ".")
	v := make(Version, 0, len(segments))
	for _, seg := range segments {
		v = append(v, leadingDigits(seg))
	}
	return v
}

// leadingDigits returns the integer value of the digit run at the start of s,
// or 0 when s does not begin with a digit.
func leadingDigits(s string) int {
	n := 0
	ok := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
		ok = true
	}
	if !ok {
		return 0
	}
	return n
}

// Compare compares a and b component-wise, returning:
//
//	-1 if a < b
//	 0 if a == b
//	 1 if a > b
//
// Missing trailing components compare as 0, so "1.2" == "1.2.0".
func Compare(a, b Version) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}

	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

// CompareStrings parses both arguments and compares them.
func CompareStrings(a, b string) int {
	return Compare(Parse(a), Parse(b))
}

// component returns the i-th component of v, or 0 when absent.
func (v Version) component(i int) int {
	if i < len(v) {
		return v[i]
	}
	return 0
}

// String renders v as dotted decimal.
func (v Version) String() string {
	if len(v) == 0 {
		return "0"
	}
	var sb strings.Builder
	for i, c := range v {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(itoa(c))
	}
	return sb.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
