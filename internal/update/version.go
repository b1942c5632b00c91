package update

import (
	"strconv"
	"strings"
)

// invalidComponent stands in for a segment with no leading digits. It sorts
// below every real component and equal to itself.
const invalidComponent = -1

// Version is a dot-delimited version parsed into numeric components.
// "1.0.14" becomes [1 0 14]; the empty string has no components.
type Version struct {
	parts []int
	raw   string
}

// ParseVersion parses s without failing. Each segment contributes the value
// of its leading decimal digits ("3-beta" -> 3); a segment without any
// leading digits becomes an invalid component.
func ParseVersion(s string) Version {
	v := Version{raw: s}
	if s == "" {
		return v
	}
	segments := strings.Split(s, ".")
	v.parts = make([]int, len(segments))
	for i, seg := range segments {
		v.parts[i] = parseComponent(seg)
	}
	return v
}

func parseComponent(seg string) int {
	seg = strings.TrimLeft(seg, " \t\n")
	end := 0
	for end < len(seg) && seg[end] >= '0' && seg[end] <= '9' {
		end++
	}
	if end == 0 {
		return invalidComponent
	}
	n, err := strconv.Atoi(seg[:end])
	if err != nil {
		return invalidComponent
	}
	return n
}

// String returns the text the version was parsed from.
func (v Version) String() string {
	return v.raw
}

// Len returns the number of components.
func (v Version) Len() int {
	return len(v.parts)
}

// Component returns the component at i and whether it is numeric.
func (v Version) Component(i int) (int, bool) {
	if i < 0 || i >= len(v.parts) {
		return 0, false
	}
	n := v.parts[i]
	return n, n != invalidComponent
}

// Valid reports whether the version has at least one component and all of
// them are numeric.
func (v Version) Valid() bool {
	if len(v.parts) == 0 {
		return false
	}
	for _, p := range v.parts {
		if p == invalidComponent {
			return false
		}
	}
	return true
}

// IsNewer reports whether a is newer than b. Components are compared by
// index; once a runs out it is never newer, and once b runs out while a
// still has a component, a is newer. So "1.2.0" is newer than "1.2" but
// "1.2" is not newer than "1.2.0".
func IsNewer(a, b Version) bool {
	for i := 0; ; i++ {
		if i >= len(a.parts) {
			return false
		}
		if i >= len(b.parts) || a.parts[i] > b.parts[i] {
			return true
		}
		if a.parts[i] < b.parts[i] {
			return false
		}
	}
}

// IsEqual reports whether a and b have the same length and components.
func IsEqual(a, b Version) bool {
	if len(a.parts) != len(b.parts) {
		return false
	}
	for i := range a.parts {
		if a.parts[i] != b.parts[i] {
			return false
		}
	}
	return true
}
