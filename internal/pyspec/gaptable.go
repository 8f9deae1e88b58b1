package pyspec

import (
	"fmt"

	"github.com/wheelhouse-dev/wheelhouse/internal/pep440"
)

// maxKnownMinor records the highest minor version released for each CPython
// major line, used to bound wildcard-exclude enumeration when a union's gap
// crosses a major version boundary (e.g. a gap from 2.6 through 3.2 needs to
// know 2.x tops out at 2.7 before it can start excluding 3.0, 3.1).
//
// This is deliberately a snapshot, not a moving target: widening it only
// ever makes gap-filling unions enumerate a few more (harmless, because
// nonexistent) excluded wildcards, never fewer.
var maxKnownMinor = map[int]int{
	0: 9,
	1: 6,
	2: 7,
	3: 13,
}

// maxMajorVersion returns the first major line above every released
// CPython version (4, given the table above): the point past which a
// requires-python bound carries no real information. IsSubset/IsSuperset
// use it to relax upper bounds on either side of the comparison.
func maxMajorVersion() *pep440.Version {
	max := 0
	for major := range maxKnownMinor {
		if major > max {
			max = major
		}
	}
	v, err := pep440.Parse(fmt.Sprintf("%d", max+1))
	if err != nil {
		panic(err)
	}
	return v
}

func majorMinor(v *pep440.Version) (int, int) {
	rel := v.Release()
	major := 0
	minor := 0
	if len(rel) > 0 {
		major = rel[0]
	}
	if len(rel) > 1 {
		minor = rel[1]
	}
	return major, minor
}

// nextMinor returns the (major, minor) immediately following the given
// one, rolling over to the next major line once maxKnownMinor is reached.
func nextMinor(major, minor int) (int, int) {
	if max, ok := maxKnownMinor[major]; ok && minor >= max {
		return major + 1, 0
	}
	return major, minor + 1
}

// minorGapExcludes enumerates the minor-version wildcards strictly between
// a disjoint range ending at (upper, upperOpen) and one starting at (lower,
// lowerOpen), inclusive of both endpoints' own minor version when the
// corresponding bound excludes it.
func minorGapExcludes(upper *pep440.Version, upperOpen bool, lower *pep440.Version, lowerOpen bool) []*pep440.Version {
	startMajor, startMinor := majorMinor(upper)
	if !upperOpen {
		startMajor, startMinor = nextMinor(startMajor, startMinor)
	}
	endMajor, endMinor := majorMinor(lower)
	if lowerOpen {
		endMajor, endMinor = nextMinor(endMajor, endMinor)
	}

	var out []*pep440.Version
	major, minor := startMajor, startMinor
	for {
		if major > endMajor || (major == endMajor && minor >= endMinor) {
			break
		}
		if v, err := pep440.Parse(fmt.Sprintf("%d.%d.*", major, minor)); err == nil {
			out = append(out, v)
		}
		major, minor = nextMinor(major, minor)
		if len(out) > 64 {
			// Bails out on pathological ranges (e.g. an unbounded gap)
			// rather than enumerating forever; callers only ever hit this
			// with a finite gap per the union() contract above.
			break
		}
	}
	return out
}
