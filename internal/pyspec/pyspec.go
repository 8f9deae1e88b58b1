// Package pyspec implements PySpecSet, the Python-version-range
// specialization of a version specifier set: a lower/upper bound pair plus
// a sorted set of excluded points, closed under intersection and union.
//
// The bound/open-flag representation is adapted from deps.dev/util/semver's
// span type (min/max versions with independent minOpen/maxOpen flags);
// pyspec additionally tracks an excluded-points set, which span.go has no
// equivalent of, to support requirement strings like "!=3.0.*,!=3.1.*".
package pyspec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wheelhouse-dev/wheelhouse/internal/pep440"
)

// PySpecSet is a conjunction of PEP 440 specifiers restricted to the shape
// a Python version range can take: a half-open interval [lower, upper) or
// [lower, upper] plus a set of excluded exact or wildcard versions.
//
// The zero value is not valid; use AllowAll or Parse.
type PySpecSet struct {
	impossible bool
	allowAll   bool

	lower     *pep440.Version
	lowerOpen bool
	upper     *pep440.Version
	upperOpen bool

	// excludes holds points removed from [lower, upper) that a bound shift
	// alone cannot express: either "!=" clauses in the interior of the
	// range, or the wildcard gap entries union() synthesizes.
	excludes []*pep440.Version
}

// AllowAll returns the unconstrained set (matches every version).
func AllowAll() PySpecSet {
	return PySpecSet{lower: pep440.Min(), upper: pep440.Max(), upperOpen: true, allowAll: true}
}

// Impossible returns the empty set (matches no version).
func Impossible() PySpecSet {
	return PySpecSet{impossible: true}
}

// Parse parses a comma-separated specifier string such as ">=3.6,<3.10" or
// "!=3.0.*" into a PySpecSet.
func Parse(s string) (PySpecSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AllowAll(), nil
	}
	set := AllowAll()
	for _, part := range strings.Split(s, ",") {
		sp, err := pep440.ParseSpecifier(strings.TrimSpace(part))
		if err != nil {
			return PySpecSet{}, fmt.Errorf("pyspec: %w", err)
		}
		clause, err := fromSpecifier(sp)
		if err != nil {
			return PySpecSet{}, err
		}
		set = set.Intersect(clause)
	}
	return set, nil
}

// fromSpecifier translates a single PEP 440 operator clause into the
// lower/upper/excludes representation.
func fromSpecifier(sp pep440.Specifier) (PySpecSet, error) {
	switch sp.Op {
	case pep440.OpEqual:
		if sp.Version.IsWildcard() {
			lo, hi := wildcardBounds(sp.Version)
			return PySpecSet{lower: lo, upper: hi, upperOpen: true}, nil
		}
		return PySpecSet{lower: sp.Version, upper: sp.Version, lowerOpen: false, upperOpen: false}, nil
	case pep440.OpNotEqual:
		s := AllowAll()
		s.excludes = []*pep440.Version{sp.Version}
		return s, nil
	case pep440.OpLess:
		return PySpecSet{lower: pep440.Min(), upper: sp.Version, upperOpen: true}, nil
	case pep440.OpLessEqual:
		return PySpecSet{lower: pep440.Min(), upper: sp.Version, upperOpen: false}, nil
	case pep440.OpGreater:
		return PySpecSet{lower: sp.Version, lowerOpen: true, upper: pep440.Max(), upperOpen: true}, nil
	case pep440.OpGreaterEqual:
		return PySpecSet{lower: sp.Version, lowerOpen: false, upper: pep440.Max(), upperOpen: true}, nil
	case pep440.OpCompatible:
		return PySpecSet{lower: sp.Version, upper: pep440.CompatibleUpperBound(sp.Version), upperOpen: true}, nil
	case pep440.OpArbitraryEqual:
		v, err := pep440.ParseExact(sp.Raw)
		if err != nil {
			return PySpecSet{}, fmt.Errorf("pyspec: === %q is not representable as a version range: %w", sp.Raw, err)
		}
		return PySpecSet{lower: v, upper: v}, nil
	}
	return PySpecSet{}, fmt.Errorf("pyspec: unsupported operator %q", sp.Op)
}

// wildcardBounds returns the [lower, upper) range a wildcard version such
// as "3.8.*" denotes: lower is the release itself (3.8, which PEP 440
// release-padding already equates to 3.8.0), upper is the release with its
// final segment incremented (3.9).
func wildcardBounds(v *pep440.Version) (*pep440.Version, *pep440.Version) {
	rel := v.Release()
	lo, _ := pep440.ParseExact(joinRelease(rel))
	bumped := append([]int(nil), rel...)
	bumped[len(bumped)-1]++
	hi, _ := pep440.ParseExact(joinRelease(bumped))
	return lo, hi
}

func joinRelease(rel []int) string {
	parts := make([]string, len(rel))
	for i, n := range rel {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ".")
}

// Contains reports whether v satisfies the set, per the invariant
// lower ≤ v < upper ∧ v ∉ excludes (with lowerOpen/upperOpen adjusting the
// inequality at either end for "<="/">").
func (s PySpecSet) Contains(v *pep440.Version) bool {
	if s.impossible {
		return false
	}
	if c := v.Compare(s.lower); c < 0 || (c == 0 && s.lowerOpen) {
		return false
	}
	if c := v.Compare(s.upper); c > 0 || (c == 0 && s.upperOpen) {
		return false
	}
	for _, x := range s.excludes {
		if x.IsWildcard() {
			if v.HasPrefix(x) {
				return false
			}
			continue
		}
		if v.Public() == x.Public() {
			return false
		}
	}
	return true
}

// IsImpossible reports whether the set matches no version.
func (s PySpecSet) IsImpossible() bool { return s.impossible }

// IsAllowAll reports whether the set matches every version with no
// restriction at all.
func (s PySpecSet) IsAllowAll() bool {
	return !s.impossible && s.allowAll && len(s.excludes) == 0
}

// Intersect returns the conjunction of s and other (matches v iff both do).
func (s PySpecSet) Intersect(other PySpecSet) PySpecSet {
	if s.impossible || other.impossible {
		return Impossible()
	}
	lower, lowerOpen := tighterLower(s.lower, s.lowerOpen, other.lower, other.lowerOpen)
	upper, upperOpen := tighterUpper(s.upper, s.upperOpen, other.upper, other.upperOpen)
	merged := mergeExcludes(s.excludes, other.excludes)
	result := PySpecSet{
		lower: lower, lowerOpen: lowerOpen,
		upper: upper, upperOpen: upperOpen,
		excludes: merged,
		allowAll: s.allowAll && other.allowAll,
	}
	return result.normalize()
}

// Union returns the disjunction of s and other (matches v iff either does).
//
// When the two ranges are disjoint, the gap between them is folded into a
// run of excluded minor-version wildcards (e.g. >=3.6,<3.10 ∪ >=3.12
// becomes >=3.6 with excludes !=3.10.*,!=3.11.*), following the minor
// version table in gaptable.go. When the ranges overlap, the excludes that survive
// are only those present on both sides, since a point excluded by the
// union must be excluded by every range that covers it.
func (s PySpecSet) Union(other PySpecSet) PySpecSet {
	if s.impossible {
		return other
	}
	if other.impossible {
		return s
	}
	if s.allowAll || other.allowAll {
		return AllowAll()
	}

	a, b := s, other
	if cmpBound(a.lower, a.lowerOpen, b.lower, b.lowerOpen) > 0 {
		a, b = b, a
	}

	// a starts no later than b. If a's upper reaches into (or touches) b's
	// lower, the ranges overlap or are adjacent: merge into one span.
	if rangesConnect(a, b) {
		lower, lowerOpen := a.lower, a.lowerOpen
		upper, upperOpen := a.upper, a.upperOpen
		if cmpBound(b.upper, !b.upperOpen, upper, !upperOpen) > 0 {
			upper, upperOpen = b.upper, b.upperOpen
		}
		return PySpecSet{
			lower: lower, lowerOpen: lowerOpen,
			upper: upper, upperOpen: upperOpen,
			excludes: intersectExcludes(a.excludes, b.excludes),
		}.normalize()
	}

	// Disjoint: fold the gap into wildcard excludes.
	gap := minorGapExcludes(a.upper, a.upperOpen, b.lower, b.lowerOpen)
	return PySpecSet{
		lower: a.lower, lowerOpen: a.lowerOpen,
		upper: b.upper, upperOpen: b.upperOpen,
		excludes: append(append([]*pep440.Version(nil), gap...), mergeExcludes(a.excludes, b.excludes)...),
	}.normalize()
}

// rangesConnect reports whether b's lower bound falls inside or
// immediately against a's upper bound, given a.lower <= b.lower.
func rangesConnect(a, b PySpecSet) bool {
	c := b.lower.Compare(a.upper)
	if c < 0 {
		return true
	}
	if c == 0 && !(a.upperOpen && b.lowerOpen) {
		// Touching at a single point that at least one side includes.
		return true
	}
	return false
}

// IsSubset reports whether every version in s is also in other, with the
// wildcard upper-bound relaxation: an upper bound on other at or above
// the first major line with no released versions (see maxKnownMinor) is
// treated as unbounded, so ">=3.6,<4.0" still contains an open-ended
// ">=3.7".
func (s PySpecSet) IsSubset(other PySpecSet) bool {
	if !other.impossible && !other.upper.IsMax() && other.upper.Compare(maxMajorVersion()) >= 0 {
		other.upper = pep440.Max()
		other.upperOpen = true
	}
	return s.Intersect(other).equalRange(s)
}

// IsSuperset reports whether every version in other is also in s, with
// the mirror relaxation: other's unbounded upper is narrowed to the
// first unreleased major line before the test, so an open-ended project
// range never demands versions no interpreter ships yet.
func (s PySpecSet) IsSuperset(other PySpecSet) bool {
	if !other.impossible && other.upper.IsMax() {
		other.upper = maxMajorVersion()
		other.upperOpen = true
	}
	return other.IsSubset(s)
}

func (s PySpecSet) equalRange(other PySpecSet) bool {
	if s.impossible != other.impossible {
		return false
	}
	if s.impossible {
		return true
	}
	return s.lower.Equal(other.lower) && s.lowerOpen == other.lowerOpen &&
		s.upper.Equal(other.upper) && s.upperOpen == other.upperOpen &&
		sameExcludes(s.excludes, other.excludes)
}

// String renders the set as a canonical, sorted specifier string.
func (s PySpecSet) String() string {
	if s.impossible {
		return "<impossible>"
	}
	if s.IsAllowAll() {
		return ""
	}
	var clauses []string
	if !s.lower.IsMin() {
		op := ">="
		if s.lowerOpen {
			op = ">"
		}
		clauses = append(clauses, op+s.lower.String())
	}
	if !s.upper.IsMax() {
		op := "<"
		if !s.upperOpen {
			op = "<="
		}
		clauses = append(clauses, op+s.upper.String())
	}
	for _, x := range s.excludes {
		clauses = append(clauses, "!="+x.String())
	}
	sort.Strings(clauses)
	return strings.Join(clauses, ",")
}

// AsMarkerString renders the set as a PEP 508 "python_version"/
// "python_full_version" marker clause, joining sub-clauses with " and ".
func (s PySpecSet) AsMarkerString(variable string) string {
	if s.impossible {
		return fmt.Sprintf("%s < '0'", variable)
	}
	if s.IsAllowAll() {
		return ""
	}
	var parts []string
	if !s.lower.IsMin() {
		op := ">="
		if s.lowerOpen {
			op = ">"
		}
		parts = append(parts, fmt.Sprintf("%s %s '%s'", variable, op, s.lower.String()))
	}
	if !s.upper.IsMax() {
		op := "<"
		if !s.upperOpen {
			op = "<="
		}
		parts = append(parts, fmt.Sprintf("%s %s '%s'", variable, op, s.upper.String()))
	}
	for _, x := range s.excludes {
		parts = append(parts, fmt.Sprintf("%s != '%s'", variable, x.String()))
	}
	return strings.Join(parts, " and ")
}

// SupportsPy2 reports whether the set admits any 2.x version, used to flag
// requires-python strings that still accept Python 2.
func (s PySpecSet) SupportsPy2() bool {
	if s.impossible {
		return false
	}
	two, _ := pep440.ParseExact("2.0")
	three, _ := pep440.ParseExact("3.0")
	probe := PySpecSet{lower: two, upper: three, upperOpen: true}
	return !s.Intersect(probe).impossible
}

func tighterLower(aLo *pep440.Version, aOpen bool, bLo *pep440.Version, bOpen bool) (*pep440.Version, bool) {
	if cmpBound(aLo, aOpen, bLo, bOpen) >= 0 {
		return aLo, aOpen
	}
	return bLo, bOpen
}

func tighterUpper(aHi *pep440.Version, aOpen bool, bHi *pep440.Version, bOpen bool) (*pep440.Version, bool) {
	if cmpBound(aHi, !aOpen, bHi, !bOpen) <= 0 {
		return aHi, aOpen
	}
	return bHi, bOpen
}

// cmpBound orders (version, open) pairs the way an interval boundary needs:
// ties are broken by "open" bounds being tighter, i.e. at the lower end an
// open bound excludes the point itself so it sorts as if slightly larger,
// and symmetrically for the upper end when called with the openness
// negated by the caller (see tighterUpper).
func cmpBound(a *pep440.Version, aOpen bool, b *pep440.Version, bOpen bool) int {
	if c := a.Compare(b); c != 0 {
		return c
	}
	switch {
	case aOpen && !bOpen:
		return 1
	case !aOpen && bOpen:
		return -1
	default:
		return 0
	}
}

func mergeExcludes(a, b []*pep440.Version) []*pep440.Version {
	var out []*pep440.Version
	seen := map[string]bool{}
	for _, x := range append(append([]*pep440.Version(nil), a...), b...) {
		k := x.String()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, x)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func intersectExcludes(a, b []*pep440.Version) []*pep440.Version {
	bSet := map[string]bool{}
	for _, x := range b {
		bSet[x.String()] = true
	}
	var out []*pep440.Version
	for _, x := range a {
		if bSet[x.String()] {
			out = append(out, x)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func sameExcludes(a, b []*pep440.Version) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].String() != b[i].String() {
			return false
		}
	}
	return true
}

// normalize re-establishes the PySpecSet invariants after a mutation:
// excludes outside [lower, upper) are dropped, an exclude touching a bound
// bumps that bound inward, and a wildcard exclude that fully covers a
// bound narrows it to the wildcard's far edge. If the bounds cross, the set
// becomes impossible.
func (s PySpecSet) normalize() PySpecSet {
	if s.impossible {
		return s
	}
	if c := s.lower.Compare(s.upper); c > 0 || (c == 0 && (s.lowerOpen || s.upperOpen)) {
		return Impossible()
	}

	changed := true
	for changed {
		changed = false
		var kept []*pep440.Version
		for _, x := range s.excludes {
			if x.IsWildcard() {
				lo, hi := wildcardBounds(x)
				// A wildcard exclude entirely covering the current lower
				// edge narrows the lower bound up to the wildcard's end.
				if lo.Compare(s.lower) <= 0 && hi.Compare(s.lower) > 0 && !s.lowerOpen {
					s.lower, s.lowerOpen = hi, false
					changed = true
					continue
				}
				if lo.Compare(s.upper) < 0 && hi.Compare(s.upper) >= 0 && s.upperOpen {
					s.upper, s.upperOpen = lo, true
					changed = true
					continue
				}
				if hi.Compare(s.lower) <= 0 || lo.Compare(s.upper) >= 0 {
					continue // entirely outside the range now: drop
				}
				kept = append(kept, x)
				continue
			}
			if x.Compare(s.lower) < 0 || x.Compare(s.upper) > 0 || (x.Compare(s.upper) == 0 && s.upperOpen) {
				continue // outside the range: drop
			}
			if !s.lowerOpen && x.Equal(s.lower) {
				s.lowerOpen = true
				changed = true
				continue
			}
			if !s.upperOpen && x.Equal(s.upper) {
				s.upperOpen = true
				changed = true
				continue
			}
			kept = append(kept, x)
		}
		s.excludes = kept
		if c := s.lower.Compare(s.upper); c > 0 || (c == 0 && (s.lowerOpen || s.upperOpen)) {
			return Impossible()
		}
	}
	return s
}
