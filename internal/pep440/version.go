// Package pep440 implements version parsing, comparison, and canonical
// formatting for PEP 440 (https://peps.python.org/pep-0440/), the version
// scheme used by Python packages.
//
// The parser and comparison rules are adapted from the PEP440-specific
// extension in deps.dev/util/semver (pep440.go, version.go): the same
// release/pre/post/dev/local/epoch decomposition and the same rank-based
// ordering, reworked into a single-purpose engine that only ever speaks
// PyPI versions rather than a System-polymorphic one.
package pep440

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed PEP 440 version.
//
// The zero Version is not valid; construct one with Parse.
type Version struct {
	original string

	epoch   int
	release []int // normalized release segments, e.g. "1.0" -> [1, 0]

	// wildcard reports whether the version string ended in ".*". Wildcards
	// are only legal inside specifier clauses (==3.8.*, !=3.8.*) and never
	// as a plain version; Version still parses them so that PySpecSet can
	// reuse this type uniformly.
	wildcard bool

	preLabel string // "a", "b", or "rc"; empty if absent
	preNum   int

	hasPost bool
	postNum int

	hasDev bool
	devNum int

	local []localSegment

	// sentinel marks Min/Max, the unbounded ends PySpecSet uses in place of
	// a real version. 0 means "not a sentinel".
	sentinel int8
}

const (
	sentinelNone = 0
	sentinelMin  = -1
	sentinelMax  = 1
)

// Min returns a sentinel Version that compares lower than every real
// version, used as the default lower bound of an unconstrained range.
func Min() *Version { return &Version{original: "<min>", sentinel: sentinelMin} }

// Max returns a sentinel Version that compares higher than every real
// version, used as the default upper bound of an unconstrained range.
func Max() *Version { return &Version{original: "<max>", sentinel: sentinelMax} }

// IsMin reports whether v is the Min sentinel.
func (v *Version) IsMin() bool { return v.sentinel == sentinelMin }

// IsMax reports whether v is the Max sentinel.
func (v *Version) IsMax() bool { return v.sentinel == sentinelMax }

type localSegment struct {
	str    string // set if the segment is not purely numeric
	num    int
	isNum  bool
}

// Parse parses a PEP 440 version string.
func Parse(s string) (*Version, error) {
	return parse(s, true)
}

// ParseExact parses s as a PEP 440 version string, rejecting a trailing
// wildcard ("1.2.*"). Use this wherever a concrete version, rather than a
// specifier clause's right-hand side, is expected.
func ParseExact(s string) (*Version, error) {
	v, err := parse(s, true)
	if err != nil {
		return nil, err
	}
	if v.wildcard {
		return nil, fmt.Errorf("pep440: %q is a wildcard, not a concrete version", s)
	}
	return v, nil
}

func parse(s string, allowWildcard bool) (*Version, error) {
	orig := s
	input := strings.TrimSpace(s)
	lower := strings.ToLower(input)

	v := &Version{original: orig}

	// Optional "v" prefix.
	lower = strings.TrimPrefix(lower, "v")

	// Epoch: N!
	if bang := strings.IndexByte(lower, '!'); bang > 0 {
		epochDigits := lower[:bang]
		if !allDigits(epochDigits) {
			return nil, fmt.Errorf("pep440: invalid epoch in %q", orig)
		}
		e, err := strconv.Atoi(epochDigits)
		if err != nil {
			return nil, fmt.Errorf("pep440: invalid epoch in %q: %w", orig, err)
		}
		v.epoch = e
		lower = lower[bang+1:]
	}

	// Release segments: N(.N)*, optionally terminated by a wildcard.
	rest := lower
	segEnd := 0
	for segEnd < len(rest) {
		start := segEnd
		for segEnd < len(rest) && isDigit(rest[segEnd]) {
			segEnd++
		}
		if segEnd == start {
			break
		}
		n, err := strconv.Atoi(rest[start:segEnd])
		if err != nil {
			return nil, fmt.Errorf("pep440: invalid release segment in %q: %w", orig, err)
		}
		v.release = append(v.release, n)
		if segEnd < len(rest) && rest[segEnd] == '.' && segEnd+1 < len(rest) && rest[segEnd+1] == '*' {
			segEnd += 2
			v.wildcard = true
			break
		}
		// A '.' continues the release only when another number follows;
		// otherwise it is left for the suffix parsers (".post1", ".dev0").
		if segEnd+1 < len(rest) && rest[segEnd] == '.' && isDigit(rest[segEnd+1]) {
			segEnd++
			continue
		}
		break
	}
	if len(v.release) == 0 {
		return nil, fmt.Errorf("pep440: no release segment in %q", orig)
	}
	if v.wildcard && !allowWildcard {
		return nil, fmt.Errorf("pep440: wildcard not allowed in %q", orig)
	}
	rest = rest[segEnd:]

	if v.wildcard {
		if rest != "" {
			return nil, fmt.Errorf("pep440: trailing text after wildcard in %q", orig)
		}
		return v, nil
	}

	var err error
	rest, err = v.parsePre(rest)
	if err != nil {
		return nil, fmt.Errorf("pep440: %q: %w", orig, err)
	}
	rest, err = v.parsePost(rest)
	if err != nil {
		return nil, fmt.Errorf("pep440: %q: %w", orig, err)
	}
	rest, err = v.parseDev(rest)
	if err != nil {
		return nil, fmt.Errorf("pep440: %q: %w", orig, err)
	}
	rest, err = v.parseLocal(rest)
	if err != nil {
		return nil, fmt.Errorf("pep440: %q: %w", orig, err)
	}
	if rest != "" {
		return nil, fmt.Errorf("pep440: unexpected trailing text %q in %q", rest, orig)
	}
	return v, nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func trimSeparator(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '.', '-', '_':
		return s[1:]
	}
	return s
}

// preLabels maps every accepted spelling to its canonical one; the longer
// spelling of any shared prefix must be listed first.
var preLabels = []struct{ text, canon string }{
	{"alpha", "a"}, {"a", "a"},
	{"beta", "b"}, {"b", "b"},
	{"preview", "rc"}, {"pre", "rc"}, {"rc", "rc"}, {"c", "rc"},
}

func (v *Version) parsePre(s string) (string, error) {
	if s == "" {
		return s, nil
	}
	t := trimSeparator(s)
	for _, p := range preLabels {
		if hasFold(t, p.text) {
			v.preLabel = p.canon
			rest := t[len(p.text):]
			n, rest := takeNumber(rest)
			v.preNum = n
			return rest, nil
		}
	}
	return s, nil
}

func (v *Version) parsePost(s string) (string, error) {
	if s == "" {
		return s, nil
	}
	dash := s[0] == '-'
	t := trimSeparator(s)
	for _, p := range []string{"post", "rev", "r"} {
		if hasFold(t, p) {
			v.hasPost = true
			n, rest := takeNumber(t[len(p):])
			v.postNum = n
			return rest, nil
		}
	}
	// A bare "-N" is shorthand for "-postN".
	if dash && len(t) > 0 && isDigit(t[0]) {
		v.hasPost = true
		n, rest := takeNumber(t)
		v.postNum = n
		return rest, nil
	}
	return s, nil
}

func (v *Version) parseDev(s string) (string, error) {
	if s == "" {
		return s, nil
	}
	t := trimSeparator(s)
	if !hasFold(t, "dev") {
		return s, nil
	}
	v.hasDev = true
	n, rest := takeNumber(t[len("dev"):])
	v.devNum = n
	return rest, nil
}

func (v *Version) parseLocal(s string) (string, error) {
	if s == "" {
		return s, nil
	}
	if s[0] != '+' {
		return s, fmt.Errorf("invalid trailing text %q", s)
	}
	s = s[1:]
	if s == "" {
		return "", fmt.Errorf("empty local version")
	}
	for _, seg := range strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == '-' || r == '_' }) {
		seg = strings.ToLower(seg)
		if allDigits(seg) {
			n, _ := strconv.Atoi(seg)
			v.local = append(v.local, localSegment{num: n, isNum: true})
		} else {
			v.local = append(v.local, localSegment{str: seg})
		}
	}
	return "", nil
}

func hasFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	return strings.EqualFold(s[:len(prefix)], prefix)
}

func takeNumber(s string) (int, string) {
	s = trimSeparator(s)
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == 0 {
		return 0, s
	}
	n, _ := strconv.Atoi(s[:i])
	return n, s[i:]
}

// IsWildcard reports whether v was parsed from a trailing "*" specifier
// clause operand, e.g. "3.8.*".
func (v *Version) IsWildcard() bool { return v.wildcard }

// IsPrerelease reports whether v has a pre-release or dev-release segment.
// Per PEP 440, dev releases are treated as pre-releases for the purpose of
// whether they are included by default in version matching.
func (v *Version) IsPrerelease() bool { return v.preLabel != "" || v.hasDev }

// IsDevRelease reports whether v has a .devN segment.
func (v *Version) IsDevRelease() bool { return v.hasDev }

// IsPostRelease reports whether v has a .postN segment.
func (v *Version) IsPostRelease() bool { return v.hasPost }

// IsLocal reports whether v has a +local segment.
func (v *Version) IsLocal() bool { return len(v.local) > 0 }

// Release returns the numeric release segments, e.g. "1.0.3" -> [1,0,3].
func (v *Version) Release() []int { return append([]int(nil), v.release...) }

// Epoch returns the version epoch (0 if absent).
func (v *Version) Epoch() int { return v.epoch }

// Public returns v without its local segment, as used by PEP 440 when
// comparing against indexes that strip local versions.
func (v *Version) Public() string {
	c := *v
	c.local = nil
	return c.String()
}

// HasPrefix reports whether v's release segments begin with the release
// segments of w — used for wildcard matching ("3.8.*" matches "3.8.1").
func (v *Version) HasPrefix(w *Version) bool {
	if len(w.release) > len(v.release) {
		return false
	}
	for i, n := range w.release {
		if v.release[i] != n {
			return false
		}
	}
	return true
}

// String returns the canonical PEP 440 representation of v.
func (v *Version) String() string {
	if v.sentinel != sentinelNone {
		return v.original
	}
	var b strings.Builder
	if v.epoch != 0 {
		fmt.Fprintf(&b, "%d!", v.epoch)
	}
	for i, n := range v.release {
		if i > 0 {
			b.WriteByte('.')
		}
		fmt.Fprintf(&b, "%d", n)
	}
	if v.wildcard {
		b.WriteString(".*")
		return b.String()
	}
	if v.preLabel != "" {
		fmt.Fprintf(&b, "%s%d", v.preLabel, v.preNum)
	}
	if v.hasPost {
		fmt.Fprintf(&b, ".post%d", v.postNum)
	}
	if v.hasDev {
		fmt.Fprintf(&b, ".dev%d", v.devNum)
	}
	if len(v.local) > 0 {
		b.WriteByte('+')
		for i, seg := range v.local {
			if i > 0 {
				b.WriteByte('.')
			}
			if seg.isNum {
				fmt.Fprintf(&b, "%d", seg.num)
			} else {
				b.WriteString(seg.str)
			}
		}
	}
	return b.String()
}

// Original returns the exact string Parse was given.
func (v *Version) Original() string { return v.original }

const (
	negInf = -1
	posInf = 3 // above every pre-release rank (a=0, b=1, rc=2)
)

// sortKeyPre returns a (rank, num) pair emulating the packaging library's
// _cmpkey: a version with no pre-release sorts after every pre-release of
// the same release segment (it is "newer"), except a dev release with
// neither pre- nor post-release, which sorts before everything.
func (v *Version) sortKeyPre() (int, int) {
	switch {
	case v.preLabel == "" && v.hasDev && !v.hasPost:
		return negInf, 0
	case v.preLabel == "":
		return posInf, 0
	case v.preLabel == "a":
		return 0, v.preNum
	case v.preLabel == "b":
		return 1, v.preNum
	default: // "rc"
		return 2, v.preNum
	}
}

func (v *Version) sortKeyPost() (int, int) {
	if !v.hasPost {
		return negInf, 0
	}
	return 0, v.postNum
}

func (v *Version) sortKeyDev() (int, int) {
	if !v.hasDev {
		return posInf, 0
	}
	return 0, v.devNum
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than
// w, following PEP 440's ordering (epoch, release, pre, post, dev, local).
func (v *Version) Compare(w *Version) int {
	if v.sentinel != sentinelNone || w.sentinel != sentinelNone {
		if v.sentinel == w.sentinel {
			return 0
		}
		return sgn(int(v.sentinel) - int(w.sentinel))
	}
	if v.epoch != w.epoch {
		return sgn(v.epoch - w.epoch)
	}
	if c := compareRelease(v.release, w.release); c != 0 {
		return c
	}
	vpr, vpn := v.sortKeyPre()
	wpr, wpn := w.sortKeyPre()
	if vpr != wpr {
		return sgn(vpr - wpr)
	}
	if vpn != wpn {
		return sgn(vpn - wpn)
	}
	vor, von := v.sortKeyPost()
	wor, won := w.sortKeyPost()
	if vor != wor {
		return sgn(vor - wor)
	}
	if von != won {
		return sgn(von - won)
	}
	vdr, vdn := v.sortKeyDev()
	wdr, wdn := w.sortKeyDev()
	if vdr != wdr {
		return sgn(vdr - wdr)
	}
	if vdn != wdn {
		return sgn(vdn - wdn)
	}
	return compareLocal(v.local, w.local)
}

// Equal reports whether v and w compare equal.
func (v *Version) Equal(w *Version) bool { return v.Compare(w) == 0 }

func compareRelease(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			return sgn(x - y)
		}
	}
	return 0
}

// compareLocal implements PEP 440's local version ordering: absence sorts
// lowest, then element-wise comparison where a numeric segment is always
// greater than an alphanumeric one, and a version with extra trailing
// segments is greater than a prefix of itself.
func compareLocal(a, b []localSegment) int {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	if len(a) == 0 {
		return -1
	}
	if len(b) == 0 {
		return 1
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		x, y := a[i], b[i]
		if x.isNum != y.isNum {
			if x.isNum {
				return 1
			}
			return -1
		}
		if x.isNum {
			if x.num != y.num {
				return sgn(x.num - y.num)
			}
			continue
		}
		if x.str != y.str {
			if x.str < y.str {
				return -1
			}
			return 1
		}
	}
	return sgn(len(a) - len(b))
}

func sgn(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
