// Package provider adapts a repository.Repository to the resolver's
// pluggable provider contract, following
// deps.dev/util/resolve/pypi/resolve.go's provider type almost exactly:
// Identify, GetPreference, FindMatches, IsSatisfiedBy, GetDependencies.
package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/wheelhouse-dev/wheelhouse/internal/candidate"
	"github.com/wheelhouse-dev/wheelhouse/internal/marker"
	"github.com/wheelhouse-dev/wheelhouse/internal/pep440"
	"github.com/wheelhouse-dev/wheelhouse/internal/pyspec"
	"github.com/wheelhouse-dev/wheelhouse/internal/repository"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

// ErrNoCandidates is wrapped into the error FindMatches returns when a
// vertex genuinely has no candidates at all (the index has nothing by
// that name, or every file was filtered out for reasons unrelated to
// requires-python).
var ErrNoCandidates = errors.New("provider: no candidates")

// ErrPythonIncompatible is wrapped into the error FindMatches returns
// when candidates existed but every one of them was excluded because its
// declared requires_python is disjoint from the project's, keeping the
// diagnostic distinguishable from an ordinary version conflict.
var ErrPythonIncompatible = errors.New("provider: no candidates compatible with project requires-python")

// NoMatchesError carries enough detail for the resolver to build a
// diagnostic: whether the exclusion was purely a requires-python mismatch,
// and, if so, the requires_python ranges of the candidates that were
// rejected so the driver can suggest a narrower project range.
type NoMatchesError struct {
	Identifier        string
	PythonOnly        bool
	ExcludedForPython []pyspec.PySpecSet
}

func (e NoMatchesError) Error() string {
	if e.PythonOnly {
		return fmt.Sprintf("%s: %v: no candidate's requires-python range overlaps the project's", e.Identifier, ErrPythonIncompatible)
	}
	return fmt.Sprintf("%s: %v", e.Identifier, ErrNoCandidates)
}

func (e NoMatchesError) Unwrap() error {
	if e.PythonOnly {
		return ErrPythonIncompatible
	}
	return ErrNoCandidates
}

// Strategy controls how an update injects the previously-locked versions
// of packages outside the set the caller asked to update.
type Strategy int

const (
	// All applies no preference for the existing lock: every vertex is
	// free to resolve to its best available candidate.
	All Strategy = iota
	// Reuse injects the locked version of any vertex not in TrackedNames
	// as an additional constraint, so unrelated packages don't move.
	Reuse
	// Eager behaves like Reuse but additionally unlocks the transitive
	// closure of TrackedNames. The closure is computed over the prior
	// resolution's dependency graph — the caller expands TrackedNames
	// with ExpandTrackedNames before constructing the Provider; Eager
	// only affects which already-expanded names are exempt from the
	// injected pin.
	Eager
)

// ExpandTrackedNames returns tracked plus every vertex reachable from it
// through deps — the transitive closure the Eager strategy unlocks.
// deps is the prior resolution's dependency graph (from the
// lockfile's stored dependency lists), keyed by vertex identifier.
func ExpandTrackedNames(deps map[string][]requirement.Requirement, tracked map[string]bool) map[string]bool {
	out := make(map[string]bool, len(tracked))
	queue := make([]string, 0, len(tracked))
	for id := range tracked {
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if out[id] {
			continue
		}
		out[id] = true
		for _, d := range deps[id] {
			queue = append(queue, d.Identify())
		}
	}
	return out
}

// Locked is a previously-resolved (name[extras]) pin the Reuse/Eager
// strategies can inject as an extra constraint.
type Locked struct {
	Identifier string
	Version    string
	Specifier  string // rendered as "==<version>" when injected
}

// Provider implements the resolver's Provider contract over a
// repository.Repository.
type Provider struct {
	Repo               repository.Repository
	Env                marker.Environment
	ProjectRequires    pyspec.PySpecSet
	AllowPrereleases   bool
	AllowDevReleases   bool
	Strategy           Strategy
	TrackedNames       map[string]bool
	LockedRequirements map[string]requirement.Requirement // by identifier, built from the prior lockfile

	// directOrder records the position of each vertex among the project's
	// direct dependencies (root requirements), used as the final
	// preference tiebreaker the way pip favors user-requested packages.
	directOrder map[string]int
}

// New constructs a Provider. rootReqs is the project's own declared
// dependencies (all groups being resolved), used to seed directOrder.
func New(repo repository.Repository, env marker.Environment, projectRequires pyspec.PySpecSet, allowPrereleases bool, strategy Strategy, locked map[string]requirement.Requirement, trackedNames map[string]bool, rootReqs []requirement.Requirement) *Provider {
	order := make(map[string]int, len(rootReqs))
	for i, r := range rootReqs {
		id := r.Identify()
		if _, ok := order[id]; !ok {
			order[id] = i
		}
	}
	if trackedNames == nil {
		trackedNames = map[string]bool{}
	}
	if locked == nil {
		locked = map[string]requirement.Requirement{}
	}
	return &Provider{
		Repo:               repo,
		Env:                env,
		ProjectRequires:    projectRequires,
		AllowPrereleases:   allowPrereleases,
		Strategy:           strategy,
		TrackedNames:       trackedNames,
		LockedRequirements: locked,
		directOrder:        order,
	}
}

// Identify returns req's vertex identifier (the name[extras] form).
func (p *Provider) Identify(req requirement.Requirement) string {
	return req.Identify()
}

// InjectedConstraint returns the extra "locked" requirement the current
// strategy wants merged into identifier's criterion, if any. Reuse injects
// a pin for every vertex not in TrackedNames; Eager does the same (its
// difference from Reuse — unlocking TrackedNames' transitive closure — is
// the caller's responsibility: it expands TrackedNames with
// ExpandTrackedNames over the prior lockfile's dependency graph before
// constructing the Provider).
func (p *Provider) InjectedConstraint(identifier string) (requirement.Requirement, bool) {
	if p.Strategy == All {
		return requirement.Requirement{}, false
	}
	if p.TrackedNames[identifier] {
		return requirement.Requirement{}, false
	}
	req, ok := p.LockedRequirements[identifier]
	return req, ok
}

// PreferenceInfo is the state GetPreference needs about a vertex's current
// criterion, gathered by the resolver from its own state so Provider stays
// free of resolver-internal types.
type PreferenceInfo struct {
	Identifier          string
	Requirements        []requirement.Requirement
	CandidatesRemaining int
	Incompatibilities   int
	Pinned              bool
}

// PreferenceKey is an orderable preference score: identical in spirit to
// pip's preference tuple (delayThis, restrictiveRating, order, name),
// generalized from "is this setuptools" to a caller-configurable
// DelayNames set (this repo's bootstrapPackages-equivalent at the
// resolver layer) since PyPI's "always delay setuptools" hack is specific
// to pip, not to the packaging ecosystem generally.
type PreferenceKey struct {
	delayThis         bool
	restrictiveRating int
	order             int
	name              string
}

// Less reports whether k should be tried before other: fewer delays
// first, then more restrictive requirements, then direct dependencies
// before transitive ones, then lexicographic name order to break ties
// deterministically.
func (k PreferenceKey) Less(other PreferenceKey) bool {
	if k.delayThis != other.delayThis {
		return !k.delayThis
	}
	if k.restrictiveRating != other.restrictiveRating {
		return k.restrictiveRating < other.restrictiveRating
	}
	if k.order != other.order {
		return k.order < other.order
	}
	return k.name < other.name
}

// DelayNames holds vertex names GetPreference should defer resolving
// until all others are tried, mirroring pip's special-case for
// setuptools. The default set is empty; callers needing a delay set it
// explicitly.
var DelayNames = map[string]bool{}

// GetPreference ranks a vertex by how restrictive its incoming
// requirements are (a direct reference rates most restrictive, then an
// explicit == or === pin, then any other specifier, then none), then
// direct dependencies before transitive ones, then lexicographic name
// order; DelayNames entries sort after all others. The
// CandidatesRemaining and Incompatibilities counts in info are not
// consulted.
func (p *Provider) GetPreference(info PreferenceInfo) PreferenceKey {
	name := baseName(info.Identifier)
	key := PreferenceKey{name: name, restrictiveRating: 3, delayThis: DelayNames[name]}
	for _, req := range info.Requirements {
		if req.Kind != requirement.Named {
			key.restrictiveRating = 0
			break
		}
		if hasExactPin(req) {
			key.restrictiveRating = 1
			break
		}
		if !req.Specifier.Empty() {
			key.restrictiveRating = 2
		}
	}
	key.order = math.MaxInt32
	if ord, ok := p.directOrder[info.Identifier]; ok {
		key.order = ord
	}
	return key
}

func hasExactPin(req requirement.Requirement) bool {
	for _, sp := range req.Specifier.Specifiers() {
		if sp.Op == pep440.OpEqual || sp.Op == pep440.OpArbitraryEqual {
			return true
		}
	}
	return false
}

func baseName(identifier string) string {
	if i := strings.IndexByte(identifier, '['); i >= 0 {
		return identifier[:i]
	}
	return identifier
}

// FindMatches intersects the specifiers of every requirement on identifier,
// subtracts candidates present in incompatibilities (keyed by CandidateKey),
// and asks the Repository.
func (p *Provider) FindMatches(ctx context.Context, identifier string, reqs []requirement.Requirement, incompatibilities map[string]bool) ([]*candidate.Candidate, error) {
	if len(reqs) == 0 {
		return nil, NoMatchesError{Identifier: identifier}
	}
	primary := pickPrimary(reqs)

	all, err := p.Repo.FindCandidates(ctx, primary, p.ProjectRequires, p.AllowPrereleases)
	if err != nil {
		return nil, err
	}

	var matches []*candidate.Candidate
	excludedForPython := 0
	var excludedSpecs []pyspec.PySpecSet
	for _, c := range all {
		if incompatibilities[CandidateKey(c)] {
			continue
		}
		satisfiesAll := true
		for _, r := range reqs {
			if !p.IsSatisfiedBy(r, c) {
				satisfiesAll = false
				break
			}
		}
		if !satisfiesAll {
			continue
		}
		if !c.RequiresPython.IsAllowAll() && !c.SatisfiesPython(p.ProjectRequires) {
			excludedForPython++
			excludedSpecs = append(excludedSpecs, c.RequiresPython)
			continue
		}
		matches = append(matches, c)
	}

	if len(matches) == 0 {
		if excludedForPython > 0 && excludedForPython == len(all) {
			return nil, NoMatchesError{Identifier: identifier, PythonOnly: true, ExcludedForPython: excludedSpecs}
		}
		return nil, NoMatchesError{Identifier: identifier}
	}
	return matches, nil
}

// pickPrimary chooses the requirement FindCandidates should be queried
// with: a direct-reference (URL/File/VCS) requirement always wins, since
// it pins an exact source; otherwise the first Named requirement is used
// and its specifier is intersected with every other Named requirement's so
// the repository sees the full constraint in one query.
func pickPrimary(reqs []requirement.Requirement) requirement.Requirement {
	for _, r := range reqs {
		if r.Kind != requirement.Named {
			return r
		}
	}
	primary := reqs[0]
	for _, r := range reqs[1:] {
		primary.Specifier = primary.Specifier.Intersect(r.Specifier)
	}
	return primary
}

// IsSatisfiedBy reports whether c satisfies req: for a Named requirement,
// c's version must be in req's specifier (honoring an explicit
// prerelease pin); req's extras are not compared. Direct-reference
// requirements are
// satisfied trivially since the Repository only ever offers one candidate
// for them.
func (p *Provider) IsSatisfiedBy(req requirement.Requirement, c *candidate.Candidate) bool {
	if req.Kind != requirement.Named {
		return true
	}
	if req.Specifier.Empty() {
		return true
	}
	v, err := pep440.Parse(c.Version)
	if err != nil {
		return false
	}
	return req.Specifier.Contains(v, p.AllowPrereleases || req.Specifier.HasExplicitPrerelease())
}

// GetDependencies fetches c's dependency list via the Repository and
// filters out any whose marker evaluates false for p.Env, given the
// extras the requiring vertex was installed with.
func (p *Provider) GetDependencies(ctx context.Context, c *candidate.Candidate, extras map[string]bool) ([]requirement.Requirement, error) {
	deps, requiresPython, summary, err := p.Repo.GetDependencies(ctx, c)
	if err != nil {
		return nil, err
	}
	c.Summary = summary
	if !requiresPython.IsAllowAll() {
		c.RequiresPython = requiresPython
	}
	out := make([]requirement.Requirement, 0, len(deps))
	for _, d := range deps {
		if !d.EvalMarker(p.Env, extras) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// CandidateKey is the identity a resolver uses to record an
// incompatibility: name@version for a Named candidate, or the link for a
// direct-reference one (versions of those aren't comparable the way
// index-resolved ones are).
func CandidateKey(c *candidate.Candidate) string {
	if c.Version != "" {
		return fmt.Sprintf("%s@%s", c.Name, c.Version)
	}
	return fmt.Sprintf("%s@%s", c.Name, c.Link)
}
