// Package resolver implements the backtracking resolver driver: the
// criteria/backtracking state machine of pip's resolvelib (push/pop states,
// informationReqs/informationParents, isCurrentPinSatisfying), adapted to
// return a flat (mapping, dependencies) keyed by the requirement identify
// string instead of a graph of version nodes, since the lockfile format
// is flat, not graph-shaped.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/wheelhouse-dev/wheelhouse/internal/candidate"
	"github.com/wheelhouse-dev/wheelhouse/internal/provider"
	"github.com/wheelhouse-dev/wheelhouse/internal/repository"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

// DefaultMaxRounds bounds the resolver's round count
// before it gives up with ResolutionTooDeep.
const DefaultMaxRounds = 10000

// Provider is the contract the resolver drives, implemented by
// internal/provider.Provider. Kept narrow (rather than importing
// *provider.Provider directly) so tests can supply a fake.
type Provider interface {
	Identify(req requirement.Requirement) string
	GetPreference(info provider.PreferenceInfo) provider.PreferenceKey
	FindMatches(ctx context.Context, identifier string, reqs []requirement.Requirement, incompatibilities map[string]bool) ([]*candidate.Candidate, error)
	IsSatisfiedBy(req requirement.Requirement, c *candidate.Candidate) bool
	GetDependencies(ctx context.Context, c *candidate.Candidate, extras map[string]bool) ([]requirement.Requirement, error)
}

// InjectedConstraintProvider is an optional capability a Provider may
// implement to pin an untracked vertex to its prior lockfile entry,
// backing the Reuse/Eager update strategies. internal/provider.Provider
// implements it; the resolver discovers it with a type assertion so a
// minimal test Provider isn't forced to carry lockfile-pin machinery it
// doesn't exercise.
type InjectedConstraintProvider interface {
	InjectedConstraint(identifier string) (requirement.Requirement, bool)
}

// Result is a successful resolution: every vertex pinned to exactly one
// candidate, plus each candidate's own (already marker-filtered)
// dependency list, both keyed by identify string.
type Result struct {
	Mapping      map[string]*candidate.Candidate
	Dependencies map[string][]requirement.Requirement
	// Order lists identifiers sorted lexically, for deterministic
	// lockfile iteration; it carries no information about pin order.
	Order []string
}

// criterion mirrors resolvelib's criterion: the accumulated requirements
// on a vertex, their parents (for diagnostics), the union of requested
// extras, and the current candidate/incompatibility sets.
type criterion struct {
	reqs              []requirement.Requirement
	parents           []string // identify of the requiring candidate, "" for root
	extras            map[string]bool
	incompatibilities map[string]bool
	candidates        []*candidate.Candidate
	// injected marks that this vertex's InjectedConstraintProvider check
	// has already run, so a Reuse/Eager pin is folded in at most once per
	// vertex rather than re-queried on every incoming requirement.
	injected bool
}

func (c criterion) clone() criterion {
	extras := make(map[string]bool, len(c.extras))
	for k, v := range c.extras {
		extras[k] = v
	}
	incompat := make(map[string]bool, len(c.incompatibilities))
	for k, v := range c.incompatibilities {
		incompat[k] = v
	}
	return criterion{
		reqs:              c.reqs,
		parents:           c.parents,
		extras:            extras,
		incompatibilities: incompat,
		candidates:        c.candidates,
		injected:          c.injected,
	}
}

type state struct {
	mapping  map[string]*candidate.Candidate
	criteria map[string]criterion
}

func (s *state) clone() *state {
	mapping := make(map[string]*candidate.Candidate, len(s.mapping))
	for k, v := range s.mapping {
		mapping[k] = v
	}
	criteria := make(map[string]criterion, len(s.criteria))
	for k, v := range s.criteria {
		criteria[k] = v
	}
	return &state{mapping: mapping, criteria: criteria}
}

// resolution holds the stack of states the backtracking algorithm
// manipulates, exactly as resolvelib's resolution type does.
type resolution struct {
	p      Provider
	states []*state
}

func (r *resolution) top() *state { return r.states[len(r.states)-1] }

func (r *resolution) pushClone() {
	r.states = append(r.states, r.top().clone())
}

// foldRequirement folds req (declared by parent, "" for the project root,
// "locked" for an injected pin) into crit, re-querying FindMatches with the
// widened requirement set. Returns crit unchanged if req was already
// present for that parent.
func (r *resolution) foldRequirement(ctx context.Context, name string, crit criterion, req requirement.Requirement, parent string) (criterion, error) {
	for i, old := range crit.reqs {
		if old.String() == req.String() && crit.parents[i] == parent {
			return crit, nil
		}
	}
	reqs := append(append([]requirement.Requirement(nil), crit.reqs...), req)
	matches, err := r.p.FindMatches(ctx, name, reqs, crit.incompatibilities)
	if err != nil {
		return criterion{}, conflict(name, reqs, crit.parents, parent, err)
	}
	newCrit := crit.clone()
	newCrit.candidates = matches
	newCrit.reqs = reqs
	newCrit.parents = append(append([]string(nil), crit.parents...), parent)
	newCrit.extras = unionExtras(crit.extras, req.Extras)
	return newCrit, nil
}

// mergeIntoCriterion folds req (declared by parent, "" for the project
// root) into the criterion for its vertex, first folding in a Reuse/Eager
// lockfile pin the first time this vertex is ever visited, then
// re-querying FindMatches with the widened requirement
// set.
func (r *resolution) mergeIntoCriterion(ctx context.Context, req requirement.Requirement, parent string) (string, criterion, error) {
	name := r.p.Identify(req)
	crit := r.top().criteria[name]

	if !crit.injected {
		crit.injected = true
		if injector, ok := r.p.(InjectedConstraintProvider); ok {
			if injReq, ok := injector.InjectedConstraint(name); ok {
				folded, err := r.foldRequirement(ctx, name, crit, injReq, "locked")
				if err != nil {
					return "", criterion{}, err
				}
				folded.injected = true
				crit = folded
			}
		}
	}

	newCrit, err := r.foldRequirement(ctx, name, crit, req, parent)
	if err != nil {
		return "", criterion{}, err
	}
	return name, newCrit, nil
}

func unionExtras(extras map[string]bool, add []string) map[string]bool {
	out := make(map[string]bool, len(extras)+len(add))
	for k, v := range extras {
		out[k] = v
	}
	for _, e := range add {
		out[e] = true
	}
	return out
}

// isCurrentPinSatisfying reports whether the vertex's pinned candidate
// (if any) is still one of its criterion's acceptable candidates.
func (r *resolution) isCurrentPinSatisfying(name string, crit criterion) bool {
	pin, ok := r.top().mapping[name]
	if !ok {
		return false
	}
	for _, c := range crit.candidates {
		if c == pin {
			return true
		}
	}
	return false
}

// getCriteriaToUpdate fetches candidate's own dependencies and folds each
// one into the current criteria, without mutating the live state (the
// caller commits the result only once it knows the whole set succeeded).
func (r *resolution) getCriteriaToUpdate(ctx context.Context, name string, c *candidate.Candidate, extras map[string]bool) (map[string]criterion, error) {
	deps, err := r.p.GetDependencies(ctx, c, extras)
	if err != nil {
		return nil, err
	}
	updates := map[string]criterion{}
	for _, d := range deps {
		depName, crit, err := r.mergeIntoCriterion(ctx, d, name)
		if err != nil {
			return nil, err
		}
		updates[depName] = crit
	}
	return updates, nil
}

// attemptToPinCriterion tries each of name's candidates in order (they
// arrive best-first from FindMatches) until one's own dependencies don't
// conflict with the rest of the graph.
func (r *resolution) attemptToPinCriterion(ctx context.Context, name string) ([]conflictError, error) {
	crit := r.top().criteria[name]
	var causes []conflictError
	for _, c := range crit.candidates {
		updates, err := r.getCriteriaToUpdate(ctx, name, c, crit.extras)
		if err != nil {
			var ce conflictError
			if errors.As(err, &ce) {
				causes = append(causes, ce)
				continue
			}
			// Unreadable metadata or a failed build rules out this one
			// candidate only; try the next and backtrack if none is left.
			var infoErr repository.CandidateInfoNotFoundError
			var buildErr repository.CandidateBuildError
			if errors.As(err, &infoErr) || errors.As(err, &buildErr) {
				causes = append(causes, conflictError{Identifier: name, Reqs: crit.reqs, Parents: crit.parents, Cause: err})
				continue
			}
			return nil, err
		}
		s := r.top()
		s.mapping[name] = c
		for n, uc := range updates {
			s.criteria[n] = uc
		}
		return nil, nil
	}
	return causes, nil
}

// backtrack winds the state stack back to a point where the newly
// discovered incompatibility can be folded in and something new tried,
// mirroring resolvelib's backtrack (filter candidates in place
// rather than re-querying FindMatches, since only the incompatibility set
// changed).
func (r *resolution) backtrack() bool {
	for len(r.states) >= 3 {
		r.states = r.states[:len(r.states)-1]
		broken := r.top()
		r.states = r.states[:len(r.states)-1]

		var brokenName string
		var brokenCandidate *candidate.Candidate
		for n, c := range broken.mapping {
			if _, ok := r.top().mapping[n]; !ok {
				brokenName, brokenCandidate = n, c
				break
			}
		}
		if brokenCandidate == nil {
			continue
		}

		type extraIncompat struct {
			name string
			key  string
		}
		var extra []extraIncompat
		for n, crit := range broken.criteria {
			for k := range crit.incompatibilities {
				extra = append(extra, extraIncompat{name: n, key: k})
			}
		}
		extra = append(extra, extraIncompat{name: brokenName, key: provider.CandidateKey(brokenCandidate)})

		r.pushClone()
		ok := true
		for _, e := range extra {
			crit, exists := r.top().criteria[e.name]
			if !exists {
				continue
			}
			if crit.incompatibilities[e.key] {
				continue
			}
			newCrit := crit.clone()
			newCrit.incompatibilities[e.key] = true
			var kept []*candidate.Candidate
			for _, c := range newCrit.candidates {
				if !newCrit.incompatibilities[provider.CandidateKey(c)] {
					kept = append(kept, c)
				}
			}
			if len(kept) == 0 {
				ok = false
				break
			}
			newCrit.candidates = kept
			r.top().criteria[e.name] = newCrit
		}
		if ok {
			return true
		}
	}
	return false
}

// resolve runs the criteria/backtracking loop to fixed point or maxRounds.
func (r *resolution) resolve(ctx context.Context, rootReqs []requirement.Requirement, maxRounds int) (*state, error) {
	r.states = []*state{{mapping: map[string]*candidate.Candidate{}, criteria: map[string]criterion{}}}
	s := r.top()
	for _, req := range rootReqs {
		name, crit, err := r.mergeIntoCriterion(ctx, req, "")
		if err != nil {
			var ce conflictError
			if errors.As(err, &ce) {
				return nil, ResolutionImpossibleError{Causes: []conflictError{ce}}
			}
			return nil, err
		}
		s.criteria[name] = crit
	}
	r.pushClone()

	for i := 0; i < maxRounds; i++ {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		s := r.top()
		var unsatisfied []string
		for name, crit := range s.criteria {
			if !r.isCurrentPinSatisfying(name, crit) {
				unsatisfied = append(unsatisfied, name)
			}
		}
		if len(unsatisfied) == 0 {
			return s, nil
		}
		sort.Strings(unsatisfied) // deterministic before preference ranking

		minName := unsatisfied[0]
		minKey := r.preference(minName)
		for _, name := range unsatisfied[1:] {
			key := r.preference(name)
			if key.Less(minKey) {
				minName, minKey = name, key
			}
		}

		causes, err := r.attemptToPinCriterion(ctx, minName)
		if err != nil {
			return nil, err
		}
		if len(causes) == 0 {
			r.pushClone()
			continue
		}
		if !r.backtrack() {
			return nil, ResolutionImpossibleError{Causes: causes}
		}
	}
	return nil, ResolutionTooDeepError{MaxRounds: maxRounds}
}

func (r *resolution) preference(name string) provider.PreferenceKey {
	crit := r.top().criteria[name]
	return r.p.GetPreference(provider.PreferenceInfo{
		Identifier:          name,
		Requirements:        crit.reqs,
		CandidatesRemaining: len(crit.candidates),
		Incompatibilities:   len(crit.incompatibilities),
		Pinned:              r.top().mapping[name] != nil,
	})
}

// Resolve runs the backtracking resolver to fixed point. On success it
// fans out hash-fetching over an errgroup before
// returning, so the lockfile writer has every candidate's artifact hashes
// ready without a second pass.
func Resolve(ctx context.Context, p Provider, rootReqs []requirement.Requirement, maxRounds int, hashes HashFetcher) (*Result, error) {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	res := &resolution{p: p}
	final, err := res.resolve(ctx, rootReqs, maxRounds)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Mapping:      map[string]*candidate.Candidate{},
		Dependencies: map[string][]requirement.Requirement{},
	}
	names := make([]string, 0, len(final.mapping))
	for name := range final.mapping {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := final.mapping[name]
		result.Mapping[name] = c
		result.Order = append(result.Order, name)
		deps, err := p.GetDependencies(ctx, c, final.criteria[name].extras)
		if err != nil {
			return nil, fmt.Errorf("resolver: re-reading dependencies for %s: %w", name, err)
		}
		result.Dependencies[name] = deps
	}

	if hashes != nil {
		g, gctx := errgroup.WithContext(ctx)
		for _, c := range result.Mapping {
			c := c
			g.Go(func() error { return hashes.FetchHashes(gctx, c) })
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("resolver: fetching artifact hashes: %w", err)
		}
	}

	return result, nil
}

// HashFetcher fetches and stores a candidate's artifact hashes, satisfied
// by a thin adapter over repository.Repository.GetHashes.
type HashFetcher interface {
	FetchHashes(ctx context.Context, c *candidate.Candidate) error
}
