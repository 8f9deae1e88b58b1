// Package sync implements the synchronizer: it diffs a resolved
// candidate set against an environment's working set and schedules
// install/update/remove tasks over a worker pool, with retry,
// cancellation, and dry-run support.
package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	gosync "sync"

	"golang.org/x/sync/errgroup"

	"github.com/wheelhouse-dev/wheelhouse/internal/candidate"
	"github.com/wheelhouse-dev/wheelhouse/internal/environment"
	"github.com/wheelhouse-dev/wheelhouse/internal/installer"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

// defaultBootstrapPackages mirrors pip's own bootstrap set: the tool
// itself, plus the packages every build backend may implicitly need.
var defaultBootstrapPackages = []string{"pip", "setuptools", "wheel"}

// DefaultRetryTimes is the single re-attempt a failed task normally
// gets; callers wanting no retry set RetryTimes to zero explicitly.
const DefaultRetryTimes = 1

// ProgressEvent is one start/update/finish notification for a single
// sync task, emitted to an out-of-band Sink.
type ProgressEvent struct {
	Phase string // "update", "remove", or "add"
	ID    string
	State string // "start", "finish", "failed"
	Err   error
}

// Sink receives progress events; the reference terminal progress bar is
// a collaborator implementing this, not part of the synchronizer itself.
type Sink interface {
	OnEvent(ProgressEvent)
}

type noopSink struct{}

func (noopSink) OnEvent(ProgressEvent) {}

// Options configures one Synchronize call.
type Options struct {
	// Clean, when false, suppresses ToRemove entirely.
	Clean bool
	// DryRun computes and reports the diff but performs no side effects.
	DryRun bool
	// NoEditable forces editable candidates to install as non-editable.
	NoEditable bool
	// FailFast stops scheduling new tasks once one has failed on every
	// attempt (1 + RetryTimes); already-running tasks still finish.
	FailFast bool
	// Reinstall adds every matching id to ToUpdate even when its version
	// already matches the target.
	Reinstall bool
	// Parallelism overrides the pool size; zero means
	// min(runtime.NumCPU(), 8).
	Parallelism int
	// UseCache routes index-resolved installs through the Installer's
	// shared content-addressed package cache when one is configured,
	// mirroring the project
	// config's install.cache switch.
	UseCache bool
}

// Diff is the three disjoint id sets a sync pass schedules.
type Diff struct {
	ToAdd    []string
	ToUpdate []string
	ToRemove []string
}

// Result reports what Synchronize did (or, under DryRun, would do).
type Result struct {
	Diff    Diff
	Failed  map[string]error
	DryRun  bool
}

// Preparer materializes a candidate's install artifact — downloading a
// wheel or building an sdist/editable project — the same collaborator
// internal/candidate.Candidate.Prepare delegates to.
type Preparer = candidate.Preparer

// Synchronizer owns one environment's install scheme and drives its
// working set toward a target candidate set.
type Synchronizer struct {
	Installer *installer.Installer
	Scheme    environment.Scheme
	Sink      Sink

	// RetryTimes is how many additional attempts a failed task gets.
	// Zero means no retry; callers normally set DefaultRetryTimes.
	RetryTimes int

	// BootstrapPackages are installed sequentially, pinned to the front
	// of the schedule, before any parallel task starts. Defaults to
	// pip/setuptools/wheel when nil.
	BootstrapPackages []string
}

func (s *Synchronizer) bootstrapSet() map[string]bool {
	names := s.BootstrapPackages
	if names == nil {
		names = defaultBootstrapPackages
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[requirement.CanonPackageName(n)] = true
	}
	return set
}

// ComputeDiff diffs target against the current
// working set. excludedGroups lists package ids the caller's group
// selection means should never be removed even if they're absent from
// target (e.g. a dev-only dependency when syncing only the default
// group).
func ComputeDiff(target map[string]*candidate.Candidate, ws environment.WorkingSet, opts Options, bootstrap map[string]bool, excludedFromRemoval map[string]bool) Diff {
	var d Diff
	for id, c := range target {
		dist, installed := ws[id]
		if !installed {
			d.ToAdd = append(d.ToAdd, id)
			continue
		}
		if opts.Reinstall {
			d.ToUpdate = append(d.ToUpdate, id)
			continue
		}
		if dist.Editable {
			continue // editable distributions are always consistent
		}
		if dist.Version != c.Version {
			d.ToUpdate = append(d.ToUpdate, id)
		}
	}
	if opts.Clean {
		for id := range ws {
			if _, wanted := target[id]; wanted {
				continue
			}
			if bootstrap[id] || excludedFromRemoval[id] {
				continue
			}
			d.ToRemove = append(d.ToRemove, id)
		}
	}
	sort.Strings(d.ToAdd)
	sort.Strings(d.ToUpdate)
	sort.Strings(d.ToRemove)
	return d
}

// Synchronize runs the full sync protocol: compute the diff, front-load
// the bootstrap packages sequentially, then run update → remove → add
// passes (each internally parallel, with no ordering inside a pass).
func (s *Synchronizer) Synchronize(ctx context.Context, target map[string]*candidate.Candidate, ws environment.WorkingSet, excludedFromRemoval map[string]bool, opts Options) (*Result, error) {
	sink := s.Sink
	if sink == nil {
		sink = noopSink{}
	}
	bootstrap := s.bootstrapSet()
	diff := ComputeDiff(target, ws, opts, bootstrap, excludedFromRemoval)

	if opts.DryRun {
		return &Result{Diff: diff, DryRun: true}, nil
	}

	result := &Result{Diff: diff, Failed: map[string]error{}}
	var mu gosync.Mutex
	recordFailure := func(id string, err error) {
		mu.Lock()
		result.Failed[id] = err
		mu.Unlock()
	}

	// Bootstrap packages among ToAdd/ToUpdate are installed sequentially
	// first, strictly before any parallel task begins.
	var bootstrapIDs, restAdd, restUpdate []string
	for _, id := range diff.ToAdd {
		if bootstrap[id] {
			bootstrapIDs = append(bootstrapIDs, id)
		} else {
			restAdd = append(restAdd, id)
		}
	}
	for _, id := range diff.ToUpdate {
		if bootstrap[id] {
			bootstrapIDs = append(bootstrapIDs, id)
		} else {
			restUpdate = append(restUpdate, id)
		}
	}
	for _, id := range bootstrapIDs {
		c := target[id]
		if err := s.runWithRetry(ctx, "add", id, func() error { return s.installOne(ctx, c, ws[id], opts) }, sink); err != nil {
			recordFailure(id, err)
			if opts.FailFast {
				return result, fmt.Errorf("sync: bootstrap package %s: %w", id, err)
			}
		}
	}

	limit := opts.Parallelism
	if limit <= 0 {
		limit = runtime.NumCPU()
		if limit > 8 {
			limit = 8
		}
		if limit < 1 {
			limit = 1
		}
	}

	// Pass order: update, then remove, then add.
	if err := s.runPhase(ctx, "update", restUpdate, limit, sink, recordFailure, opts, func(id string) error {
		return s.installOne(ctx, target[id], ws[id], opts)
	}); err != nil && opts.FailFast {
		return result, err
	}
	if err := s.runPhase(ctx, "remove", diff.ToRemove, limit, sink, recordFailure, opts, func(id string) error {
		return s.removeOne(ctx, ws[id])
	}); err != nil && opts.FailFast {
		return result, err
	}
	if err := s.runPhase(ctx, "add", restAdd, limit, sink, recordFailure, opts, func(id string) error {
		return s.installOne(ctx, target[id], nil, opts)
	}); err != nil && opts.FailFast {
		return result, err
	}

	if len(result.Failed) > 0 {
		return result, InstallationError{Failed: result.Failed}
	}
	return result, nil
}

func (s *Synchronizer) runPhase(ctx context.Context, phase string, ids []string, limit int, sink Sink, recordFailure func(string, error), opts Options, task func(id string) error) error {
	if len(ids) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := s.runWithRetry(gctx, phase, id, func() error { return task(id) }, sink)
			if err != nil {
				recordFailure(id, err)
				if opts.FailFast {
					return fmt.Errorf("sync: %s %s: %w", phase, id, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// runWithRetry runs fn, retrying up to s.RetryTimes more times on
// failure, emitting progress events around the whole
// attempt sequence.
func (s *Synchronizer) runWithRetry(ctx context.Context, phase, id string, fn func() error, sink Sink) error {
	sink.OnEvent(ProgressEvent{Phase: phase, ID: id, State: "start"})
	var err error
	for attempt := 0; attempt <= s.RetryTimes; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			sink.OnEvent(ProgressEvent{Phase: phase, ID: id, State: "failed", Err: ctxErr})
			return ctxErr
		}
		err = fn()
		if err == nil {
			sink.OnEvent(ProgressEvent{Phase: phase, ID: id, State: "finish"})
			return nil
		}
	}
	sink.OnEvent(ProgressEvent{Phase: phase, ID: id, State: "failed", Err: err})
	return err
}

// installOne installs target onto the environment. If existing is
// non-nil (an update), the new version is installed first and then only
// paths unique to the old version are removed,
// preserving files the two versions share.
func (s *Synchronizer) installOne(ctx context.Context, c *candidate.Candidate, existing *environment.Distribution, opts Options) error {
	if opts.NoEditable {
		c.Req.Editable = false
	}
	prep, err := c.Prepare(ctx)
	if err != nil {
		return fmt.Errorf("sync: preparing %s %s: %w", c.Name, c.Version, err)
	}

	// An editable candidate installs as an import redirect (.pth plus a
	// lightweight dist-info) pointing at its source directory; the build
	// the Preparer ran is still what supplied its name, version and
	// dependency list. Everything else installs the prepared wheel.
	var dist *environment.Distribution
	if c.Req.Editable {
		src := c.Req.Path
		if src == "" && prep.DirectURLProvenance != nil {
			src = prep.DirectURLProvenance.Path
		}
		dist, err = s.Installer.InstallEditable(ctx, src, c)
	} else {
		dist, err = s.installWheel(ctx, c, prep, opts)
	}
	if err != nil {
		return err
	}

	if existing != nil {
		oldPaths := map[string]bool{}
		for _, f := range existing.Files {
			oldPaths[f.Path] = true
		}
		for _, f := range dist.Files {
			delete(oldPaths, f.Path)
		}
		if len(oldPaths) > 0 {
			var toRemove []string
			for p := range oldPaths {
				toRemove = append(toRemove, resolveSchemePath(s.Scheme, p))
			}
			sort.Strings(toRemove)
			rp, err := installer.Stash(s.Scheme.Purelib, toRemove)
			if err != nil {
				return fmt.Errorf("sync: stashing superseded paths for %s: %w", c.Name, err)
			}
			if err := rp.Commit(); err != nil {
				return fmt.Errorf("sync: committing superseded-path removal for %s: %w", c.Name, err)
			}
		}
	}
	return nil
}

// installWheel installs prep.WheelPath for c, linking it out of the
// shared package cache instead of copying its files directly when
// opts.UseCache is set, a cache is configured, and c is an ordinary
// index-resolved candidate (cache linking is scoped
// to named requirements; VCS/file/URL/editable installs always get a
// private copy since their content isn't a stable cache key).
func (s *Synchronizer) installWheel(ctx context.Context, c *candidate.Candidate, prep candidate.Prepared, opts Options) (*environment.Distribution, error) {
	if !opts.UseCache || s.Installer.Cache == nil || c.Req.Kind != requirement.Named || c.Req.Editable {
		return s.Installer.InstallWheel(ctx, prep.WheelPath, c)
	}
	hash := c.Hashes[c.Link]
	if hash == "" {
		return s.Installer.InstallWheel(ctx, prep.WheelPath, c)
	}
	if i := strings.IndexByte(hash, ':'); i >= 0 {
		hash = hash[i+1:]
	}
	distTag := strings.TrimSuffix(filepath.Base(prep.WheelPath), ".whl")
	return s.Installer.Cache.Materialize(s.Installer, prep.WheelPath, hash, distTag, s.Scheme.Purelib, func(scheme environment.Scheme) (*environment.Distribution, error) {
		return s.Installer.InstallWheelTo(ctx, scheme, prep.WheelPath, c)
	})
}

// removeOne runs the stash-commit uninstall protocol for an installed
// distribution.
func (s *Synchronizer) removeOne(ctx context.Context, dist *environment.Distribution) error {
	if dist == nil {
		return nil
	}
	paths := installer.PathsForDistribution(s.Scheme, dist)
	rp, err := installer.Stash(s.Scheme.Purelib, paths)
	if err != nil {
		return installer.UninstallError{Distribution: dist.Name, Err: err}
	}
	// A legacy "develop" install may also be registered in
	// easy-install.pth; splice its line out while the stash guard can
	// still restore it.
	if dist.Editable && dist.DirectURL != nil {
		src := strings.TrimPrefix(dist.DirectURL.URL, "file://")
		pth := filepath.Join(s.Scheme.Purelib, "easy-install.pth")
		if err := rp.SpliceEasyInstall(pth, map[string]bool{src: true}); err != nil {
			rp.Rollback()
			return installer.UninstallError{Distribution: dist.Name, Err: err}
		}
	}
	if err := rp.Commit(); err != nil {
		rollbackErr := rp.Rollback()
		if rollbackErr != nil {
			return installer.UninstallError{Distribution: dist.Name, Err: fmt.Errorf("commit failed (%v), rollback also failed: %w", err, rollbackErr)}
		}
		return installer.UninstallError{Distribution: dist.Name, Err: err}
	}
	if dist.ReferTo != "" && s.Installer.Cache != nil {
		if err := s.Installer.Cache.RemoveReferrer(dist.ReferTo, s.Scheme.Purelib); err != nil {
			return fmt.Errorf("sync: decrementing cache referrer for %s: %w", dist.Name, err)
		}
	}
	return nil
}

func resolveSchemePath(scheme environment.Scheme, recordPath string) string {
	return installer.ResolveRecordPath(scheme, recordPath)
}

// InstallationError aggregates every task failure from one Synchronize
// call.
type InstallationError struct {
	Failed map[string]error
}

func (e InstallationError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("sync: %d task(s) failed: %v", len(ids), ids)
}
