package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/wheelhouse-dev/wheelhouse/internal/candidate"
	"github.com/wheelhouse-dev/wheelhouse/internal/environment"
	"github.com/wheelhouse-dev/wheelhouse/internal/installer"
	"github.com/wheelhouse-dev/wheelhouse/internal/lockfile"
	"github.com/wheelhouse-dev/wheelhouse/internal/manifest"
	"github.com/wheelhouse-dev/wheelhouse/internal/pyspec"
	"github.com/wheelhouse-dev/wheelhouse/internal/repository"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
	"github.com/wheelhouse-dev/wheelhouse/internal/sync"
)

// cmdSync replays the lockfile against an environment's working set:
// it never resolves, it only installs/updates/removes to match
// what was already decided at lock time.
func cmdSync(core *Core, args []string) error {
	flags := pflag.NewFlagSet("sync", pflag.ContinueOnError)
	dryRun := flags.Bool("dry-run", false, "compute and report the diff without installing anything")
	noEditable := flags.Bool("no-editable", false, "force editable candidates to install normally")
	clean := flags.Bool("clean", true, "remove installed distributions absent from the target set")
	useCache := flags.Bool("cache", false, "install via the shared content-addressed package cache")
	allGroups := flags.Bool("all-groups", false, "install every dependency group, not just the default one")
	prefix := flags.String("prefix", filepath.Join(core.ProjectDir, ".venv"), "environment prefix to install into")
	pythonVersion := flags.String("python-version", "3.12", "interpreter version, for the site-packages path")
	groups := flags.StringArray("group", nil, "a dependency group to include in addition to \"default\" (repeatable)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	m, err := core.loadManifest()
	if err != nil {
		return fmt.Errorf("loading %s: %w", manifestFile, err)
	}

	doc, err := lockfile.Read(core.lockPath())
	if err != nil {
		return fmt.Errorf("reading %s: %w", lockFile, err)
	}
	if !lockfile.IsUpToDate(doc, m.Surface()) {
		core.Logger.Printf("warning: %s is stale relative to %s; run lock first", lockFile, manifestFile)
	}

	selected := map[string]bool{manifest.DefaultGroup: true}
	for _, g := range *groups {
		selected[g] = true
	}

	repo, err := repository.NewLockedRepository(doc)
	if err != nil {
		return fmt.Errorf("reading locked packages: %w", err)
	}

	// SIGINT/SIGTERM cancel the context; in-flight installers finish
	// their current step and pending tasks are dropped.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	target, excluded, err := selectTarget(ctx, repo, doc, selected, *allGroups)
	if err != nil {
		return err
	}

	scheme := environment.DefaultScheme(*prefix, *pythonVersion, "")
	ws, err := environment.Scan(ctx, scheme)
	if err != nil {
		return fmt.Errorf("scanning environment at %s: %w", scheme.Purelib, err)
	}

	var cache *installer.Cache
	if *useCache {
		cache = &installer.Cache{Root: core.CacheDir}
	}
	synchronizer := &sync.Synchronizer{
		Installer:  &installer.Installer{Scheme: scheme, Cache: cache},
		Scheme:     scheme,
		RetryTimes: sync.DefaultRetryTimes,
	}

	opts := sync.Options{
		Clean:      *clean,
		DryRun:     *dryRun,
		NoEditable: *noEditable,
		UseCache:   *useCache,
	}
	result, err := synchronizer.Synchronize(ctx, target, ws, excluded, opts)
	if err != nil {
		return fmt.Errorf("synchronizing: %w", err)
	}

	action := "would"
	if !*dryRun {
		action = "did"
	}
	fmt.Printf("%s: add=%d update=%d remove=%d\n", action, len(result.Diff.ToAdd), len(result.Diff.ToUpdate), len(result.Diff.ToRemove))
	if len(result.Failed) > 0 {
		for id, ferr := range result.Failed {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", id, ferr)
		}
		return fmt.Errorf("%d task(s) failed", len(result.Failed))
	}
	return nil
}

// selectTarget builds sync's target candidate set from every locked
// package whose attributed sections intersect the selected groups (or
// every package, if allGroups — or a package from before Sections
// attribution existed, whose Sections is empty), and the set of
// identifiers to exclude from removal: everything the lockfile knows
// about but the current group selection left out, which remains validly
// installed by an earlier, broader sync rather than something stale to
// clean up.
func selectTarget(ctx context.Context, repo *repository.LockedRepository, doc lockfile.Document, selected map[string]bool, allGroups bool) (map[string]*candidate.Candidate, map[string]bool, error) {
	target := map[string]*candidate.Candidate{}
	excluded := map[string]bool{}
	for _, pkg := range doc.Packages {
		req := requirement.Requirement{Kind: requirement.Named, Name: requirement.CanonPackageName(pkg.Name), Extras: pkg.Extras}
		id := req.Identify()

		include := allGroups || len(pkg.Sections) == 0
		for _, s := range pkg.Sections {
			if selected[s] {
				include = true
				break
			}
		}
		if !include {
			excluded[id] = true
			continue
		}

		matches, err := repo.FindCandidates(ctx, req, pyspec.AllowAll(), true)
		if err != nil {
			return nil, nil, fmt.Errorf("locked package %s: %w", pkg.Name, err)
		}
		if len(matches) == 0 {
			continue
		}
		target[id] = matches[0]
	}
	return target, excluded, nil
}
