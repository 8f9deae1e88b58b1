package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/wheelhouse-dev/wheelhouse/internal/lockfile"
	"github.com/wheelhouse-dev/wheelhouse/internal/manifest"
	"github.com/wheelhouse-dev/wheelhouse/internal/marker"
	"github.com/wheelhouse-dev/wheelhouse/internal/provider"
	"github.com/wheelhouse-dev/wheelhouse/internal/pyspec"
	"github.com/wheelhouse-dev/wheelhouse/internal/repository"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
	"github.com/wheelhouse-dev/wheelhouse/internal/resolver"
)

// cmdLock resolves the project manifest's full dependency surface and
// (re)writes the lockfile.
func cmdLock(core *Core, args []string) error {
	flags := pflag.NewFlagSet("lock", pflag.ContinueOnError)
	allowPre := flags.Bool("allow-prereleases", false, "allow pre-release candidates")
	update := flags.Bool("update", false, "ignore the existing lockfile's pins and re-resolve everything")
	updateNames := flags.StringSlice("update-package", nil, "re-resolve only the named packages, keeping every other pin (repeatable)")
	eager := flags.Bool("eager", false, "with --update-package, also re-resolve their transitive dependencies")
	if err := flags.Parse(args); err != nil {
		return err
	}

	m, err := core.loadManifest()
	if err != nil {
		return fmt.Errorf("loading %s: %w", manifestFile, err)
	}

	projectRequires := pyspec.AllowAll()
	if m.Project.RequiresPython != "" {
		projectRequires, err = pyspec.Parse(m.Project.RequiresPython)
		if err != nil {
			return fmt.Errorf("parsing project requires-python %q: %w", m.Project.RequiresPython, err)
		}
	}
	if m.Tool.Wheelhouse.AllowPrereleases {
		*allowPre = true
	}

	groupRoots, rootReqs, err := parseGroups(m)
	if err != nil {
		return err
	}

	clients := make([]repository.IndexClient, 0, len(m.Tool.Wheelhouse.Source))
	for _, src := range m.Tool.Wheelhouse.Source {
		clients = append(clients, &repository.SimpleAPIClient{BaseURL: src.URL, HTTPClient: core.HTTPClient})
	}
	repo := repository.NewIndexRepository(clients, nil, core.HTTPClient, core.CacheDir)

	strategy := provider.All
	locked := map[string]requirement.Requirement{}
	var tracked map[string]bool
	if !*update {
		if doc, err := lockfile.Read(core.lockPath()); err == nil {
			strategy = provider.Reuse
			locked = lockedPins(doc)
			if len(*updateNames) > 0 {
				tracked = trackedIdentifiers(doc, *updateNames)
				if *eager {
					strategy = provider.Eager
					tracked = provider.ExpandTrackedNames(lockedDependencyGraph(doc), tracked)
				}
			}
		}
	}

	p := provider.New(repo, marker.Current(), projectRequires, *allowPre, strategy, locked, tracked, rootReqs)

	core.debugf("resolving %d root requirements across %d groups\n", len(rootReqs), len(groupRoots))
	result, err := resolver.Resolve(context.Background(), p, rootReqs, 0, repository.HashFetcher{Repo: repo})
	if err != nil {
		return fmt.Errorf("resolving dependencies: %w", err)
	}

	doc := buildLockDocument(m, result, groupRoots)
	if err := lockfile.Write(core.lockPath(), doc); err != nil {
		return fmt.Errorf("writing %s: %w", lockFile, err)
	}
	fmt.Printf("locked %d packages to %s\n", len(doc.Packages), core.lockPath())
	return nil
}

// parseGroups parses every dependency group's PEP 508 strings, returning
// both the per-group root requirements (for the lockfile's Sections attribution)
// and the flattened list the resolver is driven with.
func parseGroups(m manifest.Manifest) (map[string][]requirement.Requirement, []requirement.Requirement, error) {
	groups := m.Groups()
	groupRoots := make(map[string][]requirement.Requirement, len(groups))
	var rootReqs []requirement.Requirement
	for _, name := range m.GroupNames() {
		for _, depStr := range groups[name] {
			req, err := requirement.Parse(depStr, name)
			if err != nil {
				return nil, nil, fmt.Errorf("parsing dependency %q in group %q: %w", depStr, name, err)
			}
			groupRoots[name] = append(groupRoots[name], req)
			rootReqs = append(rootReqs, req)
		}
	}
	return groupRoots, rootReqs, nil
}

// lockedPins builds the Reuse/Eager strategy's injected-constraint map
// from a prior lockfile: every locked vertex pinned to its exact version.
func lockedPins(doc lockfile.Document) map[string]requirement.Requirement {
	pins := make(map[string]requirement.Requirement, len(doc.Packages))
	for _, pkg := range doc.Packages {
		req := requirement.Requirement{Kind: requirement.Named, Name: requirement.CanonPackageName(pkg.Name), Extras: pkg.Extras}
		if pkg.Version == "" {
			continue
		}
		spec, err := requirement.Parse(fmt.Sprintf("%s==%s", pkg.Name, pkg.Version), "locked")
		if err != nil {
			continue
		}
		req.Specifier = spec.Specifier
		pins[req.Identify()] = req
	}
	return pins
}

// trackedIdentifiers maps the user's bare package names onto the locked
// vertices they unlock — both the plain name and any name[extras]
// variants, since an update of "requests" should free requests[socks]
// too.
func trackedIdentifiers(doc lockfile.Document, names []string) map[string]bool {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[requirement.CanonPackageName(n)] = true
	}
	tracked := map[string]bool{}
	for _, pkg := range doc.Packages {
		if !want[requirement.CanonPackageName(pkg.Name)] {
			continue
		}
		req := requirement.Requirement{Kind: requirement.Named, Name: requirement.CanonPackageName(pkg.Name), Extras: pkg.Extras}
		tracked[req.Identify()] = true
	}
	return tracked
}

// lockedDependencyGraph rebuilds the prior resolution's vertex → dependency
// edges from the lockfile's stored requirement strings, the graph the
// Eager strategy's closure expansion walks.
func lockedDependencyGraph(doc lockfile.Document) map[string][]requirement.Requirement {
	deps := map[string][]requirement.Requirement{}
	for _, pkg := range doc.Packages {
		req := requirement.Requirement{Kind: requirement.Named, Name: requirement.CanonPackageName(pkg.Name), Extras: pkg.Extras}
		id := req.Identify()
		for _, depStr := range pkg.Dependencies {
			d, err := requirement.Parse(depStr, "locked")
			if err != nil {
				continue
			}
			deps[id] = append(deps[id], d)
		}
	}
	return deps
}

// buildLockDocument converts a resolution into the lockfile's shape.
func buildLockDocument(m manifest.Manifest, result *resolver.Result, groupRoots map[string][]requirement.Requirement) lockfile.Document {
	sections := computeSections(groupRoots, result)
	doc := lockfile.Document{Metadata: lockfile.DocumentMetadata{
		ContentHash: m.ContentHash(),
		Files:       map[string][]lockfile.FileEntry{},
	}}
	for _, id := range result.Order {
		c := result.Mapping[id]
		_, extras := splitIdentifier(id)

		deps := result.Dependencies[id]
		depStrs := make([]string, len(deps))
		for i, d := range deps {
			depStrs[i] = d.String()
		}
		sort.Strings(depStrs)

		pkg := lockfile.Package{
			Name:         c.Name,
			Version:      c.Version,
			Summary:      c.Summary,
			Dependencies: depStrs,
			Extras:       extras,
			Sections:     sections[id],
			Editable:     c.Req.Editable,
		}
		if !c.RequiresPython.IsAllowAll() {
			pkg.RequiresPython = c.RequiresPython.String()
		}
		switch c.Req.Kind {
		case requirement.VCS:
			pkg.Git = c.Req.URL
			pkg.Revision = c.Req.Revision
		case requirement.File:
			pkg.Path = c.Req.Path
		case requirement.URL:
			pkg.URL = c.Req.URL
		}
		doc.Packages = append(doc.Packages, pkg)

		if len(c.Hashes) > 0 {
			key := fmt.Sprintf("%s %s", c.Name, c.Version)
			entries := make([]lockfile.FileEntry, 0, len(c.Hashes))
			for url, hash := range c.Hashes {
				entries = append(entries, lockfile.FileEntry{URL: url, Hash: hash})
			}
			sort.Slice(entries, func(i, j int) bool { return entries[i].URL < entries[j].URL })
			doc.Metadata.Files[key] = entries
		}
	}
	return doc
}

// splitIdentifier reverses Requirement.Identify's "name[extra1,extra2]"
// form back into its parts.
func splitIdentifier(id string) (name string, extras []string) {
	i := strings.IndexByte(id, '[')
	if i < 0 {
		return id, nil
	}
	name = id[:i]
	rest := strings.TrimSuffix(id[i+1:], "]")
	if rest == "" {
		return name, nil
	}
	return name, strings.Split(rest, ",")
}

// computeSections attributes every resolved vertex to the manifest
// groups whose dependency closure reaches it:
// a BFS from each group's own root requirements over result.Dependencies.
func computeSections(groupRoots map[string][]requirement.Requirement, result *resolver.Result) map[string][]string {
	reached := map[string]map[string]bool{}
	for group, roots := range groupRoots {
		visited := map[string]bool{}
		queue := make([]string, 0, len(roots))
		for _, r := range roots {
			queue = append(queue, r.Identify())
		}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			if visited[id] {
				continue
			}
			visited[id] = true
			if reached[id] == nil {
				reached[id] = map[string]bool{}
			}
			reached[id][group] = true
			for _, dep := range result.Dependencies[id] {
				queue = append(queue, dep.Identify())
			}
		}
	}
	out := make(map[string][]string, len(reached))
	for id, set := range reached {
		names := make([]string, 0, len(set))
		for g := range set {
			names = append(names, g)
		}
		sort.Strings(names)
		out[id] = names
	}
	return out
}
