package repository

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/wheelhouse-dev/wheelhouse/internal/candidate"
	"github.com/wheelhouse-dev/wheelhouse/internal/metadata"
	"github.com/wheelhouse-dev/wheelhouse/internal/pep440"
	"github.com/wheelhouse-dev/wheelhouse/internal/pyspec"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

// Builder is the PEP 517 build subprocess boundary: the core only
// specifies inputs (source directory, output directory, build
// requirements) and reads back the resulting wheel path or error. This
// repository never shells out to a build backend itself.
type Builder interface {
	Build(ctx context.Context, sourceDir, outDir string, buildRequires []string) (wheelPath string, err error)
}

// IndexRepository queries one or more configured package indexes.
type IndexRepository struct {
	Clients       []IndexClient
	HTTPClient    *retryablehttp.Client
	Builder       Builder
	HTTPCache     *DiskCache
	MetadataCache *MetadataCache
	HashCache     *DiskCache
	WheelCacheDir string
}

// NewIndexRepository constructs an IndexRepository rooted at cacheDir,
// laying out the http/metadata/hashes caches under it.
func NewIndexRepository(clients []IndexClient, builder Builder, httpClient *retryablehttp.Client, cacheDir string) *IndexRepository {
	return &IndexRepository{
		Clients:       clients,
		HTTPClient:    httpClient,
		Builder:       builder,
		HTTPCache:     NewDiskCache(filepath.Join(cacheDir, "http")),
		MetadataCache: NewMetadataCache(filepath.Join(cacheDir, "metadata")),
		HashCache:     NewDiskCache(filepath.Join(cacheDir, "hashes")),
		WheelCacheDir: filepath.Join(cacheDir, "wheels"),
	}
}

type entryKind int

const (
	kindUnknown entryKind = iota
	kindWheel
	kindSdist
)

type candidateEntry struct {
	entry   Entry
	version *pep440.Version
	kind    entryKind
	wheel   *metadata.WheelInfo
}

// FindCandidates implements the index candidate ordering: name match
// (implicit, scoped by the index query), specifier match, yanked-release
// exclusion (unless pinned exactly), pre-release exclusion (unless
// allowed or pinned), requires_python disjointness exclusion, and a
// descending sort (wheels before sdists, more specific wheels first).
func (r *IndexRepository) FindCandidates(ctx context.Context, req requirement.Requirement, pythonRequires pyspec.PySpecSet, allowPrereleases bool) ([]*candidate.Candidate, error) {
	if req.Kind != requirement.Named {
		return r.findDirectCandidate(ctx, req)
	}

	var all []Entry
	var lastErr error
	for _, c := range r.Clients {
		entries, err := c.ListFiles(ctx, req.Name)
		if err != nil {
			lastErr = err
			continue
		}
		all = append(all, entries...)
	}
	if len(all) == 0 && lastErr != nil {
		return nil, CandidateInfoNotFoundError{Name: req.Name, Err: lastErr}
	}

	pinnedVersion, hasPin := pinnedExactVersion(req)

	var candidates []candidateEntry
	for _, e := range all {
		ce, ok := classify(req.Name, e)
		if !ok {
			continue
		}
		if !req.Specifier.Empty() && !req.Specifier.Contains(ce.version, allowPrereleases) {
			continue
		}
		if e.Yanked && !(hasPin && ce.version.Compare(pinnedVersion) == 0) {
			continue
		}
		if ce.version.IsPrerelease() && !allowPrereleases && !req.Specifier.HasExplicitPrerelease() {
			continue
		}
		if e.RequiresPython != "" {
			entrySpec, err := pyspec.Parse(e.RequiresPython)
			if err == nil {
				if entrySpec.Intersect(pythonRequires).IsImpossible() {
					continue
				}
			}
		}
		candidates = append(candidates, ce)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if c := candidates[i].version.Compare(candidates[j].version); c != 0 {
			return c > 0
		}
		if candidates[i].kind != candidates[j].kind {
			return candidates[i].kind == kindWheel
		}
		if candidates[i].kind == kindWheel {
			return wheelSpecificity(candidates[i].wheel) > wheelSpecificity(candidates[j].wheel)
		}
		return false
	})

	out := make([]*candidate.Candidate, 0, len(candidates))
	for _, ce := range candidates {
		c := candidate.New(req.Name, ce.version.String(), ce.entry.URL, req, r)
		for alg, hex := range ce.entry.Hashes {
			c.Hashes[ce.entry.URL] = fmt.Sprintf("%s:%s", alg, hex)
		}
		out = append(out, c)
	}
	return out, nil
}

// findDirectCandidate handles URL/File/VCS requirements: there is exactly
// one possible candidate, whose version is unknown until it is prepared.
func (r *IndexRepository) findDirectCandidate(ctx context.Context, req requirement.Requirement) ([]*candidate.Candidate, error) {
	c := candidate.New(req.Name, "", req.URL, req, r)
	return []*candidate.Candidate{c}, nil
}

func pinnedExactVersion(req requirement.Requirement) (*pep440.Version, bool) {
	for _, sp := range req.Specifier.Specifiers() {
		if sp.Op == pep440.OpEqual || sp.Op == pep440.OpArbitraryEqual {
			return sp.Version, true
		}
	}
	return nil, false
}

func classify(name string, e Entry) (candidateEntry, bool) {
	switch {
	case strings.HasSuffix(e.Filename, ".whl"):
		wi, err := metadata.ParseWheelName(e.Filename)
		if err != nil {
			return candidateEntry{}, false
		}
		v, err := pep440.Parse(wi.Version)
		if err != nil {
			return candidateEntry{}, false
		}
		return candidateEntry{entry: e, version: v, kind: kindWheel, wheel: wi}, true
	case strings.HasSuffix(e.Filename, ".tar.gz"), strings.HasSuffix(e.Filename, ".tgz"), strings.HasSuffix(e.Filename, ".zip"):
		_, version, err := metadata.SdistVersion(requirement.CanonPackageName(name), e.Filename)
		if err != nil {
			return candidateEntry{}, false
		}
		v, err := pep440.Parse(version)
		if err != nil {
			return candidateEntry{}, false
		}
		return candidateEntry{entry: e, version: v, kind: kindSdist}, true
	default:
		return candidateEntry{}, false
	}
}

// wheelSpecificity ranks a wheel's platform tags: a concrete ABI/platform
// pair outranks a pure "any"/"none" universal wheel.
func wheelSpecificity(wi *metadata.WheelInfo) int {
	score := 0
	for _, t := range wi.Platforms {
		if t.Platform != "any" {
			score++
		}
		if t.ABI != "none" {
			score++
		}
	}
	return score
}

// Prepare implements candidate.Preparer: it downloads the artifact (via
// the HTTP cache), and for a wheel reads its METADATA directly (or the
// metadata cache, if a prior run already parsed this exact name/version);
// for an sdist or local directory it defers to Builder.
func (r *IndexRepository) Prepare(ctx context.Context, c *candidate.Candidate) (candidate.Prepared, error) {
	if c.Req.Kind == requirement.File {
		return r.prepareDirectory(ctx, c)
	}
	if c.Link == "" {
		return candidate.Prepared{}, CandidateInfoNotFoundError{Name: c.Name, Version: c.Version, Err: fmt.Errorf("no artifact link")}
	}

	if r.MetadataCache != nil && strings.HasSuffix(c.Link, ".whl") {
		if cached, ok := r.loadCachedMetadata(c.Name, c.Version); ok {
			c.ApplyMetadata(cached.metadata())
			wheelPath, err := r.ensureWheelCached(ctx, c.Link)
			if err != nil {
				return candidate.Prepared{}, CandidateInfoNotFoundError{Name: c.Name, Version: c.Version, Err: err}
			}
			deps, err := cached.dependencies()
			if err != nil {
				return candidate.Prepared{}, fmt.Errorf("repository: replaying cached dependencies for %s %s: %w", c.Name, c.Version, err)
			}
			return candidate.Prepared{WheelPath: wheelPath, Dependencies: deps}, nil
		}
	}

	data, err := r.fetch(ctx, c.Link)
	if err != nil {
		return candidate.Prepared{}, CandidateInfoNotFoundError{Name: c.Name, Version: c.Version, Err: err}
	}
	if strings.HasSuffix(c.Link, ".whl") {
		md, err := metadata.WheelMetadata(ctx, bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return candidate.Prepared{}, CandidateInfoNotFoundError{Name: c.Name, Version: c.Version, Err: err}
		}
		c.ApplyMetadata(*md)
		wheelPath, err := r.cacheWheel(c.Link, data)
		if err != nil {
			return candidate.Prepared{}, err
		}
		if r.MetadataCache != nil {
			r.MetadataCache.Put(c.Name, c.Version, newCachedMetadata(*md))
		}
		return candidate.Prepared{WheelPath: wheelPath, Dependencies: md.Dependencies}, nil
	}

	// sdist: extract metadata for the dependency list, then build.
	md, err := metadata.SdistMetadata(ctx, c.Link, bytes.NewReader(data))
	if md != nil {
		c.ApplyMetadata(*md)
	}
	if err != nil {
		return candidate.Prepared{}, CandidateBuildError{Name: c.Name, Version: c.Version, Err: err}
	}
	if r.Builder == nil {
		return candidate.Prepared{}, CandidateBuildError{Name: c.Name, Version: c.Version, Err: fmt.Errorf("no build backend configured for sdist %s", c.Link)}
	}
	wheelPath, err := r.buildSdist(ctx, c, data)
	if err != nil {
		return candidate.Prepared{}, CandidateBuildError{Name: c.Name, Version: c.Version, Err: err}
	}
	if r.MetadataCache != nil {
		r.MetadataCache.Put(c.Name, c.Version, newCachedMetadata(*md))
	}
	return candidate.Prepared{WheelPath: wheelPath, Dependencies: md.Dependencies}, nil
}

// ensureWheelCached returns link's cached wheel path, fetching it if the
// metadata cache hit meant the artifact itself was never downloaded this
// run.
func (r *IndexRepository) ensureWheelCached(ctx context.Context, link string) (string, error) {
	if !strings.HasSuffix(link, ".whl") {
		return "", fmt.Errorf("repository: cannot replay cached metadata for a non-wheel artifact %q", link)
	}
	data, err := r.fetch(ctx, link)
	if err != nil {
		return "", err
	}
	return r.cacheWheel(link, data)
}

func (r *IndexRepository) prepareDirectory(ctx context.Context, c *candidate.Candidate) (candidate.Prepared, error) {
	if r.Builder == nil {
		return candidate.Prepared{}, CandidateBuildError{Name: c.Name, Version: c.Version, Err: fmt.Errorf("no build backend configured for directory %s", c.Req.Path)}
	}
	outDir := filepath.Join(r.WheelCacheDir, "local")
	wheelPath, err := r.Builder.Build(ctx, c.Req.Path, outDir, nil)
	if err != nil {
		return candidate.Prepared{}, CandidateBuildError{Name: c.Name, Version: c.Version, Err: err}
	}
	f, err := os.Open(wheelPath)
	if err != nil {
		return candidate.Prepared{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return candidate.Prepared{}, err
	}
	md, err := metadata.WheelMetadata(ctx, f, info.Size())
	if err != nil {
		return candidate.Prepared{}, err
	}
	c.ApplyMetadata(*md)
	return candidate.Prepared{
		WheelPath:    wheelPath,
		Dependencies: md.Dependencies,
		DirectURLProvenance: &candidate.DirectURL{
			Path:     c.Req.Path,
			Editable: c.Req.Editable,
		},
	}, nil
}

func (r *IndexRepository) buildSdist(ctx context.Context, c *candidate.Candidate, sdistData []byte) (string, error) {
	tmp, err := os.MkdirTemp("", "wheelhouse-sdist-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)
	srcArchive := filepath.Join(tmp, "src"+filepath.Ext(c.Link))
	if err := os.WriteFile(srcArchive, sdistData, 0o644); err != nil {
		return "", err
	}
	outDir := filepath.Join(r.WheelCacheDir, "built")
	return r.Builder.Build(ctx, tmp, outDir, nil)
}

func (r *IndexRepository) cacheWheel(link string, data []byte) (string, error) {
	sum := hashHex(data)
	dir := filepath.Join(r.WheelCacheDir, sum[:2], sum)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("repository: creating wheel cache dir: %w", err)
	}
	name := filepath.Base(link)
	dst := filepath.Join(dir, name)
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

// GetDependencies returns c's dependency list, requires_python and
// summary, preparing it if necessary.
func (r *IndexRepository) GetDependencies(ctx context.Context, c *candidate.Candidate) ([]requirement.Requirement, pyspec.PySpecSet, string, error) {
	p, err := c.Prepare(ctx)
	if err != nil {
		return nil, pyspec.PySpecSet{}, "", err
	}
	return p.Dependencies, c.RequiresPython, c.Summary, nil
}

// GetHashes returns the artifact hashes known for c, computing the
// artifact's own hash from the cached bytes if the index didn't supply
// one as a URL fragment. A computed hash is itself cached by link so a
// later GetHashes call for the same artifact (e.g. a re-lock) need not
// re-fetch and re-hash it.
func (r *IndexRepository) GetHashes(ctx context.Context, c *candidate.Candidate) (map[string]string, error) {
	if len(c.Hashes) > 0 {
		return c.Hashes, nil
	}
	if c.Link == "" {
		return map[string]string{}, nil
	}
	if r.HashCache != nil {
		if cached, ok := r.HashCache.Get(c.Link); ok {
			return map[string]string{c.Link: string(cached)}, nil
		}
	}
	data, err := r.fetch(ctx, c.Link)
	if err != nil {
		return nil, CandidateInfoNotFoundError{Name: c.Name, Version: c.Version, Err: err}
	}
	hash := "sha256:" + hashHex(data)
	if r.HashCache != nil {
		r.HashCache.Put(c.Link, []byte(hash))
	}
	return map[string]string{c.Link: hash}, nil
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// cachedMetadata is MetadataCache's stored JSON shape for a parsed wheel's
// metadata: every field round-trips through the same String()/Parse() pair
// internal/requirement and internal/pyspec already expose, since the real
// types carry unexported fields JSON can't see into directly.
type cachedMetadata struct {
	Summary        string   `json:"summary"`
	RequiresPython string   `json:"requires_python"`
	Dependencies   []string `json:"dependencies"`
}

func newCachedMetadata(md metadata.Metadata) cachedMetadata {
	deps := make([]string, len(md.Dependencies))
	for i, d := range md.Dependencies {
		deps[i] = d.String()
	}
	return cachedMetadata{
		Summary:        md.Summary,
		RequiresPython: md.RequiresPython.String(),
		Dependencies:   deps,
	}
}

func (cm cachedMetadata) metadata() metadata.Metadata {
	md := metadata.Metadata{Summary: cm.Summary, RequiresPython: pyspec.AllowAll()}
	if cm.RequiresPython != "" {
		if spec, err := pyspec.Parse(cm.RequiresPython); err == nil {
			md.RequiresPython = spec
		}
	}
	return md
}

func (cm cachedMetadata) dependencies() ([]requirement.Requirement, error) {
	deps := make([]requirement.Requirement, 0, len(cm.Dependencies))
	for _, s := range cm.Dependencies {
		req, err := requirement.Parse(s, "")
		if err != nil {
			return nil, err
		}
		deps = append(deps, req)
	}
	return deps, nil
}

func (r *IndexRepository) loadCachedMetadata(name, version string) (cachedMetadata, bool) {
	var cm cachedMetadata
	if !r.MetadataCache.Get(name, version, &cm) {
		return cachedMetadata{}, false
	}
	return cm, true
}

func (r *IndexRepository) fetch(ctx context.Context, link string) ([]byte, error) {
	if r.HTTPCache != nil {
		if data, ok := r.HTTPCache.Get(link); ok {
			return data, nil
		}
	}
	client := r.HTTPClient
	if client == nil {
		client = retryablehttp.NewClient()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("repository: fetching %q returned HTTP %s", link, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if r.HTTPCache != nil {
		_ = r.HTTPCache.Put(link, data)
	}
	return data, nil
}
