// Package installer installs a wheel's files into an
// environment's scheme directories, generating entry-point launchers,
// writing RECORD/direct_url.json, and the stash-commit-rollback
// uninstallation protocol.
package installer

import (
	"archive/zip"
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/wheelhouse-dev/wheelhouse/internal/candidate"
	"github.com/wheelhouse-dev/wheelhouse/internal/environment"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

// Installer writes wheels into, and removes distributions from, one
// environment's install scheme.
type Installer struct {
	Scheme environment.Scheme

	// PythonExe is the interpreter path embedded in generated launcher
	// shebangs.
	PythonExe string

	// Cache is the optional content-addressed package cache backing
	// shared cached installs; nil disables cache-linking
	// regardless of a candidate's install.cache preference.
	Cache *Cache
}

// wheelInfo is the subset of a wheel's own naming/WHEEL-file data the
// installer needs to classify entries.
type wheelInfo struct {
	distName      string // "<name>-<version>" prefix used by "<dist>.data/"
	rootIsPurelib bool
}

// InstallWheel opens wheelPath as a zip and installs its contents into the
// environment's scheme directories. c supplies the candidate's entry points are
// read from the wheel itself; direct-reference provenance (if any) comes
// from c.Prepare's already-materialized result.
func (ins *Installer) InstallWheel(ctx context.Context, wheelPath string, c *candidate.Candidate) (*environment.Distribution, error) {
	return ins.InstallWheelTo(ctx, ins.Scheme, wheelPath, c)
}

// InstallWheelTo is InstallWheel against an explicit scheme rather than
// ins.Scheme, the hook Cache.Materialize uses to install once into a
// content-addressed cache entry's own directories.
func (ins *Installer) InstallWheelTo(ctx context.Context, scheme environment.Scheme, wheelPath string, c *candidate.Candidate) (*environment.Distribution, error) {
	f, err := os.Open(wheelPath)
	if err != nil {
		return nil, BuildArtifactError{Wheel: wheelPath, Err: err}
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, BuildArtifactError{Wheel: wheelPath, Err: err}
	}
	zr, err := zip.NewReader(f, st.Size())
	if err != nil {
		return nil, BuildArtifactError{Wheel: wheelPath, Err: err}
	}

	info, err := readWheelInfo(zr, filepath.Base(wheelPath))
	if err != nil {
		return nil, BuildArtifactError{Wheel: wheelPath, Err: err}
	}

	var installed []environment.RecordEntry
	var consoleEntries, guiEntries map[string]string
	distInfoDir := ""

	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dest, err := info.classify(zf.Name, scheme)
		if err != nil {
			return nil, err
		}
		if dest == "" {
			continue // a directory entry, or something we intentionally skip
		}
		if strings.HasSuffix(path.Dir(zf.Name), ".dist-info") && distInfoDir == "" {
			distInfoDir = path.Dir(zf.Name)
		}

		hash, size, err := extractZipEntry(zf, dest)
		if err != nil {
			return nil, BuildArtifactError{Wheel: wheelPath, Err: fmt.Errorf("extracting %s: %w", zf.Name, err)}
		}
		installed = append(installed, environment.RecordEntry{
			// RECORD paths are always relative to purelib, using ".."
			// traversal to reach another root (scripts, data, ...) — the
			// same convention real wheel installers use, so a path alone
			// is enough to resolve any entry back to an absolute one
			// without separately recording which root it came from.
			Path: relPath(scheme.Purelib, dest),
			Hash: hash,
			Size: size,
		})

		if strings.HasSuffix(zf.Name, "/entry_points.txt") && strings.HasSuffix(path.Dir(zf.Name), ".dist-info") {
			rc, err := zf.Open()
			if err != nil {
				return nil, BuildArtifactError{Wheel: wheelPath, Err: err}
			}
			consoleEntries, guiEntries, err = parseEntryPointsFile(rc)
			rc.Close()
			if err != nil {
				return nil, BuildArtifactError{Wheel: wheelPath, Err: err}
			}
		}
	}

	launcherEntries, err := ins.writeLaunchers(scheme, consoleEntries, guiEntries)
	if err != nil {
		return nil, err
	}
	installed = append(installed, launcherEntries...)

	dist := &environment.Distribution{
		Name:           c.Name,
		Version:        c.Version,
		Files:          installed,
		EntryPoints:    consoleEntries,
		GUIEntryPoints: guiEntries,
		DistInfoDir:    distInfoDir,
	}

	if du := directURLFor(ctx, c); du != nil {
		dist.DirectURL = du
		dist.Editable = du.DirInfo != nil && du.DirInfo.Editable
		if err := ins.writeDirectURL(scheme, distInfoDir, du); err != nil {
			return nil, err
		}
	}

	if err := ins.writeRecord(scheme, distInfoDir, installed); err != nil {
		return nil, err
	}

	return dist, nil
}

func readWheelInfo(zr *zip.Reader, wheelFilename string) (wheelInfo, error) {
	info := wheelInfo{rootIsPurelib: true}
	name := strings.TrimSuffix(wheelFilename, ".whl")
	parts := strings.SplitN(name, "-", 3)
	if len(parts) >= 2 {
		info.distName = parts[0] + "-" + parts[1]
	}
	for _, zf := range zr.File {
		if !strings.HasSuffix(zf.Name, "/WHEEL") || !strings.HasSuffix(path.Dir(zf.Name), ".dist-info") {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return info, err
		}
		defer rc.Close()
		scanner := bufio.NewScanner(rc)
		for scanner.Scan() {
			k, v, ok := strings.Cut(scanner.Text(), ":")
			if !ok {
				continue
			}
			if strings.TrimSpace(k) == "Root-Is-Purelib" {
				info.rootIsPurelib = strings.TrimSpace(v) == "true"
			}
		}
		return info, scanner.Err()
	}
	return info, nil
}

// classify maps a wheel archive entry to its destination path and the
// scheme root it belongs under, by the wheel's purelib/platlib/scripts/data
// categorization. A "<dist>.data/<key>/..." entry dispatches by key; any
// other entry goes to purelib or platlib depending on the wheel's
// Root-Is-Purelib flag.
func (w wheelInfo) classify(name string, scheme environment.Scheme) (dest string, err error) {
	if strings.HasSuffix(name, "/") {
		return "", nil
	}
	dataPrefix := w.distName + ".data/"
	if strings.HasPrefix(name, dataPrefix) {
		rest := strings.TrimPrefix(name, dataPrefix)
		key, sub, ok := strings.Cut(rest, "/")
		if !ok {
			return "", nil
		}
		var root string
		switch key {
		case "purelib":
			root = scheme.Purelib
		case "platlib":
			root = scheme.Platlib
		case "scripts":
			root = scheme.Scripts
		case "data":
			root = scheme.Data
		case "headers":
			root = scheme.Include
		default:
			return "", fmt.Errorf("installer: unknown wheel data category %q", key)
		}
		return filepath.Join(root, sub), nil
	}
	root := scheme.Purelib
	if !w.rootIsPurelib {
		root = scheme.Platlib
	}
	return filepath.Join(root, name), nil
}

func relPath(root, dest string) string {
	rel, err := filepath.Rel(root, dest)
	if err != nil {
		return dest
	}
	return filepath.ToSlash(rel)
}

func extractZipEntry(zf *zip.File, dest string) (hash string, size int64, err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", 0, err
	}
	rc, err := zf.Open()
	if err != nil {
		return "", 0, err
	}
	defer rc.Close()

	mode := zf.Mode()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return "", 0, err
	}
	defer out.Close()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, h), rc)
	if err != nil {
		return "", 0, err
	}
	return "sha256=" + base64.RawURLEncoding.EncodeToString(h.Sum(nil)), n, nil
}

func parseEntryPointsFile(r io.Reader) (console, gui map[string]string, err error) {
	console = map[string]string{}
	gui = map[string]string{}
	var current *map[string]string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			switch strings.TrimSpace(line[1 : len(line)-1]) {
			case "console_scripts":
				current = &console
			case "gui_scripts":
				current = &gui
			default:
				current = nil
			}
			continue
		}
		if current == nil {
			continue
		}
		name, target, ok := strings.Cut(line, "=")
		if ok {
			(*current)[strings.TrimSpace(name)] = strings.TrimSpace(target)
		}
	}
	return console, gui, scanner.Err()
}

// writeLaunchers generates a POSIX launcher script per entry point. A
// Windows ".exe" launcher is out of scope here: it requires an
// embedded native stub this repo treats as a build collaborator concern,
// not something synthesized from Go source at install time.
func (ins *Installer) writeLaunchers(scheme environment.Scheme, console, gui map[string]string) ([]environment.RecordEntry, error) {
	var entries []environment.RecordEntry
	for name, target := range console {
		entry, err := ins.writeLauncher(scheme, name, target)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	for name, target := range gui {
		entry, err := ins.writeLauncher(scheme, name, target)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (ins *Installer) writeLauncher(scheme environment.Scheme, name, target string) (environment.RecordEntry, error) {
	module, attr, ok := ParseEntryPointTarget(target)
	if !ok {
		return environment.RecordEntry{}, fmt.Errorf("installer: malformed entry point target %q for %s", target, name)
	}
	script := launcherScript(ins.PythonExe, module, attr)
	dest := filepath.Join(scheme.Scripts, name)
	if err := os.MkdirAll(scheme.Scripts, 0o755); err != nil {
		return environment.RecordEntry{}, err
	}
	if err := os.WriteFile(dest, []byte(script), 0o755); err != nil {
		return environment.RecordEntry{}, err
	}
	h := sha256.Sum256([]byte(script))
	return environment.RecordEntry{
		Path: relPath(scheme.Purelib, dest),
		Hash: "sha256=" + base64.RawURLEncoding.EncodeToString(h[:]),
		Size: int64(len(script)),
	}, nil
}

func directURLFor(ctx context.Context, c *candidate.Candidate) *environment.DirectURL {
	if c.Req.Kind == requirement.Named {
		return nil
	}
	prep, err := c.Prepare(ctx)
	if err != nil || prep.DirectURLProvenance == nil {
		return nil
	}
	p := prep.DirectURLProvenance
	du := &environment.DirectURL{URL: p.URL}
	if p.VCS != "" {
		du.VCSInfo = &environment.VCSInfo{VCS: p.VCS, CommitID: p.Revision, RequestedRevision: p.Revision}
	}
	if p.Editable || p.Path != "" {
		du.DirInfo = &environment.DirInfo{Editable: p.Editable}
	}
	return du
}

func (ins *Installer) writeDirectURL(scheme environment.Scheme, distInfoDir string, du *environment.DirectURL) error {
	data, err := json.MarshalIndent(du, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(scheme.Purelib, distInfoDir, "direct_url.json"), data, 0o644)
}

func (ins *Installer) writeRecord(scheme environment.Scheme, distInfoDir string, entries []environment.RecordEntry) error {
	recordPath := filepath.Join(scheme.Purelib, distInfoDir, "RECORD")
	selfEntry := environment.RecordEntry{Path: filepath.ToSlash(filepath.Join(distInfoDir, "RECORD"))}
	all := append(append([]environment.RecordEntry(nil), entries...), selfEntry)
	return os.WriteFile(recordPath, []byte(environment.FormatRecord(all)), 0o644)
}
