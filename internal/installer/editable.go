package installer

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wheelhouse-dev/wheelhouse/internal/candidate"
	"github.com/wheelhouse-dev/wheelhouse/internal/environment"
)

// InstallEditable installs c as an import redirect to sourceDir: a
// "__editable__.<name>.pth" file naming the source directory, plus a
// lightweight dist-info carrying METADATA, RECORD, and a direct_url.json
// with dir_info.editable set. A build backend that produces a PEP 660
// editable wheel instead goes through InstallWheel like any other wheel;
// this is the .pth fallback for projects whose backend doesn't.
func (ins *Installer) InstallEditable(ctx context.Context, sourceDir string, c *candidate.Candidate) (*environment.Distribution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("installer: resolving editable source %q: %w", sourceDir, err)
	}
	if st, err := os.Stat(abs); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("installer: editable source %q is not a directory", abs)
	}

	name := strings.ReplaceAll(c.Name, "-", "_")
	distInfoDir := fmt.Sprintf("%s-%s.dist-info", name, c.Version)
	if err := os.MkdirAll(filepath.Join(ins.Scheme.Purelib, distInfoDir), 0o755); err != nil {
		return nil, err
	}

	var installed []environment.RecordEntry

	pthName := "__editable__." + name + ".pth"
	entry, err := ins.writeRecorded(filepath.Join(ins.Scheme.Purelib, pthName), abs+"\n")
	if err != nil {
		return nil, err
	}
	installed = append(installed, entry)

	md := fmt.Sprintf("Metadata-Version: 2.1\nName: %s\nVersion: %s\n", c.Name, c.Version)
	if c.Summary != "" {
		md += "Summary: " + c.Summary + "\n"
	}
	entry, err = ins.writeRecorded(filepath.Join(ins.Scheme.Purelib, distInfoDir, "METADATA"), md)
	if err != nil {
		return nil, err
	}
	installed = append(installed, entry)

	du := &environment.DirectURL{
		URL:     "file://" + filepath.ToSlash(abs),
		DirInfo: &environment.DirInfo{Editable: true},
	}
	if err := ins.writeDirectURL(ins.Scheme, distInfoDir, du); err != nil {
		return nil, err
	}
	duPath := filepath.Join(ins.Scheme.Purelib, distInfoDir, "direct_url.json")
	duEntry, err := recordEntryFor(ins.Scheme, duPath)
	if err != nil {
		return nil, err
	}
	installed = append(installed, duEntry)

	dist := &environment.Distribution{
		Name:        c.Name,
		Version:     c.Version,
		Files:       installed,
		DirectURL:   du,
		Editable:    true,
		DistInfoDir: distInfoDir,
	}
	if err := ins.writeRecord(ins.Scheme, distInfoDir, installed); err != nil {
		return nil, err
	}
	return dist, nil
}

// writeRecorded writes content to dest and returns its RECORD entry.
func (ins *Installer) writeRecorded(dest, content string) (environment.RecordEntry, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return environment.RecordEntry{}, err
	}
	if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
		return environment.RecordEntry{}, err
	}
	h := sha256.Sum256([]byte(content))
	return environment.RecordEntry{
		Path: relPath(ins.Scheme.Purelib, dest),
		Hash: "sha256=" + base64.RawURLEncoding.EncodeToString(h[:]),
		Size: int64(len(content)),
	}, nil
}

func recordEntryFor(scheme environment.Scheme, dest string) (environment.RecordEntry, error) {
	data, err := os.ReadFile(dest)
	if err != nil {
		return environment.RecordEntry{}, err
	}
	h := sha256.Sum256(data)
	return environment.RecordEntry{
		Path: relPath(scheme.Purelib, dest),
		Hash: "sha256=" + base64.RawURLEncoding.EncodeToString(h[:]),
		Size: int64(len(data)),
	}, nil
}
