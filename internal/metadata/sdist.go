package metadata

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

// SdistVersion attempts to extract the version from the name of an sdist
// file. The naming isn't standardized, but is conventional enough that pip
// itself relies on it. Names are formatted <name>-<version>, where the name
// is not necessarily canonicalized; the returned version is canonicalized
// where possible by the caller.
func SdistVersion(canonName, filename string) (name, version string, err error) {
	nameVersion := strings.TrimSuffix(filename, filepath.Ext(filename))
	nameVersion = strings.TrimSuffix(nameVersion, ".tar")
	for i, r := range nameVersion {
		if r != '-' {
			continue
		}
		cand := requirement.CanonPackageName(nameVersion[:i])
		if cand == canonName {
			return nameVersion[:i], nameVersion[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("invalid filename for package %q: %q", canonName, filename)
}

// installRequiresPattern flags a setup.py/setup.cfg as declaring
// dependencies outside PKG-INFO. There may be false positives (a commented
// line, one outside the right section) but no false negatives.
var installRequiresPattern = regexp.MustCompile(`install_requires[ \t]*=`)

// SdistMetadata reads metadata out of r, an sdist archive (tar.gz/tgz or
// zip, selected by fileName's extension). When the setup.py or setup.cfg
// holds dependencies not mirrored into PKG-INFO, it returns an
// UnsupportedError alongside the partial metadata it did find — this repo
// never evaluates a build backend, consistent with its scope, so such
// dependencies are simply unknown to it.
func SdistMetadata(ctx context.Context, fileName string, r io.Reader) (*Metadata, error) {
	setupPy, setupCFG := false, false
	var meta Metadata

	walkFn := func(name string, r io.Reader) error {
		_, name, ok := strings.Cut(name, "/")
		if !ok {
			return nil
		}
		if name == "setup.py" && !setupPy {
			setupPy = installRequiresPattern.MatchReader(bufio.NewReader(r))
			return nil
		}
		if name == "setup.cfg" && !setupCFG {
			setupCFG = installRequiresPattern.MatchReader(bufio.NewReader(r))
			return nil
		}
		if name != "PKG-INFO" {
			return nil
		}
		if meta.Name != "" {
			return UnsupportedError{Msg: "multiple top level PKG-INFO", PackageType: "sdist"}
		}
		contents, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		md, err := Parse(ctx, string(contents))
		if err != nil {
			return err
		}
		meta = md
		return nil
	}

	switch {
	case strings.HasSuffix(fileName, ".tar.gz"), strings.HasSuffix(fileName, ".tgz"):
		tgz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer tgz.Close()
		if err := walkTarFiles(tgz, walkFn); err != nil {
			return nil, err
		}
	case strings.HasSuffix(fileName, ".zip"):
		contents, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		if err := walkZipFiles(bytes.NewReader(contents), int64(len(contents)), walkFn); err != nil {
			return nil, err
		}
	default:
		return nil, UnsupportedError{Msg: fmt.Sprintf("unsupported sdist format: %s", fileName), PackageType: "sdist"}
	}

	if meta.Name == "" {
		return nil, UnsupportedError{Msg: "no PKG-INFO", PackageType: "sdist"}
	}
	if len(meta.Dependencies) == 0 {
		switch {
		case setupCFG:
			return &meta, UnsupportedError{Msg: "dependencies in setup.cfg, not in PKG-INFO", PackageType: "sdist"}
		case setupPy:
			return &meta, UnsupportedError{Msg: "dependencies in setup.py, not in PKG-INFO", PackageType: "sdist"}
		default:
			// It genuinely has no dependencies.
		}
	}
	return &meta, nil
}

// walkTarFiles walks through the regular files in a tar archive, applying f
// to each in turn.
func walkTarFiles(r io.Reader, f func(string, io.Reader) error) error {
	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if h.Typeflag != tar.TypeReg {
			continue
		}
		if err := f(h.Name, tr); err != nil {
			return err
		}
	}
	return nil
}
