// Package lockfile implements the project lockfile document: its TOML
// shape, content-hash computation, and atomic I/O.
package lockfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Document is the lockfile's top-level shape.
type Document struct {
	Metadata DocumentMetadata `toml:"metadata"`
	Packages []Package        `toml:"package"`
}

// DocumentMetadata carries the up-to-date check and per-artifact hashes.
type DocumentMetadata struct {
	// ContentHash is "sha256:hex" of the canonical serialization of the
	// project's declared dependency surface (see ContentHash).
	ContentHash string `toml:"content_hash"`
	// Files maps "name version" to the artifact file/url+hash entries
	// the installer verifies against.
	Files map[string][]FileEntry `toml:"files"`
}

// FileEntry is one artifact the installer must verify a hash for.
type FileEntry struct {
	File string `toml:"file,omitempty"`
	URL  string `toml:"url,omitempty"`
	Hash string `toml:"hash"`
}

// Package is one resolved candidate: exactly one entry per (name, extras)
// tuple.
type Package struct {
	Name           string   `toml:"name"`
	Version        string   `toml:"version,omitempty"`
	Summary        string   `toml:"summary,omitempty"`
	RequiresPython string   `toml:"requires_python,omitempty"`
	Dependencies   []string `toml:"dependencies,omitempty"`

	// Source fields; at most one group is populated depending on the
	// originating requirement's Kind.
	URL      string `toml:"url,omitempty"`
	Path     string `toml:"path,omitempty"`
	Git      string `toml:"git,omitempty"`
	Revision string `toml:"revision,omitempty"`
	Editable bool   `toml:"editable,omitempty"`

	Extras   []string `toml:"extras,omitempty"`
	Sections []string `toml:"sections,omitempty"`
}

// Parse decodes a lockfile document from its TOML text.
func Parse(data []byte) (Document, error) {
	var doc Document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return Document{}, fmt.Errorf("lockfile: decoding: %w", err)
	}
	if doc.Metadata.Files == nil {
		doc.Metadata.Files = map[string][]FileEntry{}
	}
	return doc, nil
}

// Marshal encodes doc to its TOML text.
func Marshal(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("lockfile: encoding: %w", err)
	}
	return buf.Bytes(), nil
}

// Read reads and parses the lockfile at path.
func Read(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	return Parse(data)
}

// Write atomically replaces the lockfile at path: the whole document is
// always rewritten (no partial updates), so readers never observe a torn
// file. It writes to a sibling temp file, fsyncs, then renames over the
// target — atomic on POSIX and (via os.Rename) on Windows.
func Write(path string, doc Document) error {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".lock-*.tmp")
	if err != nil {
		return fmt.Errorf("lockfile: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("lockfile: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("lockfile: fsyncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("lockfile: closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("lockfile: renaming into place: %w", err)
	}
	return nil
}

// IsUpToDate reports whether doc's stored content hash matches the
// project's current computed hash.
func IsUpToDate(doc Document, surface ManifestSurface) bool {
	return doc.Metadata.ContentHash == ContentHash(surface)
}
