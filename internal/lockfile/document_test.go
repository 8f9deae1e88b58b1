package lockfile

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleDoc() Document {
	return Document{
		Metadata: DocumentMetadata{
			ContentHash: "sha256:abc",
			Files: map[string][]FileEntry{
				"requests 2.19.1": {
					{File: "requests-2.19.1-py2.py3-none-any.whl", Hash: "sha256:deadbeef"},
				},
			},
		},
		Packages: []Package{
			{
				Name:           "requests",
				Version:        "2.19.1",
				Summary:        "Python HTTP for Humans.",
				RequiresPython: ">=2.7",
				Dependencies:   []string{"chardet>=3.0.2,<3.1.0", "urllib3>=1.21.1,<1.24"},
				Sections:       []string{"default"},
			},
		},
	}
}

func TestMarshalParseRoundTrip(t *testing.T) {
	doc := sampleDoc()
	data, err := Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteReadAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wheelhouse.lock")
	doc := sampleDoc()

	if err := Write(path, doc); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("mismatch after Write/Read (-want +got):\n%s", diff)
	}

	entries, err := filepath.Glob(filepath.Join(dir, ".lock-*.tmp"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("leftover temp files: %v", entries)
	}
}

func TestIsUpToDate(t *testing.T) {
	surface := ManifestSurface{
		Dependencies:   map[string][]string{"default": {"requests"}},
		RequiresPython: ">=3.8",
	}
	doc := Document{Metadata: DocumentMetadata{ContentHash: ContentHash(surface)}}
	if !IsUpToDate(doc, surface) {
		t.Error("expected up to date")
	}
	surface.Dependencies["default"] = append(surface.Dependencies["default"], "flask")
	if IsUpToDate(doc, surface) {
		t.Error("expected stale after surface change")
	}
}
