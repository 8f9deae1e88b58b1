package metadata

import (
	"context"
	"testing"
)

const numpyPkgInfoRaw = `Metadata-Version: 1.2
Name: numPy
Version: 1.16.4
Summary:  NumPy is the fundamental package for array computing with Python.
Home-page: https://www.numpy.org
Author: NumPy Developers
Author-email: numpy-discussion@python.org
License: BSD
Download-URL: https://pypi.python.org/pypi/numpy
Description-Content-Type: UNKNOWN
Description: It provides a powerful N-dimensional array object.
Platform: Windows
Platform: Linux
Classifier: Development Status :: 5 - Production/Stable
Classifier: Programming Language :: Python
Requires-Python: >=2.7,!=3.0.*,!=3.1.*,!=3.2.*,!=3.3.*
Project-URL: Homepage, https://www.numpy.org
`

func TestParseMetadataHeaders(t *testing.T) {
	md, err := Parse(context.Background(), numpyPkgInfoRaw)
	if err != nil {
		t.Fatal(err)
	}
	if md.Name != "numPy" {
		t.Errorf("Name = %q", md.Name)
	}
	if md.Version != "1.16.4" {
		t.Errorf("Version = %q", md.Version)
	}
	if len(md.Classifiers) != 2 {
		t.Errorf("Classifiers = %v", md.Classifiers)
	}
	if md.RequiresPython.IsAllowAll() {
		t.Error("expected a parsed Requires-Python constraint, not allow-all")
	}
}

func TestParseMetadataNoRequiresPythonIsAllowAll(t *testing.T) {
	md, err := Parse(context.Background(), "Name: foo\nVersion: 1.0\n")
	if err != nil {
		t.Fatal(err)
	}
	if !md.RequiresPython.IsAllowAll() {
		t.Error("absent Requires-Python should mean allow-all")
	}
}

const numbaMetadataRaw = `Metadata-Version: 2.1
Name: Numba
Version: 0.44.0
Requires-Dist: llvmlite (>=0.29.0)
Requires-Dist: numpy
Requires-Dist: funcsigs; python_version < "3.3"
`

func TestParseMetadataDependencies(t *testing.T) {
	md, err := Parse(context.Background(), numbaMetadataRaw)
	if err != nil {
		t.Fatal(err)
	}
	if len(md.Dependencies) != 3 {
		t.Fatalf("Dependencies = %v", md.Dependencies)
	}
	if md.Dependencies[0].Name != "llvmlite" {
		t.Errorf("Dependencies[0].Name = %q", md.Dependencies[0].Name)
	}
	if md.Dependencies[2].Marker == nil {
		t.Error("funcsigs dependency should carry a marker")
	}
}

func TestParseMetadataInvalidUTF8(t *testing.T) {
	if _, err := Parse(context.Background(), "Name: foo\xff\n"); err == nil {
		t.Error("expected an error for invalid UTF-8")
	}
}

func TestParseWheelName(t *testing.T) {
	wi, err := ParseWheelName("Requests-2.31.0-py3-none-any.whl")
	if err != nil {
		t.Fatal(err)
	}
	if wi.Name != "requests" {
		t.Errorf("Name = %q", wi.Name)
	}
	if wi.Version != "2.31.0" {
		t.Errorf("Version = %q", wi.Version)
	}
	if len(wi.Platforms) != 1 || wi.Platforms[0].Python != "py3" {
		t.Errorf("Platforms = %v", wi.Platforms)
	}
}

func TestParseWheelNameWithBuildTag(t *testing.T) {
	wi, err := ParseWheelName("foo-1.0-7-py3-none-any.whl")
	if err != nil {
		t.Fatal(err)
	}
	if wi.BuildTag.Num != 7 {
		t.Errorf("BuildTag.Num = %d", wi.BuildTag.Num)
	}
}

func TestParseWheelNameCompressedTags(t *testing.T) {
	wi, err := ParseWheelName("foo-1.0-py2.py3-none-any.whl")
	if err != nil {
		t.Fatal(err)
	}
	if len(wi.Platforms) != 2 {
		t.Fatalf("expected 2 expanded tags, got %d", len(wi.Platforms))
	}
}

func TestParseWheelNameRejectsNonWheel(t *testing.T) {
	if _, err := ParseWheelName("foo-1.0.tar.gz"); err == nil {
		t.Error("expected an error for a non-.whl filename")
	}
}

func TestSdistVersion(t *testing.T) {
	name, version, err := SdistVersion("my-package", "my_package-1.2.3.tar.gz")
	if err != nil {
		t.Fatal(err)
	}
	if name != "my_package" || version != "1.2.3" {
		t.Errorf("got (%q, %q)", name, version)
	}
}

func TestSdistVersionMismatch(t *testing.T) {
	if _, _, err := SdistVersion("other-package", "my_package-1.2.3.tar.gz"); err == nil {
		t.Error("expected an error when the canonical name doesn't match")
	}
}
