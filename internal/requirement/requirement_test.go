package requirement

import (
	"testing"

	"github.com/wheelhouse-dev/wheelhouse/internal/marker"
)

func TestParseNamedRequirement(t *testing.T) {
	r, err := Parse("Requests[Security,socks]>=2.8.1,!=2.9.0 ; python_version < '3.0'", "default")
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != Named {
		t.Fatalf("Kind = %v, want Named", r.Kind)
	}
	if r.Name != "requests" {
		t.Errorf("Name = %q, want canonicalized 'requests'", r.Name)
	}
	if len(r.Extras) != 2 || r.Extras[0] != "Security" || r.Extras[1] != "socks" {
		t.Errorf("Extras = %v", r.Extras)
	}
	if r.Specifier.Empty() {
		t.Error("expected a non-empty specifier")
	}
	if r.Marker == nil {
		t.Fatal("expected a marker")
	}
	if r.Group != "default" {
		t.Errorf("Group = %q", r.Group)
	}
}

func TestParseBareName(t *testing.T) {
	r, err := Parse("Flask", "default")
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != Named || r.Name != "flask" || !r.Specifier.Empty() || r.Marker != nil {
		t.Errorf("unexpected parse of bare name: %+v", r)
	}
}

func TestParseParenthesizedSpecifier(t *testing.T) {
	r, err := Parse("name (>=1.0,<2.0)", "default")
	if err != nil {
		t.Fatal(err)
	}
	if r.Specifier.Empty() {
		t.Error("expected a parsed specifier from parenthesized clause")
	}
}

func TestParseDirectURLReference(t *testing.T) {
	r, err := Parse("pip @ https://github.com/pypa/pip/archive/refs/tags/22.0.zip", "default")
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != URL {
		t.Fatalf("Kind = %v, want URL", r.Kind)
	}
	if r.URL != "https://github.com/pypa/pip/archive/refs/tags/22.0.zip" {
		t.Errorf("URL = %q", r.URL)
	}
}

func TestParseDirectVCSReference(t *testing.T) {
	r, err := Parse("flask @ git+https://github.com/pallets/flask.git@2.3.0", "dev")
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != VCS {
		t.Fatalf("Kind = %v, want VCS", r.Kind)
	}
	if r.VCSType != "git" {
		t.Errorf("VCSType = %q", r.VCSType)
	}
	if r.URL != "https://github.com/pallets/flask.git" {
		t.Errorf("URL = %q", r.URL)
	}
	if r.Revision != "2.3.0" {
		t.Errorf("Revision = %q", r.Revision)
	}
}

func TestParseDirectVCSReferenceNoRevision(t *testing.T) {
	r, err := Parse("flask @ git+https://github.com/pallets/flask.git", "default")
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != VCS || r.Revision != "" {
		t.Errorf("unexpected result: %+v", r)
	}
}

func TestParseDirectFileReference(t *testing.T) {
	r, err := Parse("mypkg @ file:///home/user/mypkg", "default")
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != File {
		t.Fatalf("Kind = %v, want File", r.Kind)
	}
	if r.Path != "/home/user/mypkg" {
		t.Errorf("Path = %q", r.Path)
	}
}

func TestParseDirectLocalPathWithoutScheme(t *testing.T) {
	r, err := Parse("mypkg @ ./vendor/mypkg", "default")
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != File || r.Path != "./vendor/mypkg" {
		t.Errorf("unexpected result: %+v", r)
	}
}

func TestParseDirectReferenceWithMarker(t *testing.T) {
	r, err := Parse("pip @ https://example.com/pip.whl ; sys_platform == 'linux'", "default")
	if err != nil {
		t.Fatal(err)
	}
	if r.Marker == nil {
		t.Fatal("expected a marker on the direct reference")
	}
}

func TestParseEmptyExtrasUnterminated(t *testing.T) {
	if _, err := Parse("name[extra", "default"); err == nil {
		t.Error("expected an error for an unterminated extras section")
	}
}

func TestParseEmptyName(t *testing.T) {
	if _, err := Parse(">=1.0", "default"); err == nil {
		t.Error("expected an error for a missing name")
	}
}

func TestIdentifySortsExtras(t *testing.T) {
	r := Requirement{Name: "foo", Extras: []string{"zeta", "alpha"}}
	if got, want := r.Identify(), "foo[alpha,zeta]"; got != want {
		t.Errorf("Identify() = %q, want %q", got, want)
	}
}

func TestMatchesIgnoresNameWhenRequested(t *testing.T) {
	a := NewFile("foo", "/tmp/foo", "default", false, nil, nil)
	b := NewFile("bar", "/tmp/foo", "default", false, nil, nil)
	if a.Matches(b, false) {
		t.Error("different names should not match when ignoreName is false")
	}
	if !a.Matches(b, true) {
		t.Error("same path should match when ignoreName is true")
	}
}

func TestMatchesNamedIgnoresSpecifier(t *testing.T) {
	a, err := Parse("foo>=1.0", "default")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse("foo<2.0", "dev")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Matches(b, false) {
		t.Error("two Named requirements for the same package should match regardless of specifier")
	}
}

func TestEvalMarkerNilAlwaysApplies(t *testing.T) {
	r := Requirement{Name: "foo"}
	if !r.EvalMarker(marker.Environment{}, nil) {
		t.Error("a requirement with no marker should always apply")
	}
}

func TestStringRoundTripsKind(t *testing.T) {
	r, err := Parse("foo[bar]>=1.0", "default")
	if err != nil {
		t.Fatal(err)
	}
	s := r.String()
	if s == "" {
		t.Fatal("String() should not be empty")
	}
	back, err := Parse(s, "default")
	if err != nil {
		t.Fatalf("re-parsing %q: %v", s, err)
	}
	if back.Kind != r.Kind {
		t.Errorf("re-parsed Kind = %v, want %v", back.Kind, r.Kind)
	}
}
