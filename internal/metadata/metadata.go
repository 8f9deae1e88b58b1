// Package metadata reads PyPI distribution metadata (METADATA/PKG-INFO,
// wheel filenames, sdist archives) into a structured form the resolver and
// installer can consume.
package metadata

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/mail"
	"unicode/utf8"

	"github.com/wheelhouse-dev/wheelhouse/internal/pyspec"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

// Metadata holds the distribution metadata defined at
// https://packaging.python.org/specifications/core-metadata/.
type Metadata struct {
	// Name and Version are the only fields the spec requires, taken
	// directly from the file and not canonicalized.
	Name, Version string

	Summary         string
	Description     string
	Homepage        string
	Author          string
	AuthorEmail     string
	Maintainer      string
	MaintainerEmail string
	License         string
	Classifiers     []string
	ProjectURLs     []string

	// RequiresPython is the parsed Requires-Python header, or an
	// allow-all set when absent.
	RequiresPython pyspec.PySpecSet

	Dependencies []requirement.Requirement
}

// Parse reads a METADATA or PKG-INFO file and collects as much information
// as possible. The earliest version of this format was a set of RFC 822
// headers (PEP 241) with later versions (PEP 566) adding a message body,
// making the format essentially the same as an email. The current
// specification requires UTF-8 encoding.
func Parse(ctx context.Context, data string) (Metadata, error) {
	if !utf8.ValidString(data) {
		return Metadata{}, parseErrorf("invalid UTF-8")
	}
	// net/mail errors on a message with no body at all; a trailing
	// newline guarantees it parses an empty body instead.
	buf := bytes.NewBufferString(data)
	buf.WriteByte('\n')
	msg, err := mail.ReadMessage(buf)
	if err != nil {
		return Metadata{}, parseErrorf("parsing python metadata: %v", err)
	}
	md := Metadata{}

	header := func(name string) (value string) {
		vs := msg.Header[name]
		if len(vs) > 1 {
			log.Printf("metadata: header set multiple times: %q: %q", name, vs)
		}
		if len(vs) == 1 && vs[0] != "UNKNOWN" {
			value = vs[0]
		}
		return
	}
	multiHeader := func(name string) (values []string) {
		for _, v := range msg.Header[name] {
			if v != "UNKNOWN" {
				values = append(values, v)
			}
		}
		return
	}

	for _, d := range msg.Header["Requires-Dist"] {
		// A distribution's own Requires-Dist entries aren't tagged with
		// a dependency group; that tagging only applies to a project's
		// declared dependencies (internal/requirement.Parse's group
		// argument is project-manifest-specific).
		req, err := requirement.Parse(d, "")
		if err != nil {
			return Metadata{}, err
		}
		md.Dependencies = append(md.Dependencies, req)
	}

	md.Name = header("Name")
	md.Version = header("Version")
	md.Summary = header("Summary")
	md.Description = header("Description")
	md.Homepage = header("Home-Page")
	md.Author = header("Author")
	md.AuthorEmail = header("Author-Email")
	md.Maintainer = header("Maintainer")
	md.MaintainerEmail = header("Maintainer-Email")
	md.License = header("License")
	md.ProjectURLs = multiHeader("Project-Url")
	md.Classifiers = multiHeader("Classifier")

	if rp := header("Requires-Python"); rp != "" {
		spec, err := pyspec.Parse(rp)
		if err != nil {
			return Metadata{}, parseErrorf("parsing Requires-Python %q: %v", rp, err)
		}
		md.RequiresPython = spec
	} else {
		md.RequiresPython = pyspec.AllowAll()
	}

	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return Metadata{}, parseErrorf("reading metadata description: %v", err)
	}
	if len(body) > 0 {
		body = body[:len(body)-1] // drop the newline we added above
		md.Description = string(body)
	}
	return md, nil
}

// ParseError is returned when metadata fails to parse.
type ParseError struct {
	msg string
}

func (p ParseError) Error() string { return p.msg }

func parseErrorf(format string, args ...any) ParseError {
	return ParseError{msg: fmt.Sprintf(format, args...)}
}

// UnsupportedError indicates a kind of packaging this module cannot yet
// handle (e.g. dependencies declared only in setup.py/setup.cfg).
type UnsupportedError struct {
	Msg         string
	PackageType string
}

func (u UnsupportedError) Error() string {
	return fmt.Sprintf("%s: %s", u.PackageType, u.Msg)
}
