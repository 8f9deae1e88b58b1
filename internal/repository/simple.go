package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/html"

	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

// Entry describes one file offered for a package by a PEP 503/PEP 691
// Simple Repository API index: a filename, its download URL, any
// fragment-embedded hash, and the PEP 345 `data-requires-python`/
// `data-yanked` attributes PEP 592 added to the HTML form of the API.
type Entry struct {
	Filename       string
	URL            string
	Hashes         map[string]string
	RequiresPython string
	Yanked         bool
	YankedReason   string
}

// IndexClient lists the files an index publishes for a package. Satisfied
// by SimpleAPIClient; a LockedRepository never needs one.
type IndexClient interface {
	ListFiles(ctx context.Context, name string) ([]Entry, error)
}

// SimpleAPIClient implements IndexClient against a PEP 503 HTML index
// (or a PEP 691-but-HTML-compatible one; JSON responses are not parsed).
type SimpleAPIClient struct {
	BaseURL    string
	HTTPClient *retryablehttp.Client
	UserAgent  string
}

func (c *SimpleAPIClient) client() *retryablehttp.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return retryablehttp.NewClient()
}

func (c *SimpleAPIClient) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return "wheelhouse"
}

// ListFiles fetches and parses the index page for name.
func (c *SimpleAPIClient) ListFiles(ctx context.Context, name string) ([]Entry, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("repository: invalid index URL %q: %w", c.BaseURL, err)
	}
	base.Path = path.Join(base.Path, requirement.CanonPackageName(name)) + "/"

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept", "text/html")

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("repository: fetching index for %q: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("repository: index for %q returned HTTP %s", name, resp.Status)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseIndexPage(resp.Request.URL, content)
}

func parseIndexPage(location *url.URL, content []byte) ([]Entry, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("repository: parsing index page: %w", err)
	}
	var entries []Entry
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if e, ok := entryFromAnchor(location, n); ok {
				entries = append(entries, e)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return entries, nil
}

func entryFromAnchor(location *url.URL, n *html.Node) (Entry, bool) {
	var href, requiresPython string
	yanked, yankedReason := false, ""
	for _, attr := range n.Attr {
		switch attr.Key {
		case "href":
			href = attr.Val
		case "data-requires-python":
			requiresPython = attr.Val
		case "data-yanked":
			yanked = true
			yankedReason = attr.Val
		}
	}
	if href == "" {
		return Entry{}, false
	}
	resolved, err := location.Parse(href)
	if err != nil {
		return Entry{}, false
	}
	text := strings.TrimSpace(anchorText(n))
	if text == "" {
		text = path.Base(resolved.Path)
	}
	e := Entry{
		Filename:       text,
		RequiresPython: requiresPython,
		Yanked:         yanked,
		YankedReason:   yankedReason,
	}
	if resolved.Fragment != "" {
		if alg, hex, ok := strings.Cut(resolved.Fragment, "="); ok {
			e.Hashes = map[string]string{alg: hex}
		}
	}
	resolved.Fragment = ""
	e.URL = resolved.String()
	return e, true
}

func anchorText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
