package environment

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wheelhouse-dev/wheelhouse/internal/metadata"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

// WorkingSet is the mapping from normalized name to installed
// Distribution.
type WorkingSet map[string]*Distribution

// Scan walks scheme.Purelib (and Platlib, if distinct) for
// "*.dist-info" directories and builds the current working set by reading
// each one's METADATA, RECORD, entry_points.txt and direct_url.json.
func Scan(ctx context.Context, scheme Scheme) (WorkingSet, error) {
	ws := WorkingSet{}
	roots := []string{scheme.Purelib}
	if scheme.Platlib != scheme.Purelib {
		roots = append(roots, scheme.Platlib)
	}
	seen := map[string]bool{}
	for _, root := range roots {
		if seen[root] {
			continue
		}
		seen[root] = true
		entries, err := os.ReadDir(root)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("environment: scanning %s: %w", root, err)
		}
		for _, e := range entries {
			if !e.IsDir() || !strings.HasSuffix(e.Name(), ".dist-info") {
				continue
			}
			dist, err := readDistInfo(ctx, root, e.Name())
			if err != nil {
				return nil, fmt.Errorf("environment: reading %s: %w", e.Name(), err)
			}
			ws[requirement.CanonPackageName(dist.Name)] = dist
		}
	}
	return ws, nil
}

func readDistInfo(ctx context.Context, root, distInfoName string) (*Distribution, error) {
	dir := filepath.Join(root, distInfoName)

	mdData, err := os.ReadFile(filepath.Join(dir, "METADATA"))
	if err != nil {
		return nil, err
	}
	md, err := metadata.Parse(ctx, string(mdData))
	if err != nil {
		return nil, err
	}

	dist := &Distribution{
		Name:        md.Name,
		Version:     md.Version,
		DistInfoDir: distInfoName,
	}

	if recData, err := os.ReadFile(filepath.Join(dir, "RECORD")); err == nil {
		entries, err := ParseRecord(strings.NewReader(string(recData)))
		if err != nil {
			return nil, err
		}
		dist.Files = entries
	}

	if epData, err := os.ReadFile(filepath.Join(dir, "entry_points.txt")); err == nil {
		console, gui, err := parseEntryPoints(strings.NewReader(string(epData)))
		if err != nil {
			return nil, err
		}
		dist.EntryPoints = console
		dist.GUIEntryPoints = gui
	}

	if duData, err := os.ReadFile(filepath.Join(dir, "direct_url.json")); err == nil {
		var du DirectURL
		if err := json.Unmarshal(duData, &du); err != nil {
			return nil, fmt.Errorf("parsing direct_url.json: %w", err)
		}
		dist.DirectURL = &du
		dist.Editable = du.DirInfo != nil && du.DirInfo.Editable
	}

	if referData, err := os.ReadFile(filepath.Join(dir, "REFER_TO")); err == nil {
		dist.ReferTo = strings.TrimSpace(string(referData))
	}

	return dist, nil
}

// parseEntryPoints parses an entry_points.txt ini-like document, returning
// the [console_scripts] and [gui_scripts] sections as name → "module:attr"
// maps; every other section is ignored (extras-gated plugin entry points
// are outside the installer's concern).
func parseEntryPoints(r *strings.Reader) (console, gui map[string]string, err error) {
	console = map[string]string{}
	gui = map[string]string{}
	var current *map[string]string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
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
		if !ok {
			continue
		}
		(*current)[strings.TrimSpace(name)] = strings.TrimSpace(target)
	}
	return console, gui, scanner.Err()
}
