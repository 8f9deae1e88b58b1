package resolver

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wheelhouse-dev/wheelhouse/internal/provider"
	"github.com/wheelhouse-dev/wheelhouse/internal/pyspec"
	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

// conflictError records one vertex's FindMatches failure along with the
// (requirement, parent) pairs that produced it, so ResolutionImpossibleError
// can render a human-readable chain of "X requires Y" the way pip's
// ResolutionImpossible does.
type conflictError struct {
	Identifier string
	Reqs       []requirement.Requirement
	Parents    []string
	Cause      error
}

func (e conflictError) Error() string {
	return fmt.Sprintf("no version of %s satisfies %s: %v", e.Identifier, describeReqs(e.Reqs), e.Cause)
}

func (e conflictError) Unwrap() error { return e.Cause }

func conflict(identifier string, reqs []requirement.Requirement, parents []string, newParent string, cause error) conflictError {
	return conflictError{
		Identifier: identifier,
		Reqs:       reqs,
		Parents:    append(append([]string(nil), parents...), newParent),
		Cause:      cause,
	}
}

func describeReqs(reqs []requirement.Requirement) string {
	parts := make([]string, len(reqs))
	for i, r := range reqs {
		parts[i] = r.String()
	}
	return strings.Join(parts, " and ")
}

// ResolutionImpossibleError is returned when the backtracking search
// exhausted every combination without finding a consistent pin for some
// vertex. It additionally surfaces a
// narrowed requires-python suggestion when every cause was a
// requires-python exclusion, by unioning the excluded ranges across causes.
type ResolutionImpossibleError struct {
	Causes []conflictError
}

func (e ResolutionImpossibleError) Error() string {
	var b strings.Builder
	b.WriteString("no version of ")
	names := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		names[i] = c.Identifier
	}
	sort.Strings(names)
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(" could satisfy all requirements:\n")
	for _, c := range e.Causes {
		fmt.Fprintf(&b, "  - %s requires %s", chainLabel(c), describeReqs(c.Reqs))
		if c.Cause != nil {
			fmt.Fprintf(&b, " (%v)", c.Cause)
		}
		b.WriteString("\n")
	}
	if suggestion, ok := e.pythonSuggestion(); ok {
		fmt.Fprintf(&b, "every candidate for %s was excluded by requires-python; "+
			"the project's requires-python could be narrowed to %s to resolve this\n",
			e.Causes[0].Identifier, suggestion)
	}
	return b.String()
}

func chainLabel(c conflictError) string {
	parents := make([]string, 0, len(c.Parents))
	for _, p := range c.Parents {
		if p == "" {
			parents = append(parents, "<project>")
		} else {
			parents = append(parents, p)
		}
	}
	return strings.Join(dedupe(parents), ", ")
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// pythonSuggestion reports a narrowed requires-python range when every
// cause traces back to a provider.NoMatchesError with PythonOnly set, by
// unioning the excluded candidates' own requires-python ranges (the
// widest range that would have admitted at least one of them).
func (e ResolutionImpossibleError) pythonSuggestion() (string, bool) {
	if len(e.Causes) == 0 {
		return "", false
	}
	var union pyspec.PySpecSet
	found := false
	for _, c := range e.Causes {
		var nme provider.NoMatchesError
		if !errors.As(c.Cause, &nme) || !nme.PythonOnly {
			return "", false
		}
		for _, spec := range nme.ExcludedForPython {
			if !found {
				union = spec
				found = true
				continue
			}
			union = union.Union(spec)
		}
	}
	if !found {
		return "", false
	}
	return union.String(), true
}

// ResolutionTooDeepError is returned when the round cap is reached
// without converging, carrying the configured bound for the message.
type ResolutionTooDeepError struct {
	MaxRounds int
}

func (e ResolutionTooDeepError) Error() string {
	return fmt.Sprintf("resolution aborted after %d rounds without converging", e.MaxRounds)
}
