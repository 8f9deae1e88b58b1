package repository

import "fmt"

// CandidateInfoNotFoundError is raised when metadata for a candidate
// cannot be fetched or parsed (network or parse error). This
// is never fatal to the whole resolution: the Provider treats the branch
// as unsatisfiable and the resolver backtracks.
type CandidateInfoNotFoundError struct {
	Name, Version string
	Err           error
}

func (e CandidateInfoNotFoundError) Error() string {
	return fmt.Sprintf("candidate info not found: %s %s: %v", e.Name, e.Version, e.Err)
}

func (e CandidateInfoNotFoundError) Unwrap() error { return e.Err }

// CandidateBuildError is raised when building an sdist or local directory
// into a wheel fails. Fatal to that one candidate; the resolver can still
// backtrack to a different version.
type CandidateBuildError struct {
	Name, Version string
	Err           error
}

func (e CandidateBuildError) Error() string {
	return fmt.Sprintf("build failed for %s %s: %v", e.Name, e.Version, e.Err)
}

func (e CandidateBuildError) Unwrap() error { return e.Err }
