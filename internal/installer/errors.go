package installer

import "fmt"

// UninstallError is raised when removing a distribution's files fails
// partway through; the installer always attempts Rollback before
// returning this.
type UninstallError struct {
	Distribution string
	Err          error
}

func (e UninstallError) Error() string {
	return fmt.Sprintf("installer: uninstalling %s: %v", e.Distribution, e.Err)
}

func (e UninstallError) Unwrap() error { return e.Err }

// BuildArtifactError wraps a failure opening or walking a wheel file that
// isn't attributable to any single RECORD entry.
type BuildArtifactError struct {
	Wheel string
	Err   error
}

func (e BuildArtifactError) Error() string {
	return fmt.Sprintf("installer: %s: %v", e.Wheel, e.Err)
}

func (e BuildArtifactError) Unwrap() error { return e.Err }
