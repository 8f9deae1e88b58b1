package environment

// Distribution is one installed package: its version, the files
// it placed in the environment (from RECORD), the entry points it
// declared, and optional provenance for non-index installs.
type Distribution struct {
	Name    string
	Version string

	// Files are the installed paths recorded in RECORD, relative to the
	// scheme root they were written under.
	Files []RecordEntry

	// EntryPoints maps a console/gui script name to the "module:attr"
	// target it launches, parsed from entry_points.txt's
	// [console_scripts]/[gui_scripts] sections.
	EntryPoints map[string]string
	GUIEntryPoints map[string]string

	// DirectURL is non-nil when this distribution wasn't installed from a
	// named index.
	DirectURL *DirectURL

	// Editable mirrors DirectURL.DirInfo.Editable for callers that don't
	// want to reach through a possibly-nil pointer; the Synchronizer's
	// diff treats an editable distribution as always consistent
	// regardless of its recorded version.
	Editable bool

	// ReferTo is the content-addressed cache directory this installation
	// links to, empty for a
	// standalone (non-cache-linked) install.
	ReferTo string

	// DistInfoDir is the "<name>-<version>.dist-info" directory's path
	// relative to the scheme root it lives under, the anchor uninstall
	// works from.
	DistInfoDir string
}

// Identify returns the vertex identifier this Distribution corresponds to
// in the resolver's (and lockfile's) "name[extras]" identity space. A
// working-set Distribution never carries extras of its own — the extras a
// package was installed *for* live on the requirement that pulled it in,
// not on the installed files — so this is always just the normalized name.
func (d *Distribution) Identify() string { return d.Name }
