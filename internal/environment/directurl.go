package environment

// DirectURL mirrors PEP 610's direct_url.json: provenance recorded
// alongside METADATA for any distribution not installed from a named
// index (URL, VCS, local path, or editable installs).
type DirectURL struct {
	URL      string        `json:"url"`
	VCSInfo  *VCSInfo      `json:"vcs_info,omitempty"`
	ArchiveInfo *ArchiveInfo `json:"archive_info,omitempty"`
	DirInfo  *DirInfo      `json:"dir_info,omitempty"`
}

// VCSInfo is populated for a checkout-backed installation.
type VCSInfo struct {
	VCS               string `json:"vcs"`
	CommitID          string `json:"commit_id"`
	RequestedRevision string `json:"requested_revision,omitempty"`
}

// ArchiveInfo is populated for a direct URL pointing at an sdist/wheel
// archive, carrying its hash for PEP 610's optional integrity check.
type ArchiveInfo struct {
	Hash string `json:"hash,omitempty"`
}

// DirInfo is populated for a local directory installation.
type DirInfo struct {
	Editable bool `json:"editable,omitempty"`
}
