package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/BurntSushi/toml"
	"github.com/wheelhouse-dev/wheelhouse/internal/manifest"
)

// manifestFile and lockFile are this binary's conventional names for the
// project manifest and its lockfile, analogous to pdm's pyproject.toml/
// pdm.lock pair.
const (
	manifestFile = "pyproject.toml"
	lockFile     = "wheelhouse.lock"
)

// Core is the configuration value threaded through every subcommand,
// carrying the cache directory, HTTP client and logger every long-lived
// component (Repository, Synchronizer) is constructed with: no
// package-level mutable globals, everything flows through explicit
// parameters.
type Core struct {
	ProjectDir string
	CacheDir   string
	HTTPClient *retryablehttp.Client
	Logger     *log.Logger
	Debug      bool
}

func (c *Core) debugf(format string, args ...any) {
	if !c.Debug {
		return
	}
	c.Logger.Printf(format, args...)
}

// newCore builds a Core rooted at projectDir, deriving a default cache
// directory under it unless overridden.
func newCore(projectDir, cacheDir string, debug bool) *Core {
	if cacheDir == "" {
		cacheDir = filepath.Join(projectDir, ".wheelhouse-cache")
	}
	client := retryablehttp.NewClient()
	return &Core{
		ProjectDir: projectDir,
		CacheDir:   cacheDir,
		HTTPClient: client,
		Logger:     log.New(os.Stderr, "wheelhouse: ", 0),
		Debug:      debug,
	}
}

func (c *Core) manifestPath() string {
	return filepath.Join(c.ProjectDir, manifestFile)
}

func (c *Core) lockPath() string {
	return filepath.Join(c.ProjectDir, lockFile)
}

// loadManifest decodes the project manifest at c.manifestPath(). The
// decoder itself is an external collaborator — internal/manifest
// only defines the struct shape BurntSushi/toml populates here.
func (c *Core) loadManifest() (manifest.Manifest, error) {
	var m manifest.Manifest
	if _, err := toml.DecodeFile(c.manifestPath(), &m); err != nil {
		return manifest.Manifest{}, err
	}
	return m, nil
}
