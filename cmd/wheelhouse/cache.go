package main

import (
	"fmt"

	"github.com/wheelhouse-dev/wheelhouse/internal/installer"
	"github.com/wheelhouse-dev/wheelhouse/internal/repository"
)

// cmdCache handles "cache clear <kind>": http, metadata, hashes and
// wheels clear the repository-side caches wholesale; packages sweeps
// unreferenced entries out of the shared content-addressed store.
func cmdCache(core *Core, args []string) error {
	if len(args) < 1 || args[0] != "clear" {
		return fmt.Errorf("usage: wheelhouse cache clear <http|metadata|hashes|wheels|packages|all>")
	}
	kinds := args[1:]
	if len(kinds) == 0 || (len(kinds) == 1 && kinds[0] == "all") {
		kinds = []string{"http", "metadata", "hashes", "wheels", "packages"}
	}

	repo := repository.NewIndexRepository(nil, nil, nil, core.CacheDir)
	pkgCache := &installer.Cache{Root: core.CacheDir}
	for _, kind := range kinds {
		switch kind {
		case "packages":
			removed, err := pkgCache.ClearPackages()
			if err != nil {
				return fmt.Errorf("clearing package cache: %w", err)
			}
			fmt.Printf("packages: removed %d unreferenced entr%s\n", len(removed), plural(len(removed), "y", "ies"))
		case "http", "metadata", "hashes", "wheels":
			if err := repo.ClearCache(repository.CacheKind(kind)); err != nil {
				return fmt.Errorf("clearing %s cache: %w", kind, err)
			}
			fmt.Printf("%s: cleared\n", kind)
		default:
			return fmt.Errorf("unknown cache kind %q", kind)
		}
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
