// Command wheelhouse is a thin binary wiring the engine core packages
// together: it resolves a project manifest into a lockfile, and
// synchronizes an environment's working set against one.
// The full CLI (init wizard, `add`/`remove`, shell completion, help
// formatting) is out of scope; this exists for manual testing and as a
// usage example.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

const usage = `wheelhouse manages a Python project's locked dependency set.

Usage:

  wheelhouse <command> [options]

Commands:

  lock    resolve the project manifest and write the lockfile
  sync    install/update/remove to match the lockfile
  cache   clear the http/metadata/hashes/wheels/packages caches
  version print the binary's version
`

var version = "dev"

func run(args []string) (int, error) {
	globals := pflag.NewFlagSet("wheelhouse", pflag.ContinueOnError)
	globals.SetInterspersed(false)
	projectDir := globals.StringP("directory", "C", ".", "project directory containing pyproject.toml")
	cacheDir := globals.String("cache-dir", "", "cache directory (default: <project>/.wheelhouse-cache)")
	debug := globals.Bool("debug", false, "enable verbose diagnostics")
	if err := globals.Parse(args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 0, nil
		}
		return 2, err
	}

	rest := globals.Args()
	cmd := ""
	if len(rest) > 0 {
		cmd = rest[0]
	}

	switch cmd {
	case "", "help", "-h", "--help":
		fmt.Print(usage)
		return 2, nil
	case "version":
		fmt.Printf("wheelhouse version: %s\n", version)
		return 0, nil
	case "lock":
		core := newCore(*projectDir, *cacheDir, *debug)
		if err := cmdLock(core, rest[1:]); err != nil {
			return 1, err
		}
		return 0, nil
	case "sync":
		core := newCore(*projectDir, *cacheDir, *debug)
		if err := cmdSync(core, rest[1:]); err != nil {
			return 1, err
		}
		return 0, nil
	case "cache":
		core := newCore(*projectDir, *cacheDir, *debug)
		if err := cmdCache(core, rest[1:]); err != nil {
			return 1, err
		}
		return 0, nil
	default:
		fmt.Printf("wheelhouse %s: unknown command\n", cmd)
		return 2, nil
	}
}

func main() {
	code, err := run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(code)
}
