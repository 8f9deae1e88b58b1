package marker

import "runtime"

// Environment holds the values of the environment variables a PEP 508
// marker can reference (https://peps.python.org/pep-0508/#environment-markers).
// A Marker is evaluated against a specific Environment rather than always
// the host running this process, since the resolver must often evaluate
// markers for a target Python/platform that differs from the one it runs
// on (cross-environment lockfiles).
type Environment struct {
	OSName                       string
	SysPlatform                  string
	PlatformMachine              string
	PlatformPythonImplementation string
	PlatformRelease              string
	PlatformSystem               string
	PlatformVersion              string
	PythonVersion                string
	PythonFullVersion            string
	ImplementationName           string
	ImplementationVersion        string
}

// Current returns the Environment for the Go process's own host, used by
// tests and by callers that have no narrower target environment
// configured. It approximates CPython's own values using Go's runtime
// information; a real caller normally supplies a precise Environment
// gathered from the target interpreter instead.
func Current() Environment {
	sysPlatform := "linux"
	switch runtime.GOOS {
	case "darwin":
		sysPlatform = "darwin"
	case "windows":
		sysPlatform = "win32"
	}
	return Environment{
		OSName:                       goosToOSName(runtime.GOOS),
		SysPlatform:                  sysPlatform,
		PlatformMachine:              runtime.GOARCH,
		PlatformPythonImplementation: "CPython",
		PlatformSystem:               goosToPlatformSystem(runtime.GOOS),
		ImplementationName:           "cpython",
	}
}

func goosToOSName(goos string) string {
	if goos == "windows" {
		return "nt"
	}
	return "posix"
}

func goosToPlatformSystem(goos string) string {
	switch goos {
	case "windows":
		return "Windows"
	case "darwin":
		return "Darwin"
	default:
		return "Linux"
	}
}

// asMap returns the variable name → value mapping this Environment
// supplies, used by the parser to resolve marker_var references.
func (e Environment) asMap() map[string]string {
	return map[string]string{
		"os_name":                        e.OSName,
		"sys_platform":                   e.SysPlatform,
		"platform_machine":               e.PlatformMachine,
		"platform_python_implementation": e.PlatformPythonImplementation,
		"platform_release":               e.PlatformRelease,
		"platform_system":                e.PlatformSystem,
		"platform_version":               e.PlatformVersion,
		"python_version":                 e.PythonVersion,
		"python_full_version":            e.PythonFullVersion,
		"implementation_name":            e.ImplementationName,
		"implementation_version":         e.ImplementationVersion,
	}
}
