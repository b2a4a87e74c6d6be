// Package version exposes build-time version information, injected via
// -ldflags at release builds.
package version

import "runtime"

var (
	// Version is the semantic version, overridden at build time.
	Version = "dev"
	// Commit is the git commit hash, overridden at build time.
	Commit = "unknown"
	// BuildTime is the build timestamp, overridden at build time.
	BuildTime = "unknown"
)

// Info bundles the build identity for health endpoints and logs.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the current build information.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}
