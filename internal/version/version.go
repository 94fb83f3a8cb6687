// Package version carries build metadata injected at link time via
// -ldflags "-X".
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata as a single human-readable line.
func String() string {
	return fmt.Sprintf("laguerre-fit %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
