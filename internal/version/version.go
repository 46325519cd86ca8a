// Package version holds build metadata injected at link time.
package version

import "fmt"

// Populated via -ldflags "-X civiq/internal/version.Version=..." at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a human-readable version string.
func Info() string {
	return fmt.Sprintf("civiq %s (commit %s, built %s)", Version, Commit, Date)
}
