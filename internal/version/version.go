// Package version carries build metadata set through ldflags:
//
//	go build -ldflags "-X git.home.luguber.info/inful/gitteh/internal/version.Version=v0.3.0"
package version

import "fmt"

var Version = "unknown"

var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by `gitteh --version`.
func String() string {
	return fmt.Sprintf("gitteh %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
