// Package version holds build metadata injected with -ldflags, e.g.
//
//	-X github.com/MeKo-Tech/labelocr/internal/version.Version=v1.2.0
package version

import (
	"fmt"
	"runtime"
)

// Build-time variables set by ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns version information
func Info() (string, string, string) {
	return Version, GitCommit, BuildDate
}

// String renders the build metadata on one line.
func String() string {
	v, commit, date := Info()
	return fmt.Sprintf("labelocr %s (commit: %s, built: %s, %s/%s)", v, commit, date, runtime.GOOS, runtime.GOARCH)
}
