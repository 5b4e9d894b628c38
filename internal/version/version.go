// Package version reports the engine build, as exposed on the health
// endpoint.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Overridden with ldflags on release builds.
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

// Build is the engine's build fingerprint.
type Build struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func Current() Build {
	return Build{
		Version:   String(),
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String resolves the engine version: the ldflags value when one was stamped,
// the module's build info otherwise.
func String() string {
	if Version != "" && Version != "dev" {
		return Version
	}

	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	return "dev"
}
