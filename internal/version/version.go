// Package version holds casbridge build metadata. Release builds set the
// variables with -ldflags; otherwise Commit and BuildDate fall back to the
// VCS stamp the go tool embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Name is the program name reported by --version.
const Name = "casbridge"

var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

// String returns the one-line version report.
func String() string {
	commit, date := stamp()
	return fmt.Sprintf("%s %s (commit: %s, built: %s, %s %s/%s)",
		Name, Version, commit, date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// stamp returns Commit and BuildDate, filling unset values from the
// embedded build info.
func stamp() (commit, date string) {
	commit, date = Commit, BuildDate
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && commit == "":
				commit = s.Value
			case s.Key == "vcs.time" && date == "":
				date = s.Value
			}
		}
	}
	if commit == "" {
		commit = "unknown"
	}
	if date == "" {
		date = "unknown"
	}
	return commit, date
}
