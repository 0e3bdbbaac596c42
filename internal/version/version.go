// Package version carries the toolkit's build identity.
package version

import (
	"fmt"
	"runtime/debug"
)

// Both values are meant to be stamped by the release build:
//
//	go build -ldflags="-X github.com/muurk/rotortool/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/rotortool/internal/version.Commit=1a2b3c4"
//
// Anything left unstamped is resolved from the module build info, so
// a plain `go install` from a git checkout still reports its revision.
var (
	// Version is the release version of the toolkit.
	Version = ""
	// Commit is the short VCS revision the binary was built from.
	Commit = ""
)

func init() {
	rev, date, dirty := vcsInfo()

	if Commit == "" {
		Commit = rev
		if dirty && Commit != "unknown" {
			Commit += "-dirty"
		}
	}
	if Version == "" {
		Version = "dev"
		if date != "" {
			Version = "dev-" + date
		}
	}
}

// vcsInfo pulls the revision, commit date, and dirty flag out of the
// embedded build info. Binaries built outside a repository report
// ("unknown", "", false).
func vcsInfo() (rev, date string, dirty bool) {
	rev = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return rev, "", false
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if len(s.Value) >= 7 {
				rev = s.Value[:7]
			} else if s.Value != "" {
				rev = s.Value
			}
		case "vcs.time":
			// RFC 3339; the date part is enough for a dev version.
			if len(s.Value) >= len("2006-01-02") {
				date = s.Value[:len("2006-01-02")]
			}
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	return rev, date, dirty
}

// Full returns the version and commit in one display string.
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}
