// Package version reports the scoutbot build.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Stamped with -ldflags "-X github.com/soyeahso/scoutbot/internal/version.Version=..."
// (likewise Commit and Date). Unstamped builds fall back to the VCS
// settings the go tool records.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version  string
	Commit   string
	Date     string
	Modified bool
}

var readBuildInfo = debug.ReadBuildInfo

// Current merges the stamped variables with the recorded VCS settings.
// Stamped values always win.
func Current() Build {
	b := Build{Version: Version, Commit: Commit, Date: Date}
	info, ok := readBuildInfo()
	if !ok {
		return b
	}
	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = strings.TrimPrefix(info.Main.Version, "v")
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "unknown" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.Date == "unknown" {
				b.Date = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b
}

// Info is the one-line banner printed by `scoutbot version`.
func Info() string {
	b := Current()
	commit := abbrev(b.Commit)
	if b.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("scoutbot %s (commit: %s, built: %s, %s/%s)",
		b.Version, commit, b.Date, runtime.GOOS, runtime.GOARCH)
}

// UserAgent is the identifier sent to transports and model providers.
func UserAgent() string {
	return "scoutbot/" + Current().Version
}

func abbrev(rev string) string {
	const n = 7
	if len(rev) <= n {
		return rev
	}
	return rev[:n]
}
