// Package version carries build metadata for the courseplanner binary.
package version

import (
	"runtime/debug"
)

const unknown = "unknown"

// Build metadata, set with -ldflags "-X github.com/Sumatoshi-tech/courseplanner/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = unknown
	Date    = unknown
)

// InitBinaryVersion fills metadata left unset by the linker from the embedded build info.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	apply(info)
}

func apply(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == unknown && setting.Value != "" {
				Commit = shortRevision(setting.Value)
			}
		case "vcs.time":
			if Date == unknown && setting.Value != "" {
				Date = setting.Value
			}
		}
	}
}

func shortRevision(rev string) string {
	const shortLen = 12

	if len(rev) > shortLen {
		return rev[:shortLen]
	}

	return rev
}

// String returns "version (commit: c, built: d)".
func String() string {
	return Version + " (commit: " + Commit + ", built: " + Date + ")"
}
