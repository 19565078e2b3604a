package version //nolint:testpackage // apply mutates package state directly.

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply(t *testing.T) {
	Version, Commit, Date = "dev", unknown, unknown

	t.Cleanup(func() { Version, Commit, Date = "dev", unknown, unknown })

	apply(&debug.BuildInfo{
		Main: debug.Module{Version: "v1.2.3"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		},
	})

	assert.Equal(t, "v1.2.3", Version)
	assert.Equal(t, "0123456789ab", Commit)
	assert.Equal(t, "v1.2.3 (commit: 0123456789ab, built: 2026-01-02T03:04:05Z)", String())
}

func TestApplyKeepsLinkerValues(t *testing.T) {
	Version, Commit, Date = "v9.9.9", "abc", unknown

	t.Cleanup(func() { Version, Commit, Date = "dev", unknown, unknown })

	apply(&debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "ffff"}},
	})

	assert.Equal(t, "v9.9.9", Version)
	assert.Equal(t, "abc", Commit)
	assert.Equal(t, unknown, Date)
}
