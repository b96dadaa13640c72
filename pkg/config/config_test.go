package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctavolazzi/mission-control/pkg/types"
)

// TestLoadMissingFileReturnsDefaults tests first-run behavior
func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultDebounceMs, cfg.DebounceMs)
	assert.Empty(t, cfg.Repos)
}

// TestLoadMalformedFileFails tests that corrupt config aborts startup
func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

// TestLoadRejectsIncompleteRepoEntries tests required repo fields
func TestLoadRejectsIncompleteRepoEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port":3847,"repos":[{"name":"only-name"}]}`), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

// TestSaveLoadRoundTrip tests full-document persistence
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	want := &types.Config{
		Port:       4000,
		DebounceMs: 150,
		Repos: []types.RepoConfig{
			{Name: "_pyrite", Path: "/tmp/_pyrite"},
			{Name: "fogsift", Path: "/tmp/fogsift"},
		},
	}
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// TestLoadAppliesDefaultsForZeroFields tests partial documents
func TestLoadAppliesDefaultsForZeroFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"repos":[]}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultDebounceMs, cfg.DebounceMs)
}

// TestWriteFileAtomicReplacesContent tests the rename-based write
func TestWriteFileAtomicReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, WriteFileAtomic(path, []byte("one")))
	require.NoError(t, WriteFileAtomic(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// TestBackupPath tests the timestamp mangling in backup names
func TestBackupPath(t *testing.T) {
	ts := time.Date(2026, 5, 1, 13, 37, 42, 123000000, time.UTC)
	got := BackupPath("/data/counter-state.json", ts)

	assert.Equal(t, "/data/counter-state.json.backup-2026-05-01T13-37-42-123Z", got)
	assert.False(t, strings.ContainsAny(filepath.Base(got), ":"), "backup name must not contain colons")
}
