package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ctavolazzi/mission-control/pkg/types"
)

const (
	// DefaultPort is the control-plane listen port used when config.json
	// does not specify one.
	DefaultPort = 3847

	// DefaultDebounceMs is the watcher debounce window in milliseconds.
	DefaultDebounceMs = 300
)

// DefaultConfig returns a fresh configuration with defaults applied and no
// repositories registered.
func DefaultConfig() *types.Config {
	return &types.Config{
		Port:       DefaultPort,
		Repos:      []types.RepoConfig{},
		DebounceMs: DefaultDebounceMs,
	}
}

// Load reads the configuration document at path. A missing file yields the
// default configuration (first run); a malformed file is an error and must
// abort startup.
func Load(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config %s: %v", path, err)
	}

	var cfg types.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %v", path, err)
	}

	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.DebounceMs == 0 {
		cfg.DebounceMs = DefaultDebounceMs
	}
	if cfg.Repos == nil {
		cfg.Repos = []types.RepoConfig{}
	}

	for _, r := range cfg.Repos {
		if r.Name == "" || r.Path == "" {
			return nil, fmt.Errorf("invalid config %s: repo entries require name and path", path)
		}
	}

	return &cfg, nil
}

// Save writes the full configuration document atomically. Partial updates
// are never written; the document is replaced wholesale via rename.
func Save(path string, cfg *types.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %v", err)
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

// WriteFileAtomic writes data to path via a temp file in the same directory
// followed by rename, so readers never observe a partial document.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %v", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %v", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %v", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %v", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %v", err)
	}
	return nil
}

// BackupPath derives a timestamped backup filename for path. The ISO-8601
// timestamp has ':' and '.' replaced with '-' so the name is portable.
func BackupPath(path string, t time.Time) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.ReplaceAll(stamp, ":", "-")
	stamp = strings.ReplaceAll(stamp, ".", "-")
	return path + ".backup-" + stamp
}
