package config

import (
	"os"
	"path/filepath"
)

// XDGConfigHome returns the XDG config home or a default fallback.
func XDGConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".config")
}

// XDGStateHome returns the XDG state home or a default fallback.
func XDGStateHome() string {
	if v := os.Getenv("XDG_STATE_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".local", "state")
}

// DefaultConfigPath returns the default TOML config path.
func DefaultConfigPath() string {
	return filepath.Join(XDGConfigHome(), "gasmeter", "config.toml")
}

// DefaultRangePath returns where the expected range is persisted.
func DefaultRangePath() string {
	return filepath.Join(XDGStateHome(), "gasmeter", "range.json")
}

// DefaultDBPath returns the default path for the reading log.
func DefaultDBPath() string {
	return filepath.Join(XDGStateHome(), "gasmeter", "readings.db")
}

// DefaultWorkDir returns the per-cycle diagnostics directory.
func DefaultWorkDir() string {
	return filepath.Join(XDGStateHome(), "gasmeter", "work")
}

// DefaultArchiveDir returns where rejected cycles are kept.
func DefaultArchiveDir() string {
	return filepath.Join(XDGStateHome(), "gasmeter", "rejected")
}
