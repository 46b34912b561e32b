package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".autoreply"

// Paths holds resolved filesystem paths for autoresponder data.
type Paths struct {
	Base     string // ~/.autoreply
	Config   string // ~/.autoreply/config.yaml
	Sessions string // ~/.autoreply/sessions
	Data     string // ~/.autoreply/data
	Logs     string // ~/.autoreply/logs
}

// ResolvePaths computes all standard paths from the home directory.
// If AUTOREPLY_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("AUTOREPLY_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:     base,
		Config:   filepath.Join(base, "config.yaml"),
		Sessions: filepath.Join(base, "sessions"),
		Data:     filepath.Join(base, "data"),
		Logs:     filepath.Join(base, "logs"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.Base, p.Sessions, p.Data, p.Logs}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// Resolve fills path-dependent config fields that were left empty.
func (p Paths) Resolve(cfg *Config) {
	if cfg.Sessions.Dir == "" {
		cfg.Sessions.Dir = p.Sessions
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(p.Data, "autoreply.db")
	}
}
