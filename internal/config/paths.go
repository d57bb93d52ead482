package config

import (
	"os"
	"path/filepath"
)

// Paths holds the daemon's standard directories.
type Paths struct {
	Data   string // ~/.local/share/agentd
	Config string // ~/.config/agentd
}

// GetPaths resolves the XDG base directories.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(envOr("XDG_DATA_HOME", filepath.Join(os.Getenv("HOME"), ".local", "share")), "agentd"),
		Config: filepath.Join(envOr("XDG_CONFIG_HOME", filepath.Join(os.Getenv("HOME"), ".config")), "agentd"),
	}
}

// EnsurePaths creates the directories if needed.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// GlobalConfigPath returns the global config file location.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "agentd.yaml")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
