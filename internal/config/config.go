// Package config loads daemon and project configuration.
//
// Two layers exist: a global config file under the XDG config dir
// (YAML) controlling the daemon itself, and a per-project file at
// <project>/.agentd/agentd.json (JSON with comments) controlling how
// that project's session behaves. Environment variables override both.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Global configures the daemon process.
type Global struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	LogLevel     string        `yaml:"logLevel"`
	Model        string        `yaml:"model"`
	ReadyTimeout time.Duration `yaml:"readyTimeout"`
	DataDir      string        `yaml:"dataDir"`
}

// DefaultGlobal returns the daemon defaults.
func DefaultGlobal() *Global {
	return &Global{
		Host:         "127.0.0.1",
		Port:         8420,
		LogLevel:     "info",
		Model:        "gemini-2.0-flash",
		ReadyTimeout: 30 * time.Second,
		DataDir:      GetPaths().Data,
	}
}

// LoadGlobal reads the global config file, falling back to defaults when
// it is absent, then applies environment overrides.
func LoadGlobal() (*Global, error) {
	cfg := DefaultGlobal()

	path := GlobalConfigPath()
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyGlobalEnv(cfg)
	return cfg, nil
}

func applyGlobalEnv(cfg *Global) {
	if v := os.Getenv("AGENTD_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("AGENTD_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("AGENTD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AGENTD_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("AGENTD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
}

// Project configures one served project directory.
type Project struct {
	// Model overrides the daemon's default model for this project.
	Model string `json:"model,omitempty"`
	// Yolo enables automatic tool execution. Nil means "not set",
	// which falls back to false.
	Yolo *bool `json:"yolo,omitempty"`
	// MemoryFile names the project context file injected at session
	// start, relative to the project root.
	MemoryFile string `json:"memoryFile,omitempty"`
}

// YoloEnabled resolves the yolo flag with its default.
func (p *Project) YoloEnabled() bool {
	return p.Yolo != nil && *p.Yolo
}

// LoadProject reads the project config for directory. A missing file
// yields an empty config; a malformed file is an error.
func LoadProject(directory string) (*Project, error) {
	cfg := &Project{}

	for _, path := range projectConfigCandidates(directory) {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return cfg, nil
	}
	return cfg, nil
}

// ProjectConfigFile returns the path of the config file in effect for
// directory, or "" when none exists.
func ProjectConfigFile(directory string) string {
	for _, path := range projectConfigCandidates(directory) {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func projectConfigCandidates(directory string) []string {
	dir := filepath.Join(directory, ".agentd")
	return []string{
		filepath.Join(dir, "agentd.json"),
		filepath.Join(dir, "agentd.jsonc"),
	}
}
