// Package configfile loads the project configuration from the .huntforge
// directory.
package configfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfigFileName is the configuration file inside the .huntforge dir.
const ConfigFileName = "config.json"

// DefaultDir is the project configuration directory.
const DefaultDir = ".huntforge"

// Config is the persisted project configuration.
type Config struct {
	// Repo is the ticket repository slug, "owner/name".
	Repo string `json:"repo"`
	// HuntDirs are the canonical hunt category directories.
	HuntDirs []string `json:"hunt_dirs,omitempty"`
	// Database is the index database path, relative to the project root.
	Database string `json:"database,omitempty"`

	// TriggerLabel marks tickets awaiting pipeline processing;
	// ReadyLabel marks tickets whose hunt is ready to merge.
	TriggerLabel string `json:"trigger_label,omitempty"`
	ReadyLabel   string `json:"ready_label,omitempty"`

	// Model overrides the generation model.
	Model string `json:"model,omitempty"`

	// MaxAttempts and BaseDelaySeconds tune the retry discipline for
	// stage work and gateway calls.
	MaxAttempts      int `json:"max_attempts,omitempty"`
	BaseDelaySeconds int `json:"base_delay_seconds,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		HuntDirs:         []string{"Flames", "Embers", "Alchemy"},
		Database:         filepath.Join("database", "hunts.db"),
		TriggerLabel:     "intel-submission",
		ReadyLabel:       "hunt-ready",
		MaxAttempts:      3,
		BaseDelaySeconds: 5,
	}
}

// ConfigPath returns the config file path inside dir.
func ConfigPath(dir string) string {
	return filepath.Join(dir, ConfigFileName)
}

// Load reads the config from dir, filling unset fields with defaults.
// A missing file returns the defaults; a corrupt file is an error.
func Load(dir string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(dir)) // #nosec G304 - controlled path
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to dir, creating it if necessary.
func (c *Config) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(ConfigPath(dir), append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SplitRepo returns the owner and name parts of the repo slug.
func (c *Config) SplitRepo() (owner, name string, err error) {
	parts := strings.SplitN(c.Repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repo must be owner/name, got %q", c.Repo)
	}
	return parts[0], parts[1], nil
}
