// Package prefs persists per-device choices: which player this device is,
// and the UI theme. Losing this file loses nothing shared.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Prefs is everything remembered between runs.
type Prefs struct {
	// PlayerID is the "I am" selection; empty until the user picks one.
	PlayerID string `yaml:"player_id,omitempty"`
	Theme    string `yaml:"theme,omitempty"`
}

// DefaultPath returns the conventional prefs location under the user config
// directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "clocktower", "prefs.yaml"), nil
}

// Load reads prefs from path. A missing file yields zero prefs, no error.
func Load(path string) (Prefs, error) {
	var p Prefs
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read prefs: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse prefs: %w", err)
	}
	return p, nil
}

// Save writes prefs to path, creating parent directories as needed.
func Save(path string, p Prefs) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}
