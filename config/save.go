package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SaveConfig writes configuration values back to the global or local file.
// It backs the `factory -set key=value` flow.
type SaveConfig struct {
	// GlobalConfigDir is the directory under ~/.config/ for global config.
	GlobalConfigDir string

	// GlobalConfigFile overrides the global filename. Defaults to
	// "config.yaml".
	GlobalConfigFile string

	// LocalConfigName is the per-repo config filename in the git root.
	LocalConfigName string

	// ValidGlobalKeys and ValidLocalKeys restrict which keys may be
	// written to each file. Nil means all keys.
	ValidGlobalKeys []string
	ValidLocalKeys  []string
}

func (c SaveConfig) globalConfigFile() string {
	if c.GlobalConfigFile != "" {
		return c.GlobalConfigFile
	}
	return "config.yaml"
}

// SaveGlobal writes a key-value pair to the global config file, creating
// the file and directory as needed. Existing keys are preserved.
func (c SaveConfig) SaveGlobal(key, value string) error {
	if c.GlobalConfigDir == "" {
		return fmt.Errorf("global config directory not configured")
	}
	if len(c.ValidGlobalKeys) > 0 && !contains(c.ValidGlobalKeys, key) {
		return fmt.Errorf("unknown config key: %s\n\nValid keys: %s",
			key, strings.Join(c.ValidGlobalKeys, ", "))
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	configPath := filepath.Join(home, ".config", c.GlobalConfigDir, c.globalConfigFile())

	existing := readYAMLMap(configPath)
	existing[key] = parseValue(value)

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(existing)
	if err != nil {
		return err
	}
	// Global config holds API keys; keep it private.
	return os.WriteFile(configPath, data, 0o600)
}

// SaveLocal writes a key-value pair to the local config file at gitRoot.
func (c SaveConfig) SaveLocal(gitRoot, key, value string) error {
	if gitRoot == "" {
		return fmt.Errorf("git root not found")
	}
	if c.LocalConfigName == "" {
		return fmt.Errorf("local config name not configured")
	}
	if len(c.ValidLocalKeys) > 0 && !contains(c.ValidLocalKeys, key) {
		return fmt.Errorf("unknown config key: %s\n\nValid keys: %s",
			key, strings.Join(c.ValidLocalKeys, ", "))
	}

	configPath := filepath.Join(gitRoot, c.LocalConfigName)

	existing := readYAMLMap(configPath)
	existing[key] = parseValue(value)

	data, err := yaml.Marshal(existing)
	if err != nil {
		return err
	}
	// Local config is committed and shared; keep it readable.
	return os.WriteFile(configPath, data, 0o644) //nolint:gosec
}

// DeleteGlobalKey removes a key from the global config file. A missing file
// or key is not an error.
func (c SaveConfig) DeleteGlobalKey(key string) error {
	if c.GlobalConfigDir == "" {
		return fmt.Errorf("global config directory not configured")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	configPath := filepath.Join(home, ".config", c.GlobalConfigDir, c.globalConfigFile())

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil
	}
	var existing map[string]any
	if err := yaml.Unmarshal(data, &existing); err != nil {
		return nil
	}
	delete(existing, key)

	data, err = yaml.Marshal(existing)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0o600)
}

func readYAMLMap(path string) map[string]any {
	var m map[string]any
	if data, err := os.ReadFile(path); err == nil {
		_ = yaml.Unmarshal(data, &m)
	}
	if m == nil {
		m = make(map[string]any)
	}
	return m
}

// parseValue converts bool-looking strings so YAML stores them as booleans.
func parseValue(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	default:
		return value
	}
}
