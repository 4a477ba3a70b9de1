package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EngineOverride customizes one catalog engine from the engines file.
// Zero-value fields leave the built-in defaults untouched.
type EngineOverride struct {
	Disabled bool     `yaml:"disabled"`
	Binary   string   `yaml:"binary"`
	Args     []string `yaml:"args"`
	Download []string `yaml:"download"`
}

type enginesFile struct {
	Engines map[string]EngineOverride `yaml:"engines"`
}

// LoadEngineOverrides reads the optional engines YAML file.
// An empty path means no overrides.
func LoadEngineOverrides(path string) (map[string]EngineOverride, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read engines file: %w", err)
	}

	var parsed enginesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse engines file %s: %w", path, err)
	}

	return parsed.Engines, nil
}
