package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/coalesce/internal/resolver"
)

// LoadResolution reads a resolution configuration from a YAML file and
// validates it. Example:
//
//	match_threshold: 0.85
//	possible_threshold: 0.65
//	weights:
//	  name: 1.0
//	  email: 0.8
//	comparators:
//	  name: jarowinkler
//	  email: exact
//	blocking:
//	  phonetic: [name]
func LoadResolution(path string) (resolver.Config, error) {
	var cfg resolver.Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read resolution file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse resolution file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
