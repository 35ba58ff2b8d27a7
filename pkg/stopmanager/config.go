package stopmanager

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads a stop-manager Config from a YAML file, applying
// defaults to any field left unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stops config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal stops config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &cfg, nil
}
