package config

import (
	"fmt"
	"path/filepath"

	"hivemind-decide/pkg/cost"
)

// MustLoadATR loads etc/atr.yaml from the project root and panics on error.
func MustLoadATR() *cost.Config {
	root := MustProjectRoot()
	path := filepath.Join(root, "etc", "atr.yaml")
	cfg, err := cost.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load atr config %s: %w", path, err))
	}
	return cfg
}
