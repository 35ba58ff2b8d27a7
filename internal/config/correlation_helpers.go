package config

import (
	"fmt"
	"path/filepath"

	"hivemind-decide/pkg/correlation"
)

// MustLoadCorrelation loads etc/correlation.yaml from the project root and
// panics on error.
func MustLoadCorrelation() *correlation.Config {
	root := MustProjectRoot()
	path := filepath.Join(root, "etc", "correlation.yaml")
	cfg, err := correlation.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load correlation config %s: %w", path, err))
	}
	return cfg
}
