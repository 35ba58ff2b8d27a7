package config

import (
	"fmt"
	"path/filepath"

	"hivemind-decide/pkg/sizing"
)

// MustLoadKelly loads etc/kelly.yaml from the project root and panics on
// error.
func MustLoadKelly() *sizing.Config {
	root := MustProjectRoot()
	path := filepath.Join(root, "etc", "kelly.yaml")
	cfg, err := sizing.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load kelly config %s: %w", path, err))
	}
	return cfg
}
