package config

import (
	"fmt"
	"path/filepath"

	"hivemind-decide/pkg/risk"
)

// MustLoadRisk loads etc/risk.yaml from the project root and panics on
// error.
func MustLoadRisk() *risk.Config {
	root := MustProjectRoot()
	path := filepath.Join(root, "etc", "risk.yaml")
	cfg, err := risk.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load risk config %s: %w", path, err))
	}
	return cfg
}
