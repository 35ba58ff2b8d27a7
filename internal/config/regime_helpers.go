package config

import (
	"fmt"
	"path/filepath"

	"hivemind-decide/pkg/regime"
)

// MustLoadRegime loads etc/regime.yaml from the project root and panics on
// error.
func MustLoadRegime() *regime.Config {
	root := MustProjectRoot()
	path := filepath.Join(root, "etc", "regime.yaml")
	cfg, err := regime.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load regime config %s: %w", path, err))
	}
	return cfg
}
