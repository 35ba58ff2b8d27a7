package config

import (
	"fmt"
	"path/filepath"

	"hivemind-decide/pkg/stopmanager"
)

// MustLoadStops loads etc/stops.yaml from the project root and panics on
// error.
func MustLoadStops() *stopmanager.Config {
	root := MustProjectRoot()
	path := filepath.Join(root, "etc", "stops.yaml")
	cfg, err := stopmanager.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load stops config %s: %w", path, err))
	}
	return cfg
}
