package config

import (
	"fmt"
	"path/filepath"

	"hivemind-decide/pkg/venue"
)

// MustLoadExchange loads etc/exchange.yaml from the project root and panics
// on error. It isolates exchange config to avoid requiring other sections
// (Consensus, Execution, etc.) when tests only need the venue providers.
func MustLoadExchange() *venue.Config {
	root := MustProjectRoot()
	path := filepath.Join(root, "etc", "exchange.yaml")
	cfg, err := venue.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load exchange config %s: %w", path, err))
	}
	return cfg
}

// MustBuildExchangeProviders loads exchange config from the default path
// and builds adapter instances; returns the map and default adapter name.
func MustBuildExchangeProviders() (map[string]venue.Adapter, string) {
	cfg := MustLoadExchange()
	providers, err := cfg.BuildProviders()
	if err != nil {
		panic(err)
	}
	return providers, cfg.Default
}
