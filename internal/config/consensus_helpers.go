package config

import (
	"fmt"
	"path/filepath"

	"hivemind-decide/pkg/consensus"
)

// MustLoadConsensus loads etc/consensus.yaml from the project root and
// panics on error.
func MustLoadConsensus() *consensus.Config {
	root := MustProjectRoot()
	path := filepath.Join(root, "etc", "consensus.yaml")
	cfg, err := consensus.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load consensus config %s: %w", path, err))
	}
	return cfg
}
