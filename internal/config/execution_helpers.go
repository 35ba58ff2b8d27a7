package config

import (
	"fmt"
	"path/filepath"

	"hivemind-decide/pkg/executor"
)

// MustLoadExecution loads etc/execution.yaml from the project root and
// panics on error.
func MustLoadExecution() *executor.Config {
	root := MustProjectRoot()
	path := filepath.Join(root, "etc", "execution.yaml")
	cfg, err := executor.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load execution config %s: %w", path, err))
	}
	return cfg
}
