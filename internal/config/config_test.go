package config

import (
	"os"
	"path/filepath"
	"testing"

	"hivemind-decide/pkg/consensus"
	"hivemind-decide/pkg/risk"
)

// Test_moduleConfig_loadsAndDefaults verifies that module configs unmarshal
// from YAML and apply their package defaults via each LoadConfig function.
func Test_moduleConfig_loadsAndDefaults(t *testing.T) {
	dir := t.TempDir()

	consensusYAML := []byte(`
min_traders: 5
symbols:
  - BTC
  - ETH
  - SOL
`)
	consensusPath := filepath.Join(dir, "consensus.yaml")
	if err := os.WriteFile(consensusPath, consensusYAML, 0o600); err != nil {
		t.Fatalf("write consensus.yaml: %v", err)
	}

	riskYAML := []byte(`
liquidation_distance_min: 1.5
daily_drawdown_kill_pct: 0.05
kill_switch_cooldown: 12h
`)
	riskPath := filepath.Join(dir, "risk.yaml")
	if err := os.WriteFile(riskPath, riskYAML, 0o600); err != nil {
		t.Fatalf("write risk.yaml: %v", err)
	}

	consensusCfg, err := consensus.LoadConfig(consensusPath)
	if err != nil {
		t.Fatalf("consensus.LoadConfig: %v", err)
	}
	if got := consensusCfg.MinTraders; got != 5 {
		t.Fatalf("Consensus.MinTraders got %d, want 5", got)
	}
	if got := len(consensusCfg.Symbols); got != 3 {
		t.Fatalf("Consensus.Symbols got %d entries, want 3", got)
	}

	riskCfg, err := risk.LoadConfig(riskPath)
	if err != nil {
		t.Fatalf("risk.LoadConfig: %v", err)
	}
	if riskCfg.KillSwitchCooldown.String() != "12h0m0s" {
		t.Fatalf("Risk.KillSwitchCooldown not parsed, got %s", riskCfg.KillSwitchCooldown)
	}
	// MinEquityFloor left unset in YAML; LoadConfig should fall back to the
	// package default rather than leaving it zero.
	if riskCfg.MinEquityFloor != 10000 {
		t.Fatalf("Risk.MinEquityFloor default not applied, got %v", riskCfg.MinEquityFloor)
	}
}

func TestValidate_TTLBounds(t *testing.T) {
	cfg := &Config{}
	cfg.DataPath = "./data"
	cfg.TTL.Short = 0
	cfg.TTL.Medium = 60
	cfg.TTL.Long = 300
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected ttl.short validation error")
	}
}
