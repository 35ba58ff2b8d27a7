package config_test

import (
	"crypto/ecdsa"
	"encoding/hex"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	appconfig "hivemind-decide/internal/config"
	"hivemind-decide/internal/svc"
)

// genTestPrivKey returns a valid hex-encoded secp256k1 private key for tests.
func genTestPrivKey(t *testing.T) string {
	t.Helper()
	// Use a deterministic small scalar to avoid randomness in hermetic tests.
	// Not used for real signing on network calls in this test.
	one := big.NewInt(1)
	key := new(ecdsa.PrivateKey)
	key.PublicKey.Curve = crypto.S256()
	key.D = one
	key.PublicKey.X, key.PublicKey.Y = crypto.S256().ScalarBaseMult(one.Bytes())
	h := hex.EncodeToString(key.D.Bytes())
	// Left pad to 64 hex chars (32 bytes)
	if len(h) < 64 {
		h = strings.Repeat("0", 64-len(h)) + h
	}
	return h
}

func TestMustLoadAndBuildServiceContext(t *testing.T) {
	// Compose a minimal main config in a temp dir that references the real
	// etc/* module files via absolute paths.
	etcDir := filepath.Clean(filepath.Join("..", "..", "etc"))
	etcAbs, err := filepath.Abs(etcDir)
	if err != nil {
		t.Fatalf("Abs(%s) error: %v", etcDir, err)
	}
	sections := map[string]string{
		"Consensus":   "consensus.yaml",
		"ATR":         "atr.yaml",
		"Correlation": "correlation.yaml",
		"Kelly":       "kelly.yaml",
		"Risk":        "risk.yaml",
		"Stops":       "stops.yaml",
		"Execution":   "execution.yaml",
		"Exchange":    "exchange.yaml",
		"Regime":      "regime.yaml",
	}

	t.Setenv("HYPERLIQUID_PRIVATE_KEY", genTestPrivKey(t))
	t.Setenv("HYPERLIQUID_VAULT_ADDRESS", "")
	t.Setenv("HYPERLIQUID_MAIN_ADDRESS", "")

	mainYAML := "" +
		"Name: test\n" +
		"Host: 127.0.0.1\n" +
		"Port: 0\n" +
		"Env: test\n" +
		"DataPath: ../mcp/data\n" +
		"TTL:\n  Short: 10\n  Medium: 60\n  Long: 300\n\n"
	for name, file := range sections {
		mainYAML += name + ":\n  File: " + filepath.Join(etcAbs, file) + "\n\n"
	}

	dir := t.TempDir()
	mainPath := filepath.Join(dir, "decide.yaml")
	if err := os.WriteFile(mainPath, []byte(mainYAML), 0o600); err != nil {
		t.Fatalf("write temp main config: %v", err)
	}

	cfg, err := appconfig.Load(mainPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	// No Postgres.DataSource was supplied: ServiceContext must build in
	// dry-run mode rather than fail, with every DB-backed dependency left
	// as a true nil interface instead of panicking on first use.
	sc, err := svc.NewServiceContext(*cfg)
	if err != nil {
		t.Fatalf("svc.NewServiceContext: %v", err)
	}
	if sc.DB != nil {
		t.Fatalf("expected nil DB in dry-run mode")
	}
	if sc.Exchange == nil {
		t.Fatalf("expected exchange manager to be built")
	}
	if sc.Consensus == nil || sc.Risk == nil || sc.Executor == nil || sc.DecisionLog == nil || sc.Stops == nil {
		t.Fatalf("expected every pipeline stage to be wired")
	}
	if sc.AlphaPool != nil || sc.ExchangeConnections != nil || sc.ExchangeBalances != nil {
		t.Fatalf("expected repo-backed accessors to stay nil without a DB")
	}
}
