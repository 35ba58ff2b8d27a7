package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"hivemind-decide/internal/config"
	"hivemind-decide/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Data path: %s", cfg.DataPath),
		fmt.Sprintf("Postgres: %s", presence(cfg.Postgres.DataSource != "")),
		fmt.Sprintf("Cache: %s", presence(len(cfg.Cache) > 0 && strings.TrimSpace(cfg.Cache[0].Host) != "")),
		fmt.Sprintf("TTL (short/medium/long): %ds / %ds / %ds", cfg.TTL.Short, cfg.TTL.Medium, cfg.TTL.Long),
		sectionLine("Consensus config", cfg.Consensus),
		sectionLine("ATR config", cfg.ATR),
		sectionLine("Correlation config", cfg.Correlation),
		sectionLine("Kelly config", cfg.Kelly),
		sectionLine("Risk config", cfg.Risk),
		sectionLine("Stops config", cfg.Stops),
		sectionLine("Execution config", cfg.Execution),
		sectionLine("Exchange config", cfg.Exchange),
		sectionLine("Regime config", cfg.Regime),
	}

	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
