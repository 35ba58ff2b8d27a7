package repo

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"hivemind-decide/pkg/risk"
)

// RiskGovernorStateRepo persists the governor's key/value state (kill
// switch, pause timers) to the risk_governor_state table. It satisfies
// risk.StateStore.
type RiskGovernorStateRepo struct {
	conn sqlx.SqlConn
}

// NewRiskGovernorStateRepo returns a RiskGovernorStateRepo backed by conn.
func NewRiskGovernorStateRepo(conn sqlx.SqlConn) *RiskGovernorStateRepo {
	return &RiskGovernorStateRepo{conn: conn}
}

var _ risk.StateStore = (*RiskGovernorStateRepo)(nil)

const saveGovernorStateQuery = `
INSERT INTO public.risk_governor_state (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

// SaveState upserts one key/value pair.
func (r *RiskGovernorStateRepo) SaveState(ctx context.Context, key, value string) error {
	_, err := r.conn.ExecCtx(ctx, saveGovernorStateQuery, key, value)
	if err != nil {
		return fmt.Errorf("riskGovernorStateRepo.SaveState %s: %w", key, err)
	}
	return nil
}

const loadGovernorStateQuery = `SELECT key, value FROM public.risk_governor_state`

type governorStateRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// LoadState returns every persisted key/value pair.
func (r *RiskGovernorStateRepo) LoadState(ctx context.Context) (map[string]string, error) {
	var rows []governorStateRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, loadGovernorStateQuery); err != nil {
		return nil, fmt.Errorf("riskGovernorStateRepo.LoadState: %w", err)
	}
	result := make(map[string]string, len(rows))
	for _, row := range rows {
		result[row.Key] = row.Value
	}
	return result, nil
}
