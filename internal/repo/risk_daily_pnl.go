package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"hivemind-decide/pkg/risk"
)

// RiskDailyPnLRepo computes the day's PnL from equity snapshots rather than
// realized fills, so the kill switch reacts to unrealized drawdown too. It
// satisfies risk.DailyPnLStore.
type RiskDailyPnLRepo struct {
	conn sqlx.SqlConn
}

// NewRiskDailyPnLRepo returns a RiskDailyPnLRepo backed by conn.
func NewRiskDailyPnLRepo(conn sqlx.SqlConn) *RiskDailyPnLRepo {
	return &RiskDailyPnLRepo{conn: conn}
}

var _ risk.DailyPnLStore = (*RiskDailyPnLRepo)(nil)

const startingEquityQuery = `
SELECT equity
FROM public.account_equity_snapshots
WHERE ts < $1
ORDER BY ts DESC
LIMIT 1`

// DailyPnL returns currentEquity minus the last known equity snapshot
// before the start of date's UTC day. If no prior snapshot exists (the
// account's first day), it returns 0 rather than treating currentEquity
// itself as a loss.
func (r *RiskDailyPnLRepo) DailyPnL(ctx context.Context, date time.Time, currentEquity float64) (float64, error) {
	dayStart := date.UTC().Truncate(24 * time.Hour)

	var startingEquity float64
	err := r.conn.QueryRowCtx(ctx, &startingEquity, startingEquityQuery, dayStart)
	if errors.Is(err, sqlx.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("riskDailyPnLRepo.DailyPnL: %w", err)
	}
	return currentEquity - startingEquity, nil
}
