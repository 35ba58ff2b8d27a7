package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"hivemind-decide/pkg/sizing"
)

// TraderPerformanceRepo reads recorded per-trader win/loss statistics from
// the trader_performance table. It satisfies sizing.TraderPerformanceSource.
type TraderPerformanceRepo struct {
	conn sqlx.SqlConn
}

// NewTraderPerformanceRepo returns a TraderPerformanceRepo backed by conn.
func NewTraderPerformanceRepo(conn sqlx.SqlConn) *TraderPerformanceRepo {
	return &TraderPerformanceRepo{conn: conn}
}

var _ sizing.TraderPerformanceSource = (*TraderPerformanceRepo)(nil)

const traderPerformanceQuery = `
SELECT address, episode_count, win_rate, avg_win_r, avg_loss_r
FROM public.trader_performance
WHERE address = $1`

type traderPerformanceRow struct {
	Address      string  `db:"address"`
	EpisodeCount int     `db:"episode_count"`
	WinRate      float64 `db:"win_rate"`
	AvgWinR      float64 `db:"avg_win_r"`
	AvgLossR     float64 `db:"avg_loss_r"`
}

// TraderPerformance returns the recorded statistics for address, or
// ok=false if none are on file yet.
func (r *TraderPerformanceRepo) TraderPerformance(ctx context.Context, address string) (sizing.TraderPerformance, bool, error) {
	var row traderPerformanceRow
	err := r.conn.QueryRowCtx(ctx, &row, traderPerformanceQuery, address)
	if errors.Is(err, sqlx.ErrNotFound) {
		return sizing.TraderPerformance{}, false, nil
	}
	if err != nil {
		return sizing.TraderPerformance{}, false, fmt.Errorf("traderPerformanceRepo.TraderPerformance %s: %w", address, err)
	}
	return sizing.TraderPerformance{
		Address:      row.Address,
		EpisodeCount: row.EpisodeCount,
		WinRate:      row.WinRate,
		AvgWinR:      row.AvgWinR,
		AvgLossR:     row.AvgLossR,
	}, true, nil
}
