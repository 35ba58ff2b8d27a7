package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"hivemind-decide/pkg/correlation"
)

// TraderCorrRepo loads pairwise trader return correlations from the
// trader_corr table. It satisfies correlation.Loader.
type TraderCorrRepo struct {
	conn sqlx.SqlConn
}

// NewTraderCorrRepo returns a TraderCorrRepo backed by conn.
func NewTraderCorrRepo(conn sqlx.SqlConn) *TraderCorrRepo {
	return &TraderCorrRepo{conn: conn}
}

var _ correlation.Loader = (*TraderCorrRepo)(nil)

const traderCorrQuery = `
SELECT addr_a, addr_b, rho
FROM public.trader_corr
WHERE as_of <= $1
ORDER BY as_of DESC`

type traderCorrRow struct {
	AddrA string  `db:"addr_a"`
	AddrB string  `db:"addr_b"`
	Rho   float64 `db:"rho"`
}

// LoadCorrelations returns the newest known rho per address pair as of the
// given time. Pairs are deduplicated by keeping the first (newest) row
// seen for each canonical key, since the query orders by as_of descending.
func (r *TraderCorrRepo) LoadCorrelations(ctx context.Context, asOf time.Time) (map[correlation.PairKey]float64, error) {
	var rows []traderCorrRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, traderCorrQuery, asOf); err != nil {
		return nil, fmt.Errorf("traderCorrRepo.LoadCorrelations: %w", err)
	}

	result := make(map[correlation.PairKey]float64, len(rows))
	for _, row := range rows {
		key := correlation.NewPairKey(row.AddrA, row.AddrB)
		if _, seen := result[key]; seen {
			continue
		}
		result[key] = row.Rho
	}
	return result, nil
}
