package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"hivemind-decide/pkg/cost"
)

// Marks1mRepo reads 1-minute OHLC mark candles from the marks_1m table. It
// satisfies cost.CandleSource and cost.PriceHistorySource.
type Marks1mRepo struct {
	conn sqlx.SqlConn
}

// NewMarks1mRepo returns a Marks1mRepo backed by conn.
func NewMarks1mRepo(conn sqlx.SqlConn) *Marks1mRepo {
	return &Marks1mRepo{conn: conn}
}

var (
	_ cost.CandleSource       = (*Marks1mRepo)(nil)
	_ cost.PriceHistorySource = (*Marks1mRepo)(nil)
)

const recentCandlesQuery = `
SELECT ts, open, high, low, close
FROM public.marks_1m
WHERE venue = $1 AND asset = $2
ORDER BY ts DESC
LIMIT $3`

type markCandleRow struct {
	Ts    time.Time `db:"ts"`
	Open  float64   `db:"open"`
	High  float64   `db:"high"`
	Low   float64   `db:"low"`
	Close float64   `db:"close"`
}

// Candles returns the most recent count 1-minute candles for asset on
// venue, newest first, matching CandleSource's contract.
func (r *Marks1mRepo) Candles(ctx context.Context, venue, asset string, count int) ([]cost.Candle, error) {
	var rows []markCandleRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, recentCandlesQuery, venue, asset, count); err != nil {
		return nil, fmt.Errorf("marks1mRepo.Candles %s/%s: %w", venue, asset, err)
	}
	candles := make([]cost.Candle, len(rows))
	for i, row := range rows {
		candles[i] = cost.Candle{
			Timestamp: row.Ts,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
		}
	}
	return candles, nil
}

const recentPricesQuery = `
SELECT close
FROM public.marks_1m
WHERE venue = $1 AND asset = $2 AND ts >= now() - ($3 || ' hours')::interval
ORDER BY ts ASC`

// RecentPrices returns the asset's close prices over the trailing window,
// oldest first, matching PriceHistorySource's contract.
func (r *Marks1mRepo) RecentPrices(ctx context.Context, venue, asset string, hours int) ([]float64, error) {
	var closes []float64
	if err := r.conn.QueryRowsCtx(ctx, &closes, recentPricesQuery, venue, asset, hours); err != nil {
		return nil, fmt.Errorf("marks1mRepo.RecentPrices %s/%s: %w", venue, asset, err)
	}
	return closes, nil
}
