package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"hivemind-decide/pkg/stopmanager"
)

// ActiveStopsRepo persists stopmanager.StopConfig rows to the active_stops
// table. It satisfies stopmanager.Store.
type ActiveStopsRepo struct {
	conn sqlx.SqlConn
}

// NewActiveStopsRepo returns an ActiveStopsRepo backed by conn.
func NewActiveStopsRepo(conn sqlx.SqlConn) *ActiveStopsRepo {
	return &ActiveStopsRepo{conn: conn}
}

var _ stopmanager.Store = (*ActiveStopsRepo)(nil)

type activeStopRow struct {
	DecisionID       string         `db:"decision_id"`
	Symbol           string         `db:"symbol"`
	Direction        string         `db:"direction"`
	EntryPrice       float64        `db:"entry_price"`
	EntrySize        float64        `db:"entry_size"`
	StopPrice        float64        `db:"stop_price"`
	TakeProfitPrice  sql.NullFloat64 `db:"take_profit_price"`
	TrailingEnabled  bool           `db:"trailing_enabled"`
	TrailDistancePct float64        `db:"trail_distance_pct"`
	TimeoutAt        sql.NullTime   `db:"timeout_at"`
	CreatedAt        time.Time      `db:"created_at"`
	Exchange         string         `db:"exchange"`
	NativeStopPlaced bool           `db:"native_stop_placed"`
	Status           string         `db:"status"`
}

func (row activeStopRow) toStopConfig() stopmanager.StopConfig {
	cfg := stopmanager.StopConfig{
		DecisionID:       row.DecisionID,
		Symbol:           row.Symbol,
		Direction:        row.Direction,
		EntryPrice:       row.EntryPrice,
		EntrySize:        row.EntrySize,
		StopPrice:        row.StopPrice,
		TrailingEnabled:  row.TrailingEnabled,
		TrailDistancePct: row.TrailDistancePct,
		CreatedAt:        row.CreatedAt,
		Exchange:         row.Exchange,
		NativeStopPlaced: row.NativeStopPlaced,
		Status:           row.Status,
	}
	if row.TakeProfitPrice.Valid {
		price := row.TakeProfitPrice.Float64
		cfg.TakeProfitPrice = &price
	}
	if row.TimeoutAt.Valid {
		at := row.TimeoutAt.Time
		cfg.TimeoutAt = &at
	}
	return cfg
}

const saveStopQuery = `
INSERT INTO public.active_stops (
    decision_id, symbol, direction, entry_price, entry_size, stop_price,
    take_profit_price, trailing_enabled, trail_distance_pct, timeout_at,
    created_at, exchange, native_stop_placed, status
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (decision_id, symbol) DO UPDATE SET
    stop_price = EXCLUDED.stop_price,
    take_profit_price = EXCLUDED.take_profit_price,
    trailing_enabled = EXCLUDED.trailing_enabled,
    native_stop_placed = EXCLUDED.native_stop_placed,
    status = EXCLUDED.status`

// SaveStop upserts one active stop row, keyed by (decision_id, symbol).
func (r *ActiveStopsRepo) SaveStop(ctx context.Context, cfg stopmanager.StopConfig) error {
	createdAt := cfg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.conn.ExecCtx(ctx, saveStopQuery,
		cfg.DecisionID, cfg.Symbol, cfg.Direction, cfg.EntryPrice, cfg.EntrySize, cfg.StopPrice,
		nullableFloat(cfg.TakeProfitPrice), cfg.TrailingEnabled, cfg.TrailDistancePct, nullableTime(cfg.TimeoutAt),
		createdAt, cfg.Exchange, cfg.NativeStopPlaced, cfg.Status,
	)
	if err != nil {
		return fmt.Errorf("activeStopsRepo.SaveStop %s/%s: %w", cfg.DecisionID, cfg.Symbol, err)
	}
	return nil
}

const activeStopsQuery = `
SELECT decision_id, symbol, direction, entry_price, entry_size, stop_price,
       take_profit_price, trailing_enabled, trail_distance_pct, timeout_at,
       created_at, exchange, native_stop_placed, status
FROM public.active_stops
WHERE status = 'active'
ORDER BY created_at`

// ActiveStops returns every stop currently in the "active" status.
func (r *ActiveStopsRepo) ActiveStops(ctx context.Context) ([]stopmanager.StopConfig, error) {
	var rows []activeStopRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, activeStopsQuery); err != nil {
		return nil, fmt.Errorf("activeStopsRepo.ActiveStops: %w", err)
	}
	cfgs := make([]stopmanager.StopConfig, len(rows))
	for i := range rows {
		cfgs[i] = rows[i].toStopConfig()
	}
	return cfgs, nil
}

const updateTrailingStopQuery = `
UPDATE public.active_stops
SET stop_price = $3
WHERE decision_id = $1 AND symbol = $2 AND status = 'active'`

// UpdateTrailingStop moves a trailing stop's price.
func (r *ActiveStopsRepo) UpdateTrailingStop(ctx context.Context, decisionID, symbol string, newStop float64) error {
	_, err := r.conn.ExecCtx(ctx, updateTrailingStopQuery, decisionID, symbol, newStop)
	if err != nil {
		return fmt.Errorf("activeStopsRepo.UpdateTrailingStop %s/%s: %w", decisionID, symbol, err)
	}
	return nil
}

const markTriggeredQuery = `
UPDATE public.active_stops
SET status = 'triggered', stop_price = $4, trigger_reason = $3, triggered_at = now()
WHERE decision_id = $1 AND symbol = $2 AND status = 'active'`

// MarkTriggered flags a stop as triggered, recording the reason and fill
// price.
func (r *ActiveStopsRepo) MarkTriggered(ctx context.Context, decisionID, symbol, reason string, price float64) error {
	_, err := r.conn.ExecCtx(ctx, markTriggeredQuery, decisionID, symbol, reason, price)
	if err != nil {
		return fmt.Errorf("activeStopsRepo.MarkTriggered %s/%s: %w", decisionID, symbol, err)
	}
	return nil
}

const cancelStopQuery = `
UPDATE public.active_stops
SET status = 'cancelled'
WHERE decision_id = $1 AND symbol = $2 AND status = 'active'`

// CancelStop marks an active stop cancelled, reporting whether a row
// matched.
func (r *ActiveStopsRepo) CancelStop(ctx context.Context, decisionID, symbol string) (bool, error) {
	result, err := r.conn.ExecCtx(ctx, cancelStopQuery, decisionID, symbol)
	if err != nil {
		return false, fmt.Errorf("activeStopsRepo.CancelStop %s/%s: %w", decisionID, symbol, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("activeStopsRepo.CancelStop %s/%s: %w", decisionID, symbol, err)
	}
	return affected > 0, nil
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
