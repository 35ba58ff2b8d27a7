package repo

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// ExchangeBalancesRepo records the latest balance snapshot per venue to the
// exchange_balances table, one row per exchange.
type ExchangeBalancesRepo struct {
	conn sqlx.SqlConn
}

// NewExchangeBalancesRepo returns an ExchangeBalancesRepo backed by conn.
func NewExchangeBalancesRepo(conn sqlx.SqlConn) *ExchangeBalancesRepo {
	return &ExchangeBalancesRepo{conn: conn}
}

const recordBalanceQuery = `
INSERT INTO public.exchange_balances
    (exchange_type, total_equity, available_balance, margin_used, unrealized_pnl, timestamp)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (exchange_type) DO UPDATE SET
    total_equity = EXCLUDED.total_equity,
    available_balance = EXCLUDED.available_balance,
    margin_used = EXCLUDED.margin_used,
    unrealized_pnl = EXCLUDED.unrealized_pnl,
    timestamp = EXCLUDED.timestamp`

// RecordBalance upserts the latest balance snapshot for one venue.
func (r *ExchangeBalancesRepo) RecordBalance(ctx context.Context, exchangeType string, totalEquity, availableBalance, marginUsed, unrealizedPnL float64) error {
	_, err := r.conn.ExecCtx(ctx, recordBalanceQuery, exchangeType, totalEquity, availableBalance, marginUsed, unrealizedPnL)
	if err != nil {
		return fmt.Errorf("exchangeBalancesRepo.RecordBalance %s: %w", exchangeType, err)
	}
	return nil
}
