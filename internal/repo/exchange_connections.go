package repo

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// ExchangeConnectionsRepo records venue connect/disconnect transitions to
// the exchange_connections table, one row per (exchange, testnet) pair.
type ExchangeConnectionsRepo struct {
	conn sqlx.SqlConn
}

// NewExchangeConnectionsRepo returns an ExchangeConnectionsRepo backed by
// conn.
func NewExchangeConnectionsRepo(conn sqlx.SqlConn) *ExchangeConnectionsRepo {
	return &ExchangeConnectionsRepo{conn: conn}
}

const recordConnectionQuery = `
INSERT INTO public.exchange_connections
    (exchange_type, testnet, is_connected, last_connected_at, last_error, updated_at)
VALUES ($1, $2, $3, CASE WHEN $3 THEN now() ELSE NULL END, $4, now())
ON CONFLICT (exchange_type, testnet) DO UPDATE SET
    is_connected = EXCLUDED.is_connected,
    last_connected_at = CASE WHEN EXCLUDED.is_connected THEN now() ELSE exchange_connections.last_connected_at END,
    last_error = EXCLUDED.last_error,
    updated_at = now()`

// RecordConnection upserts the connection state for one venue. lastErr is
// stored as-is (empty string clears any previous error).
func (r *ExchangeConnectionsRepo) RecordConnection(ctx context.Context, exchangeType string, testnet, isConnected bool, lastErr string) error {
	_, err := r.conn.ExecCtx(ctx, recordConnectionQuery, exchangeType, testnet, isConnected, lastErr)
	if err != nil {
		return fmt.Errorf("exchangeConnectionsRepo.RecordConnection %s: %w", exchangeType, err)
	}
	return nil
}
