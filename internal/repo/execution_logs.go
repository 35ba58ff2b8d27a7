package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"hivemind-decide/pkg/executor"
)

// ExecutionLogRepo persists executor.ExecutionLogRecord rows to the
// execution_logs table. It satisfies executor.ExecutionLogStore.
type ExecutionLogRepo struct {
	conn sqlx.SqlConn
}

// NewExecutionLogRepo returns an ExecutionLogRepo backed by conn.
func NewExecutionLogRepo(conn sqlx.SqlConn) *ExecutionLogRepo {
	return &ExecutionLogRepo{conn: conn}
}

var _ executor.ExecutionLogStore = (*ExecutionLogRepo)(nil)

const insertExecutionLogQuery = `
INSERT INTO public.execution_logs (
    decision_id, exchange, symbol, side, size, status, fill_price, fill_size,
    error_message, position_pct, exposure_before, exposure_after, kelly, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

// InsertExecution writes one execution_logs row.
func (r *ExecutionLogRepo) InsertExecution(ctx context.Context, record executor.ExecutionLogRecord) error {
	var kellyJSON []byte
	if record.Kelly != nil {
		encoded, err := json.Marshal(record.Kelly)
		if err != nil {
			return fmt.Errorf("executionLogRepo.InsertExecution: marshal kelly: %w", err)
		}
		kellyJSON = encoded
	}

	createdAt := record.CreatedAt
	_, err := r.conn.ExecCtx(ctx, insertExecutionLogQuery,
		record.DecisionID, record.Exchange, record.Symbol, record.Side, record.Size, record.Status,
		record.FillPrice, record.FillSize, record.ErrorMessage, record.PositionPct,
		record.ExposureBefore, record.ExposureAfter, kellyJSON, createdAt,
	)
	if err != nil {
		return fmt.Errorf("executionLogRepo.InsertExecution %s/%s: %w", record.DecisionID, record.Symbol, err)
	}
	return nil
}
