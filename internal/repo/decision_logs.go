package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"hivemind-decide/pkg/decisionlog"
)

// DecisionLogRepo persists decisionlog.Record rows to the decision_logs
// table. It satisfies decisionlog.Store.
type DecisionLogRepo struct {
	conn sqlx.SqlConn
}

// NewDecisionLogRepo returns a DecisionLogRepo backed by conn.
func NewDecisionLogRepo(conn sqlx.SqlConn) *DecisionLogRepo {
	return &DecisionLogRepo{conn: conn}
}

var _ decisionlog.Store = (*DecisionLogRepo)(nil)

const insertDecisionLogQuery = `
INSERT INTO public.decision_logs (
    created_at, symbol, direction, decision_type, trader_count,
    agreement_pct, effective_k, avg_confidence, ev_estimate,
    price_at_decision, gates, risk_checks, reasoning
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING id`

// Insert writes one decision_logs row and returns its generated id.
func (r *DecisionLogRepo) Insert(ctx context.Context, record decisionlog.Record) (int64, error) {
	gatesJSON, err := record.GatesJSON()
	if err != nil {
		return 0, fmt.Errorf("decisionLogRepo.Insert: marshal gates: %w", err)
	}
	riskChecksJSON, err := record.RiskChecksJSON()
	if err != nil {
		return 0, fmt.Errorf("decisionLogRepo.Insert: marshal risk checks: %w", err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var id int64
	err = r.conn.QueryRowCtx(ctx, &id, insertDecisionLogQuery,
		createdAt, record.Symbol, record.Direction, record.DecisionType, record.TraderCount,
		record.AgreementPct, record.EffectiveK, record.AvgConfidence, record.EVEstimate,
		record.PriceAtDecision, gatesJSON, riskChecksJSON, record.Reasoning,
	)
	if err != nil {
		return 0, fmt.Errorf("decisionLogRepo.Insert: %w", err)
	}
	return id, nil
}

const recordOutcomeQuery = `
UPDATE public.decision_logs
SET outcome_pnl = $2, outcome_r_multiple = $3, outcome_closed_at = $4
WHERE id = $1`

// RecordOutcome fills in the realized PnL/R once the position tied to id
// closes.
func (r *DecisionLogRepo) RecordOutcome(ctx context.Context, id int64, pnl, rMultiple float64, closedAt time.Time) error {
	_, err := r.conn.ExecCtx(ctx, recordOutcomeQuery, id, pnl, rMultiple, closedAt)
	if err != nil {
		return fmt.Errorf("decisionLogRepo.RecordOutcome id=%d: %w", id, err)
	}
	return nil
}
