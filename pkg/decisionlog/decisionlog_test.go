package decisionlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivemind-decide/pkg/consensus"
)

func TestFromOutcomeNoSignalRecordsGatesAndReasoning(t *testing.T) {
	outcome := &consensus.CheckOutcome{
		Symbol: "BTC",
		Gates: []consensus.GateResult{
			{Name: "min_traders", Passed: false, Value: 2, Threshold: 3},
		},
		Reasoning: "gate min_traders failed",
	}

	record := FromOutcome(outcome, nil)
	assert.Equal(t, DecisionTypeNoSignal, record.DecisionType)
	assert.Equal(t, "BTC", record.Symbol)
	assert.Len(t, record.Gates, 1)
	assert.Empty(t, record.Direction)
}

func TestFromOutcomeSignalPopulatesMetrics(t *testing.T) {
	outcome := &consensus.CheckOutcome{
		Symbol: "ETH",
		Signal: &consensus.Signal{
			Symbol: "ETH", Direction: "long", EntryPrice: 3000,
			NTraders: 4, NAgreeing: 3, EffK: 2.5, PWin: 0.62, EVNetR: 0.3,
		},
		Reasoning: "all gates passed",
	}

	record := FromOutcome(outcome, []RiskCheckEntry{{Name: "kill_switch", Allowed: true, Reason: "ok"}})
	assert.Equal(t, DecisionTypeSignal, record.DecisionType)
	assert.Equal(t, "long", record.Direction)
	assert.Equal(t, 4, record.TraderCount)
	assert.InDelta(t, 0.75, record.AgreementPct, 1e-9)
	assert.InDelta(t, 2.5, record.EffectiveK, 1e-9)
	assert.InDelta(t, 0.62, record.AvgConfidence, 1e-9)
	assert.InDelta(t, 0.3, record.EVEstimate, 1e-9)
	assert.InDelta(t, 3000, record.PriceAtDecision, 1e-9)
	assert.Len(t, record.RiskChecks, 1)
}

func TestGatesJSONMarshalsEmptySliceNotNull(t *testing.T) {
	record := Record{}
	data, err := record.GatesJSON()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestRiskChecksJSONMarshalsEntries(t *testing.T) {
	record := Record{RiskChecks: []RiskCheckEntry{{Name: "equity_floor", Allowed: true, Reason: "ok"}}}
	data, err := record.RiskChecksJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), "equity_floor")
}

type fakeStore struct {
	inserted  []Record
	nextID    int64
	closed    map[int64]bool
	insertErr error
}

func (f *fakeStore) Insert(ctx context.Context, record Record) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.nextID++
	f.inserted = append(f.inserted, record)
	return f.nextID, nil
}

func (f *fakeStore) RecordOutcome(ctx context.Context, id int64, pnl, rMultiple float64, closedAt time.Time) error {
	if f.closed == nil {
		f.closed = map[int64]bool{}
	}
	f.closed[id] = true
	return nil
}

func TestLoggerLogAndCloseOutcomeRoundTrip(t *testing.T) {
	store := &fakeStore{}
	logger := NewLogger(store)

	id, err := logger.Log(context.Background(), Record{Symbol: "BTC"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	require.NoError(t, logger.CloseOutcome(context.Background(), id, 120.0, 1.5, time.Now()))
	assert.True(t, store.closed[id])
}

func TestLoggerWithNilStoreIsNoOp(t *testing.T) {
	logger := NewLogger(nil)
	id, err := logger.Log(context.Background(), Record{Symbol: "BTC"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
	require.NoError(t, logger.CloseOutcome(context.Background(), id, 1, 1, time.Now()))
}
