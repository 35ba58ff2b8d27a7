package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivemind-decide/pkg/decisionlog"
)

func TestWriteDecisionCreatesFileWithRecordContents(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(filepath.Join(dir, "decisions"))

	record := decisionlog.Record{
		Symbol:       "BTC",
		Direction:    "long",
		DecisionType: decisionlog.DecisionTypeSignal,
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	path, err := w.WriteDecision(record)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got decisionlog.Record
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "BTC", got.Symbol)
	assert.Equal(t, "long", got.Direction)
}

func TestWriteDecisionDefaultsZeroTimestampToNow(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	w.nowFn = func() time.Time { return time.Date(2026, 5, 6, 0, 0, 0, 0, time.UTC) }

	path, err := w.WriteDecision(decisionlog.Record{Symbol: "ETH", DecisionType: decisionlog.DecisionTypeNoSignal})
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(path), "20260506")
}

func TestWriteDecisionIncrementsSequenceAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	p1, err := w.WriteDecision(decisionlog.Record{Symbol: "BTC", DecisionType: decisionlog.DecisionTypeSignal})
	require.NoError(t, err)
	p2, err := w.WriteDecision(decisionlog.Record{Symbol: "BTC", DecisionType: decisionlog.DecisionTypeSignal})
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestNewWriterDefaultsEmptyDir(t *testing.T) {
	w := NewWriter("")
	assert.Equal(t, "journal", w.dir)
	_ = os.RemoveAll("journal")
}
