// Package backtest replays a historical fill sequence through a
// consensus.Detector one event at a time, so the selection logic (gates,
// EV math, venue choice) can be validated without look-ahead: the feeder
// only ever hands the engine the next fill in timestamp order, never the
// whole series at once.
package backtest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"hivemind-decide/pkg/consensus"
)

// Feeder yields fills one at a time, in non-decreasing timestamp order.
type Feeder interface {
	Next(ctx context.Context) (consensus.Fill, bool, error)
}

// SliceFeeder replays an in-memory, pre-sorted slice of fills. It is the
// building block every other feeder in this package reduces to.
type SliceFeeder struct {
	fills []consensus.Fill
	idx   int
	lastT time.Time
}

// NewSliceFeeder wraps fills for sequential replay. It errors immediately if
// fills are not already sorted by Ts — a backtest harness that tolerated
// out-of-order input would no longer be "without look-ahead".
func NewSliceFeeder(fills []consensus.Fill) (*SliceFeeder, error) {
	for i := 1; i < len(fills); i++ {
		if fills[i].Ts.Before(fills[i-1].Ts) {
			return nil, fmt.Errorf("backtest: fill %d (%s) precedes fill %d (%s), feed must be time-ordered",
				i, fills[i].Ts, i-1, fills[i-1].Ts)
		}
	}
	return &SliceFeeder{fills: fills}, nil
}

// Next returns the next fill, or ok=false once the series is exhausted.
func (f *SliceFeeder) Next(ctx context.Context) (consensus.Fill, bool, error) {
	if err := ctx.Err(); err != nil {
		return consensus.Fill{}, false, err
	}
	if f.idx >= len(f.fills) {
		return consensus.Fill{}, false, nil
	}
	fill := f.fills[f.idx]
	f.idx++
	f.lastT = fill.Ts
	return fill, true, nil
}

// NewCSVFillFeederFromFile builds a SliceFeeder from a CSV file with header
// fill_id,address,asset,side,size,price,ts (ts as unix seconds), mirroring
// the wire shape internal/fillfeed decodes off the live fill stream.
func NewCSVFillFeederFromFile(path string) (*SliceFeeder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backtest: open %s: %w", path, err)
	}
	defer f.Close()
	return NewCSVFillFeeder(f)
}

// NewCSVFillFeeder builds a SliceFeeder from an io.Reader with the same CSV
// shape as NewCSVFillFeederFromFile.
func NewCSVFillFeeder(r io.Reader) (*SliceFeeder, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("backtest: read csv: %w", err)
	}

	var fills []consensus.Fill
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == "fill_id" {
			continue // header row
		}
		if len(rec) < 7 {
			return nil, fmt.Errorf("backtest: csv row %d has %d columns, want 7", i, len(rec))
		}
		size, err := strconv.ParseFloat(rec[4], 64)
		if err != nil {
			return nil, fmt.Errorf("backtest: csv row %d: invalid size %q: %w", i, rec[4], err)
		}
		price, err := strconv.ParseFloat(rec[5], 64)
		if err != nil {
			return nil, fmt.Errorf("backtest: csv row %d: invalid price %q: %w", i, rec[5], err)
		}
		tsSec, err := strconv.ParseFloat(rec[6], 64)
		if err != nil {
			return nil, fmt.Errorf("backtest: csv row %d: invalid ts %q: %w", i, rec[6], err)
		}
		fills = append(fills, consensus.Fill{
			FillID:  rec[0],
			Address: rec[1],
			Asset:   rec[2],
			Side:    rec[3],
			Size:    size,
			Price:   price,
			Ts:      time.Unix(int64(tsSec), 0).UTC(),
		})
	}
	return NewSliceFeeder(fills)
}
