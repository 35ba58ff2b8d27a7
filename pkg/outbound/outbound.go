// Package outbound encodes and publishes the two downstream-facing message
// types this core emits: a fired ConsensusSignal and a decision's terminal
// outcome. Both travel as msgpack over the same Redis pub/sub transport
// internal/fillfeed subscribes fills from — the human-readable side of the
// audit trail is pkg/journal's JSON dump of the decisionlog.Record, not this
// package's job.
package outbound

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"hivemind-decide/pkg/consensus"
)

// SignalEnvelope is the wire shape of a fired ConsensusSignal.
type SignalEnvelope struct {
	DecisionID string    `msgpack:"decision_id"`
	Symbol     string    `msgpack:"symbol"`
	Direction  string    `msgpack:"direction"`
	EntryPrice float64   `msgpack:"entry_price"`
	StopPrice  float64   `msgpack:"stop_price"`
	NTraders   int       `msgpack:"n_traders"`
	NAgreeing  int       `msgpack:"n_agreeing"`
	EffK       float64   `msgpack:"effective_k"`
	PWin       float64   `msgpack:"p_win"`
	EVNetR     float64   `msgpack:"ev_net_r"`
	Venue      string    `msgpack:"venue"`
	CreatedAt  time.Time `msgpack:"created_at"`
}

// OutcomeEnvelope is the wire shape of a decision's terminal result.
type OutcomeEnvelope struct {
	DecisionID string    `msgpack:"decision_id"`
	Symbol     string    `msgpack:"symbol"`
	PnL        float64   `msgpack:"pnl"`
	RMultiple  float64   `msgpack:"r_multiple"`
	Reason     string    `msgpack:"reason"`
	ClosedAt   time.Time `msgpack:"closed_at"`
}

// SignalFromOutcome builds a SignalEnvelope from a fired consensus signal.
// decisionID is the decision_logs row id assigned when the signal was
// logged; the signal itself carries no database identity.
func SignalFromOutcome(decisionID string, sig *consensus.Signal) SignalEnvelope {
	return SignalEnvelope{
		DecisionID: decisionID,
		Symbol:     sig.Symbol,
		Direction:  sig.Direction,
		EntryPrice: sig.EntryPrice,
		StopPrice:  sig.StopPrice,
		NTraders:   sig.NTraders,
		NAgreeing:  sig.NAgreeing,
		EffK:       sig.EffK,
		PWin:       sig.PWin,
		EVNetR:     sig.EVNetR,
		Venue:      sig.TargetVenue,
		CreatedAt:  sig.CreatedAt,
	}
}

// Encode msgpack-encodes v for the wire.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("outbound: msgpack encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Config names the Redis pub/sub endpoint signal/outcome messages publish
// to, symmetric with internal/fillfeed.Config on the subscribe side.
type Config struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password,omitempty"`
	DB             int    `yaml:"db"`
	SignalChannel  string `yaml:"signal_channel"`
	OutcomeChannel string `yaml:"outcome_channel"`
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:6379"
	}
	if c.SignalChannel == "" {
		c.SignalChannel = "signals"
	}
	if c.OutcomeChannel == "" {
		c.OutcomeChannel = "outcomes"
	}
	return c
}

// Publisher publishes encoded signal/outcome envelopes to Redis pub/sub
// channels. A nil *Publisher is valid and every Publish call becomes a
// no-op, so deployments that keep auditor and executor in one process can
// skip configuring it entirely.
type Publisher struct {
	client         *redis.Client
	signalChannel  string
	outcomeChannel string
}

// NewPublisher builds a Publisher. It does not connect until the first
// publish call.
func NewPublisher(cfg Config) *Publisher {
	cfg = cfg.withDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Publisher{client: client, signalChannel: cfg.SignalChannel, outcomeChannel: cfg.OutcomeChannel}
}

// PublishSignal encodes and publishes a fired signal.
func (p *Publisher) PublishSignal(ctx context.Context, env SignalEnvelope) error {
	if p == nil {
		return nil
	}
	data, err := Encode(env)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.signalChannel, data).Err()
}

// PublishOutcome encodes and publishes a decision's terminal outcome.
func (p *Publisher) PublishOutcome(ctx context.Context, env OutcomeEnvelope) error {
	if p == nil {
		return nil
	}
	data, err := Encode(env)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.outcomeChannel, data).Err()
}

// Close releases the underlying Redis client.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("outbound: close: %w", err)
	}
	return nil
}
