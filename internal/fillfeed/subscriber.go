// Package fillfeed subscribes to the upstream scout's fill stream and
// decodes it into consensus.Fill values. The wire format is the JSON
// envelope named in the external-interfaces contract: fill_id, address,
// asset, side, size, price, ts.
package fillfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeromicro/go-zero/core/logx"

	"hivemind-decide/pkg/consensus"
)

// Config names the Redis pub/sub endpoint the scout publishes fills to.
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:6379"
	}
	if c.Channel == "" {
		c.Channel = "fills"
	}
	return c
}

// message is the wire shape of one fill event.
type message struct {
	FillID  string  `json:"fill_id"`
	Address string  `json:"address"`
	Asset   string  `json:"asset"`
	Side    string  `json:"side"`
	Size    float64 `json:"size"`
	Price   float64 `json:"price"`
	Ts      float64 `json:"ts"` // unix seconds, may carry a fractional part
}

func (m message) toFill() consensus.Fill {
	sec := int64(m.Ts)
	nsec := int64((m.Ts - float64(sec)) * float64(time.Second))
	return consensus.Fill{
		FillID:  m.FillID,
		Address: m.Address,
		Asset:   m.Asset,
		Side:    m.Side,
		Size:    m.Size,
		Price:   m.Price,
		Ts:      time.Unix(sec, nsec).UTC(),
	}
}

// Subscriber relays decoded fills off one Redis channel.
type Subscriber struct {
	client  *redis.Client
	channel string
}

// NewSubscriber builds a Subscriber. It does not connect until Run is called.
func NewSubscriber(cfg Config) *Subscriber {
	cfg = cfg.withDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Subscriber{client: client, channel: cfg.Channel}
}

// Run subscribes to the configured channel and invokes handle for every fill
// that decodes cleanly; a message that fails to decode is logged and
// skipped rather than aborting the subscription. Run blocks until ctx is
// cancelled or the underlying connection is closed.
func (s *Subscriber) Run(ctx context.Context, handle func(consensus.Fill)) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				logx.WithContext(ctx).Errorf("fillfeed: malformed message on %s: %v", s.channel, err)
				continue
			}
			handle(m.toFill())
		}
	}
}

// Close releases the underlying Redis client.
func (s *Subscriber) Close() error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("fillfeed: close: %w", err)
	}
	return nil
}
