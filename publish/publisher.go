package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/GSB-WEB/adcsim"
	"github.com/redis/go-redis/v9"
)

// Sample is the published form of one conversion.
type Sample struct {
	Channel            string    `json:"channel"`
	Unit               uint8     `json:"unit"`
	Signal             string    `json:"signal"`
	Value              float64   `json:"value"`
	EngineeringUnit    string    `json:"engineering_unit"`
	DigitalCode        uint64    `json:"digital_code"`
	MaxDigitalCode     uint64    `json:"max_digital_code"`
	ElectricalValue    float64   `json:"electrical_value"`
	LoopCurrent        float64   `json:"loop_current,omitempty"`
	Binary             string    `json:"binary"`
	Hex                string    `json:"hex"`
	Octal              string    `json:"octal"`
	PercentOfVariable  float64   `json:"percent_of_variable"`
	PercentOfReference float64   `json:"percent_of_reference"`
	Clamped            bool      `json:"clamped"`
	Timestamp          time.Time `json:"timestamp"`
}

func NewSample(ch *adcsim.Channel, st adcsim.ChannelState, r adcsim.Result, ts time.Time) Sample {
	return Sample{
		Channel:            ch.Name,
		Unit:               ch.UnitID,
		Signal:             st.Signal.String(),
		Value:              st.Value,
		EngineeringUnit:    ch.Range.Unit,
		DigitalCode:        r.DigitalCode,
		MaxDigitalCode:     r.MaxDigitalCode,
		ElectricalValue:    r.ElectricalValue,
		LoopCurrent:        r.LoopCurrent,
		Binary:             r.BinaryString,
		Hex:                r.Hex(),
		Octal:              r.Octal(),
		PercentOfVariable:  r.PercentOfVariable,
		PercentOfReference: r.PercentOfReference,
		Clamped:            r.Clamped,
		Timestamp:          ts,
	}
}

// Publisher sends samples to a Redis pub/sub channel.
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(cfg adcsim.RedisConfig) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}
	slog.Info("connected to redis", "addr", cfg.Addr, "channel", cfg.Channel)

	return &Publisher{client: client, channel: cfg.Channel}, nil
}

func (p *Publisher) Publish(ctx context.Context, s Sample) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish sample: %w", err)
	}
	return nil
}

// PublishBank samples every channel of bank and publishes the results in one pipeline. Channels
// that fail to convert are logged and skipped.
func (p *Publisher) PublishBank(ctx context.Context, bank *adcsim.Bank) error {
	pipe := p.client.Pipeline()
	now := time.Now()
	for _, ch := range bank.Channels() {
		st, r, err := ch.Sample()
		if err != nil {
			slog.Warn("skipping channel", "channel", ch.Name, "err", err)
			continue
		}
		data, err := json.Marshal(NewSample(ch, st, r, now))
		if err != nil {
			return fmt.Errorf("marshal sample: %w", err)
		}
		pipe.Publish(ctx, p.channel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish samples: %w", err)
	}
	return nil
}

// Run publishes the bank every interval until ctx is done.
func (p *Publisher) Run(ctx context.Context, bank *adcsim.Bank, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.PublishBank(ctx, bank); err != nil {
				slog.Error("publishing failed", "err", err)
			}
		}
	}
}

func (p *Publisher) Close() error {
	return p.client.Close()
}
