// Package bus publishes detected signals, settled trades, and risk events
// onto NATS subjects for external consumers (the dashboard, alerting, a
// backtest recorder), narrowed to one-way publish/subscribe on a fixed
// set of domain subjects.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Subject is one of the fixed outward event topics.
type Subject string

const (
	SubjectSignalDetected Subject = "signals.detected"
	SubjectSignalSettled  Subject = "signals.settled"
	SubjectTradeExecuted  Subject = "trades.executed"
	SubjectRiskRejected   Subject = "risk.rejected"
	SubjectCircuitBreaker Subject = "risk.circuit_breaker"
	SubjectConnState      Subject = "connectors.state"
)

// Config configures the bus's NATS connection.
type Config struct {
	URL    string
	Prefix string // default "arbot."
}

// DefaultConfig returns the default bus configuration for a local NATS
// instance.
func DefaultConfig() Config {
	return Config{URL: "nats://localhost:4222", Prefix: "arbot."}
}

// Event is the envelope published on every subject.
type Event struct {
	ID        string          `json:"id"`
	Subject   Subject         `json:"subject"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Handler processes a received Event.
type Handler func(Event) error

// Bus is a thin publish/subscribe wrapper over one NATS connection.
type Bus struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials NATS with infinite reconnect, matching how the rest of
// the pipeline treats a broker outage as transient rather than fatal.
func Connect(cfg Config) (*Bus, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "arbot."
	}
	nc, err := nats.Connect(
		cfg.URL,
		nats.Name("arbot-engine"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("event bus disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("event bus reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect event bus: %w", err)
	}
	return &Bus{nc: nc, prefix: cfg.Prefix}, nil
}

func (b *Bus) subject(s Subject) string {
	return b.prefix + string(s)
}

// Publish serializes payload and publishes it under subject. A connection
// drop is swallowed as a logged warning: losing an outward notification
// must never block the detection/execution pipeline that produced it.
func (b *Bus) Publish(subject Subject, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("subject", string(subject)).Msg("failed to marshal bus event")
		return
	}
	evt := Event{
		Subject:   subject,
		Payload:   data,
		Timestamp: time.Now(),
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("subject", string(subject)).Msg("failed to marshal bus envelope")
		return
	}
	if !b.nc.IsConnected() {
		log.Warn().Str("subject", string(subject)).Msg("event bus not connected, dropping event")
		return
	}
	if err := b.nc.Publish(b.subject(subject), raw); err != nil {
		log.Warn().Err(err).Str("subject", string(subject)).Msg("failed to publish bus event")
	}
}

// Subscribe registers handler for every event on subject.
func (b *Bus) Subscribe(subject Subject, handler Handler) (*nats.Subscription, error) {
	sub, err := b.nc.Subscribe(b.subject(subject), func(msg *nats.Msg) {
		var evt Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			log.Warn().Err(err).Str("subject", string(subject)).Msg("failed to unmarshal bus event")
			return
		}
		if err := handler(evt); err != nil {
			log.Warn().Err(err).Str("subject", string(subject)).Msg("bus event handler failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

// Close tears down the underlying NATS connection.
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
