/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus mirrors the in-process event bus across engine
// instances over NATS, so webhooks and live API feeds fire no matter
// which instance performed the operation.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_traffic/internal/events"
)

const subjectPrefix = "muninn.events."

// NATSConfig carries connection settings for the bridge.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns the connection defaults: reconnect forever,
// two seconds apart.
func DefaultNATSConfig(url string) NATSConfig {
	return NATSConfig{
		URL:           url,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// envelope is the wire form of one event. NodeID suppresses echo: an
// instance ignores envelopes it published itself. MessageID exists for
// debugging duplicate delivery, not for dedup logic.
type envelope struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

// NATSBridge ties a local bus to the shared subject space. Local publishes
// are forwarded out; remote envelopes are delivered locally without being
// forwarded again, which is what breaks the ping-pong loop two bridged
// instances would otherwise enter.
type NATSBridge struct {
	conn   *nats.Conn
	local  *events.Bus
	sub    *nats.Subscription
	nodeID string
	logger zerolog.Logger
}

// NewNATSBridge connects and starts mirroring. The caller keeps using the
// local bus as before; the bridge hooks itself in via the bus forwarder.
func NewNATSBridge(cfg NATSConfig, local *events.Bus, logger zerolog.Logger) (*NATSBridge, error) {
	logger = logger.With().Str("component", "eventbus").Logger()
	nodeID := generateNodeID()

	conn, err := nats.Connect(cfg.URL,
		nats.Name("muninn-traffic"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected, events stay local until reconnect")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect to NATS: %w", err)
	}

	b := &NATSBridge{
		conn:   conn,
		local:  local,
		nodeID: nodeID,
		logger: logger,
	}

	b.sub, err = conn.Subscribe(subjectPrefix+">", b.receive)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("eventbus: subscribe: %w", err)
	}

	local.SetForwarder(b.forward)

	logger.Info().Str("url", cfg.URL).Str("node_id", nodeID).Msg("event bridge connected")
	return b, nil
}

// forward mirrors one local publish onto its subject.
func (b *NATSBridge) forward(eventType events.EventType, payload events.Payload) {
	if b.conn == nil {
		return
	}

	data, err := json.Marshal(envelope{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    b.nodeID,
		MessageID: uuid.NewString(),
	})
	if err != nil {
		b.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("marshal envelope failed")
		return
	}

	if err := b.conn.Publish(subjectFor(eventType), data); err != nil {
		b.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("forward to NATS failed")
	}
}

// receive injects a remote envelope into the local bus.
func (b *NATSBridge) receive(msg *nats.Msg) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		b.logger.Error().Err(err).Str("subject", msg.Subject).Msg("bad envelope on bus subject")
		return
	}
	if env.NodeID == b.nodeID {
		return
	}

	b.local.Deliver(env.EventType, env.Payload)
	b.logger.Debug().
		Str("event_type", string(env.EventType)).
		Str("source", env.NodeID).
		Msg("delivered remote event")
}

// Close detaches from the local bus and drains the connection so queued
// forwards still go out.
func (b *NATSBridge) Close() error {
	b.local.SetForwarder(nil)
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			b.logger.Warn().Err(err).Msg("unsubscribe failed during close")
		}
	}
	if b.conn != nil {
		if err := b.conn.Drain(); err != nil {
			b.conn.Close()
			return fmt.Errorf("eventbus: drain: %w", err)
		}
	}
	return nil
}

func subjectFor(eventType events.EventType) string {
	return subjectPrefix + string(eventType)
}

// generateNodeID is hostname plus a short random suffix, unique enough to
// tell instances apart in envelopes and logs.
func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "muninn"
	}
	return host + "-" + strings.Split(uuid.NewString(), "-")[0]
}
