/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus publishes playlist lifecycle events over NATS. When no
// broker is configured or reachable the bus runs disabled and publishing is
// a logged no-op.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Subjects published by skald.
const (
	SubjectPlaylistRefreshed = "skald.playlist.refreshed"
	SubjectPlaylistUpdated   = "skald.playlist.updated"
)

// Bus is a thin NATS publisher.
type Bus struct {
	conn   *nats.Conn
	logger zerolog.Logger
	nodeID string
}

// Message is the envelope for every published event.
type Message struct {
	Subject   string    `json:"subject"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
	MessageID string    `json:"message_id"`
}

// PlaylistRefreshed is the payload for SubjectPlaylistRefreshed.
type PlaylistRefreshed struct {
	PlaylistID string        `json:"playlist_id"`
	RunID      string        `json:"run_id"`
	Members    int           `json:"members"`
	Duration   time.Duration `json:"duration"`
}

// PlaylistUpdated is the payload for SubjectPlaylistUpdated.
type PlaylistUpdated struct {
	PlaylistID string `json:"playlist_id"`
	Name       string `json:"name"`
	Actor      string `json:"actor,omitempty"`
}

// New connects to NATS. An empty URL or a failed connection yields a
// disabled bus, not an error.
func New(url string, logger zerolog.Logger) (*Bus, error) {
	log := logger.With().Str("component", "eventbus").Logger()

	bus := &Bus{
		logger: log,
		nodeID: uuid.NewString(),
	}

	if url == "" {
		log.Info().Msg("no NATS URL configured, event publishing disabled")
		return bus, nil
	}

	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("NATS unavailable, event publishing disabled")
		return bus, nil
	}

	log.Info().Str("url", url).Msg("connected to NATS")
	bus.conn = conn
	return bus, nil
}

// Enabled reports whether events actually reach a broker.
func (b *Bus) Enabled() bool {
	return b.conn != nil
}

// Publish sends one event. Disabled buses log at debug and drop it.
func (b *Bus) Publish(subject string, payload any) error {
	if b.conn == nil {
		b.logger.Debug().Str("subject", subject).Msg("event bus disabled, dropping event")
		return nil
	}

	data, err := json.Marshal(Message{
		Subject:   subject,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    b.nodeID,
		MessageID: uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (b *Bus) Close() {
	if b.conn != nil {
		if err := b.conn.Drain(); err != nil {
			b.logger.Debug().Err(err).Msg("drain NATS connection")
		}
	}
}
