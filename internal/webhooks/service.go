/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package webhooks delivers log lifecycle notifications to external
// endpoints. Every delivery attempt is recorded, signed with the
// target's secret when one is configured.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/events"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

const (
	userAgent       = "Muninn-Traffic-Webhook/1.0"
	responseSnippet = 1024
)

// deliveredEvents maps bus events to the webhook event name targets
// subscribe with.
var deliveredEvents = map[events.EventType]models.WebhookEventType{
	events.EventLogGenerated: models.WebhookEventLogGenerated,
	events.EventLogEdited:    models.WebhookEventLogEdited,
	events.EventLogLocked:    models.WebhookEventLogLocked,
	events.EventLogUnlocked:  models.WebhookEventLogUnlocked,
	events.EventLogReverted:  models.WebhookEventLogReverted,
	events.EventLogPublished: models.WebhookEventLogPublished,
	events.EventSlotLinked:   models.WebhookEventSlotLinked,
}

// WebhookPayload is the envelope sent to webhook endpoints.
type WebhookPayload struct {
	Event     models.WebhookEventType `json:"event"`
	Timestamp time.Time               `json:"timestamp"`
	StationID string                  `json:"station_id"`
	Data      map[string]any          `json:"data,omitempty"`
}

// Service handles webhook delivery.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
	client *http.Client
}

// NewService creates a new webhook service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "webhooks").Logger(),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Start begins listening for events to deliver. Blocks until ctx is
// cancelled.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("webhook service starting")

	subs := make(map[events.EventType]events.Subscriber, len(deliveredEvents))
	cases := make([]events.Subscriber, 0, len(deliveredEvents))
	order := make([]events.EventType, 0, len(deliveredEvents))
	for eventType := range deliveredEvents {
		sub := s.bus.Subscribe(eventType)
		subs[eventType] = sub
		cases = append(cases, sub)
		order = append(order, eventType)
	}
	defer func() {
		for eventType, sub := range subs {
			s.bus.Unsubscribe(eventType, sub)
		}
	}()

	// Merge the per-event channels so one select case serves them all.
	merged := make(chan delivery, 16)
	for i := range cases {
		go func(eventType events.EventType, sub events.Subscriber) {
			for payload := range sub {
				select {
				case merged <- delivery{event: deliveredEvents[eventType], payload: payload}:
				case <-ctx.Done():
					return
				}
			}
		}(order[i], cases[i])
	}

	s.logger.Info().Msg("webhook service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("webhook service stopping")
			return
		case d := <-merged:
			s.dispatch(ctx, d.event, d.payload)
		}
	}
}

type delivery struct {
	event   models.WebhookEventType
	payload events.Payload
}

// dispatch fans an event out to every matching target of its station.
func (s *Service) dispatch(ctx context.Context, event models.WebhookEventType, payload events.Payload) {
	stationID, ok := payload["station_id"].(string)
	if !ok || stationID == "" {
		return
	}

	var targets []models.WebhookTarget
	if err := s.db.Where("station_id = ? AND active = ?", stationID, true).Find(&targets).Error; err != nil {
		s.logger.Error().Err(err).Str("station", stationID).Msg("failed to fetch webhook targets")
		return
	}

	for _, target := range targets {
		if !handlesEvent(target, event) {
			continue
		}
		go s.send(ctx, target, event, payload)
	}
}

// handlesEvent checks if a target is subscribed to an event type. An
// empty subscription list means every event.
func handlesEvent(target models.WebhookTarget, event models.WebhookEventType) bool {
	if target.Events == "" {
		return true
	}
	for _, e := range strings.Split(target.Events, ",") {
		if strings.TrimSpace(e) == string(event) {
			return true
		}
	}
	return false
}

// send delivers a single webhook and records the attempt.
func (s *Service) send(ctx context.Context, target models.WebhookTarget, event models.WebhookEventType, data events.Payload) {
	body, err := json.Marshal(WebhookPayload{
		Event:     event,
		Timestamp: time.Now().UTC(),
		StationID: target.StationID,
		Data:      data,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("webhook", target.ID).Msg("failed to marshal webhook payload")
		return
	}

	start := time.Now()
	resp, err := s.deliver(ctx, target, string(event), body)
	elapsed := int(time.Since(start).Milliseconds())

	entry := &models.WebhookLog{
		ID:       uuid.NewString(),
		TargetID: target.ID,
		Event:    string(event),
		Payload:  string(body),
		Duration: elapsed,
	}

	if err != nil {
		entry.Error = err.Error()
		s.logger.Error().Err(err).Str("webhook", target.ID).Str("url", target.URL).Msg("webhook delivery failed")
	} else {
		defer resp.Body.Close()
		entry.StatusCode = resp.StatusCode
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, responseSnippet))
		entry.Response = string(snippet)

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.logger.Debug().Str("webhook", target.ID).Str("event", string(event)).Int("status", resp.StatusCode).Msg("webhook delivered")
		} else {
			s.logger.Warn().Str("webhook", target.ID).Str("event", string(event)).Int("status", resp.StatusCode).Msg("webhook returned error status")
		}
	}

	if err := s.db.Create(entry).Error; err != nil {
		s.logger.Error().Err(err).Msg("failed to log webhook delivery")
	}
}

// deliver performs the signed POST.
func (s *Service) deliver(ctx context.Context, target models.WebhookTarget, event string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Muninn-Event", event)
	req.Header.Set("X-Muninn-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	if target.Secret != "" {
		req.Header.Set("X-Muninn-Signature", Sign(body, target.Secret))
	}

	return s.client.Do(req)
}

// Sign creates the HMAC-SHA256 signature receivers verify deliveries with.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// TestWebhook sends a test payload so an endpoint can be verified before
// real traffic hits it.
func (s *Service) TestWebhook(ctx context.Context, target *models.WebhookTarget) error {
	body, err := json.Marshal(WebhookPayload{
		Event:     "test",
		Timestamp: time.Now().UTC(),
		StationID: target.StationID,
		Data:      map[string]any{"message": "muninn webhook test delivery"},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	resp, err := s.deliver(ctx, *target, "test", body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
