/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audit persists a trail of sensitive operations. Most entries
// arrive through the event bus; operations with no event (clock CRUD,
// user creation) call Log directly from their handlers.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/events"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

// Service records audit entries from bus events and direct calls.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Start subscribes to the audited events and records an entry for each.
// Blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("audit service starting")

	logGenerated := s.bus.Subscribe(events.EventLogGenerated)
	logEdited := s.bus.Subscribe(events.EventLogEdited)
	logLocked := s.bus.Subscribe(events.EventLogLocked)
	logUnlocked := s.bus.Subscribe(events.EventLogUnlocked)
	logReverted := s.bus.Subscribe(events.EventLogReverted)
	logPublished := s.bus.Subscribe(events.EventLogPublished)
	logPublishFailed := s.bus.Subscribe(events.EventLogPublishFailed)
	slotAssigned := s.bus.Subscribe(events.EventSlotAssigned)
	slotLinked := s.bus.Subscribe(events.EventSlotLinked)
	asPlayed := s.bus.Subscribe(events.EventAsPlayed)
	importDone := s.bus.Subscribe(events.EventImportDone)

	defer func() {
		s.bus.Unsubscribe(events.EventLogGenerated, logGenerated)
		s.bus.Unsubscribe(events.EventLogEdited, logEdited)
		s.bus.Unsubscribe(events.EventLogLocked, logLocked)
		s.bus.Unsubscribe(events.EventLogUnlocked, logUnlocked)
		s.bus.Unsubscribe(events.EventLogReverted, logReverted)
		s.bus.Unsubscribe(events.EventLogPublished, logPublished)
		s.bus.Unsubscribe(events.EventLogPublishFailed, logPublishFailed)
		s.bus.Unsubscribe(events.EventSlotAssigned, slotAssigned)
		s.bus.Unsubscribe(events.EventSlotLinked, slotLinked)
		s.bus.Unsubscribe(events.EventAsPlayed, asPlayed)
		s.bus.Unsubscribe(events.EventImportDone, importDone)
	}()

	s.logger.Info().Msg("audit service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return

		case payload := <-logGenerated:
			s.record(ctx, models.AuditActionLogGenerate, payload)

		case payload := <-logEdited:
			s.record(ctx, models.AuditActionLogEdit, payload)

		case payload := <-logLocked:
			s.record(ctx, models.AuditActionLogLock, payload)

		case payload := <-logUnlocked:
			s.record(ctx, models.AuditActionLogUnlock, payload)

		case payload := <-logReverted:
			s.record(ctx, models.AuditActionLogRevert, payload)

		case payload := <-logPublished:
			s.record(ctx, models.AuditActionLogPublish, payload)

		case payload := <-logPublishFailed:
			s.record(ctx, models.AuditActionLogPublishFailed, payload)

		case payload := <-slotAssigned:
			s.record(ctx, models.AuditActionSlotAssign, payload)

		case payload := <-slotLinked:
			s.record(ctx, models.AuditActionSlotLink, payload)

		case payload := <-asPlayed:
			s.record(ctx, models.AuditActionAsPlayed, payload)

		case payload := <-importDone:
			s.record(ctx, models.AuditActionImportRun, payload)
		}
	}
}

// record builds an audit entry from an event payload.
func (s *Service) record(ctx context.Context, action models.AuditAction, payload events.Payload) {
	entry := &models.AuditLog{
		Action:  action,
		Details: make(map[string]any),
	}

	if actor, ok := payload["actor"].(string); ok && actor != "" {
		entry.UserID = &actor
	}
	if email, ok := payload["actor_email"].(string); ok {
		entry.UserEmail = email
	}
	if stationID, ok := payload["station_id"].(string); ok && stationID != "" {
		entry.StationID = &stationID
	}

	entry.ResourceType, entry.ResourceID = resourceRef(action, payload)

	for k, v := range payload {
		switch k {
		case "actor", "actor_email", "station_id", "log_id", "slot_id":
			// Carried on dedicated columns.
		default:
			entry.Details[k] = v
		}
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to log audit entry")
	}
}

// resourceRef maps an action to the kind of resource it touches and pulls
// the resource id out of the payload when present.
func resourceRef(action models.AuditAction, payload events.Payload) (string, string) {
	str := func(key string) string {
		v, _ := payload[key].(string)
		return v
	}

	switch action {
	case models.AuditActionSlotAssign, models.AuditActionSlotLink:
		return "voice_track_slot", str("slot_id")
	case models.AuditActionImportRun:
		return "import", str("job_id")
	case models.AuditActionClockCreate, models.AuditActionClockUpdate, models.AuditActionClockDelete:
		return "clock_template", str("clock_id")
	case models.AuditActionUserCreate:
		return "user", str("user_id")
	default:
		return "daily_log", str("log_id")
	}
}

// Log records an audit entry directly (for non-event-bus actions).
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")

	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	UserID    *string
	StationID *string
	Action    *models.AuditAction
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Query retrieves audit logs with filters, most recent first. Returns the
// page and the unpaginated total.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.StationID != nil {
		query = query.Where("station_id = ?", *filters.StationID)
	}
	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", *filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
