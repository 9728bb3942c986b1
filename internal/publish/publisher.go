/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package publish converts finished daily logs into the automation system's
// wire format and delivers them. Delivery replaces whole windows
// (replaceDay, replaceHour) rather than patching, so a re-publish after an
// edit is always safe to repeat.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/dailylog"
	"github.com/friendsincode/muninn_traffic/internal/events"
	"github.com/friendsincode/muninn_traffic/internal/models"
	"github.com/friendsincode/muninn_traffic/internal/telemetry"
)

// ErrDelivery wraps any failure to hand the schedule to the automation
// system: transport errors and explicit rejections both. The log keeps its
// unpublished state; the operator retries after fixing the cause.
var ErrDelivery = errors.New("publish: delivery to playout failed")

// Result reports what a publish transmitted and what it had to leave out.
// Dropped advisories are returned for display only, never written back to
// the log.
type Result struct {
	Entries []WireEntry       `json:"entries"`
	Dropped []models.Advisory `json:"dropped,omitempty"`
}

// Publisher drives the convert-then-deliver flow and flips the log's
// published flag only after the automation system accepts the schedule.
type Publisher struct {
	db        *gorm.DB
	converter *Converter
	client    PlayoutClient
	bus       *events.Bus
	logger    zerolog.Logger
}

func NewPublisher(db *gorm.DB, converter *Converter, client PlayoutClient, bus *events.Bus, logger zerolog.Logger) *Publisher {
	return &Publisher{
		db:        db,
		converter: converter,
		client:    client,
		bus:       bus,
		logger:    logger.With().Str("component", "publish").Logger(),
	}
}

// PublishDay sends a full day to the automation system via replaceDay.
// The log must pass publish validation; a locked log may still publish,
// locking freezes edits, not delivery.
func (p *Publisher) PublishDay(ctx context.Context, logID string) (*Result, error) {
	log, dayStart, err := p.loadLog(ctx, logID)
	if err != nil {
		return nil, err
	}
	if err := dailylog.ValidatePublish(log); err != nil {
		return nil, err
	}

	entries, dropped, err := p.converter.Convert(ctx, log, dayStart)
	if err != nil {
		return nil, fmt.Errorf("convert log: %w", err)
	}

	ok, err := p.client.ReplaceDay(ctx, log.AirDate, entries)
	if delivery := p.checkDelivery(log, -1, len(entries), ok, err); delivery != nil {
		return nil, delivery
	}

	if err := p.markPublished(ctx, log); err != nil {
		return nil, err
	}

	telemetry.PublishTotal.WithLabelValues("day", telemetry.OutcomeSuccess).Inc()
	p.publish(events.EventLogPublished, events.Payload{
		"log_id":     log.ID,
		"station_id": log.StationID,
		"air_date":   log.AirDate,
		"entries":    len(entries),
		"dropped":    len(dropped),
	})
	p.logger.Info().
		Str("log_id", log.ID).
		Str("air_date", log.AirDate).
		Int("entries", len(entries)).
		Int("dropped", len(dropped)).
		Msg("published day to playout")

	return &Result{Entries: entries, Dropped: dropped}, nil
}

// PublishHour sends a single hour via replaceHour, the cheap path after an
// edit to an already-published day. A successful hour push marks the whole
// log published; the day's remaining hours were either already delivered or
// will be before air.
func (p *Publisher) PublishHour(ctx context.Context, logID string, hour int) (*Result, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("publish: hour %d out of range", hour)
	}
	log, dayStart, err := p.loadLog(ctx, logID)
	if err != nil {
		return nil, err
	}
	if err := dailylog.ValidatePublish(log); err != nil {
		return nil, err
	}

	entries, dropped, err := p.converter.ConvertHour(ctx, log, dayStart, hour)
	if err != nil {
		return nil, fmt.Errorf("convert hour %d: %w", hour, err)
	}

	ok, err := p.client.ReplaceHour(ctx, log.AirDate, hour, entries)
	if delivery := p.checkDelivery(log, hour, len(entries), ok, err); delivery != nil {
		return nil, delivery
	}

	if err := p.markPublished(ctx, log); err != nil {
		return nil, err
	}

	telemetry.PublishTotal.WithLabelValues("hour", telemetry.OutcomeSuccess).Inc()
	p.publish(events.EventLogPublished, events.Payload{
		"log_id":     log.ID,
		"station_id": log.StationID,
		"air_date":   log.AirDate,
		"hour":       hour,
		"entries":    len(entries),
		"dropped":    len(dropped),
	})
	p.logger.Info().
		Str("log_id", log.ID).
		Str("air_date", log.AirDate).
		Int("hour", hour).
		Int("entries", len(entries)).
		Msg("published hour to playout")

	return &Result{Entries: entries, Dropped: dropped}, nil
}

// loadLog fetches the log and computes midnight of its air date in the
// station's zone. An unknown or broken zone falls back to UTC with a
// warning rather than blocking the publish.
func (p *Publisher) loadLog(ctx context.Context, logID string) (*models.DailyLog, time.Time, error) {
	var log models.DailyLog
	if err := p.db.WithContext(ctx).Where("id = ?", logID).First(&log).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, time.Time{}, dailylog.ErrLogNotFound
		}
		return nil, time.Time{}, fmt.Errorf("load log: %w", err)
	}

	loc := time.UTC
	var station models.Station
	if err := p.db.WithContext(ctx).Where("id = ?", log.StationID).First(&station).Error; err == nil && station.Timezone != "" {
		if l, err := time.LoadLocation(station.Timezone); err == nil {
			loc = l
		} else {
			p.logger.Warn().
				Str("station_id", log.StationID).
				Str("timezone", station.Timezone).
				Msg("unknown station timezone, publishing in UTC")
		}
	}

	day, err := time.ParseInLocation("2006-01-02", log.AirDate, loc)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("publish: log %s has bad air date %q: %w", log.ID, log.AirDate, err)
	}
	return &log, day, nil
}

// checkDelivery folds the transport error and the automation system's
// verdict into a single ErrDelivery, emitting the failure event either way.
func (p *Publisher) checkDelivery(log *models.DailyLog, hour, entries int, ok bool, err error) error {
	if err == nil && ok {
		return nil
	}

	window := "day"
	if hour >= 0 {
		window = "hour"
	}
	telemetry.PublishTotal.WithLabelValues(window, telemetry.OutcomeFailure).Inc()

	reason := "playout rejected the schedule"
	if err != nil {
		reason = err.Error()
	}
	payload := events.Payload{
		"log_id":     log.ID,
		"station_id": log.StationID,
		"air_date":   log.AirDate,
		"entries":    entries,
		"error":      reason,
	}
	ev := p.logger.Error().
		Str("log_id", log.ID).
		Str("air_date", log.AirDate).
		Int("entries", entries)
	if hour >= 0 {
		payload["hour"] = hour
		ev = ev.Int("hour", hour)
	}
	p.publish(events.EventLogPublishFailed, payload)
	ev.Str("reason", reason).Msg("playout delivery failed")

	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return fmt.Errorf("%w: %s", ErrDelivery, reason)
}

// markPublished flips the flag with the same revision guard the edit path
// uses: if the log was regenerated or edited mid-publish, the flip loses
// and the caller re-publishes the newer content instead.
func (p *Publisher) markPublished(ctx context.Context, log *models.DailyLog) error {
	result := p.db.WithContext(ctx).
		Model(&models.DailyLog{}).
		Where("id = ? AND revision_number = ?", log.ID, log.RevisionNumber).
		Update("published", true)
	if result.Error != nil {
		return fmt.Errorf("mark published: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return dailylog.ErrConcurrency
	}
	log.Published = true
	return nil
}

func (p *Publisher) publish(event events.EventType, payload events.Payload) {
	if p.bus != nil {
		p.bus.Publish(event, payload)
	}
}
