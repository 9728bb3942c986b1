/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package voicetrack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/models"
	"github.com/friendsincode/muninn_traffic/internal/telemetry"
)

// Match is a recording located for a slot, with how far back the lookup had
// to reach. FallbackDays is 0 for a same-day recording.
type Match struct {
	VoiceTrack   models.VoiceTrack
	IsFallback   bool
	FallbackDays int
}

// Find locates the newest usable recording for a standardized break name on
// or before targetDate, reaching back at most maxDaysBack days (zero or
// negative applies the 28-day default). The most recent date wins; within a
// date, final takes beat drafts and higher takes beat lower. A recording
// dated after targetDate is never returned.
func (m *Manager) Find(ctx context.Context, stationID, standardizedName, targetDate string, maxDaysBack int) (*Match, error) {
	if maxDaysBack <= 0 {
		maxDaysBack = DefaultMaxDaysBack
	}
	target, err := time.Parse("2006-01-02", targetDate)
	if err != nil {
		return nil, fmt.Errorf("%w: bad target date %q", ErrValidation, targetDate)
	}
	earliest := target.AddDate(0, 0, -maxDaysBack).Format("2006-01-02")

	var vt models.VoiceTrack
	err = m.db.WithContext(ctx).
		Where("station_id = ? AND standardized_name = ? AND recorded_date <= ? AND recorded_date >= ?",
			stationID, standardizedName, targetDate, earliest).
		Order("recorded_date DESC, final DESC, take DESC, id ASC").
		First(&vt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordingNotFound
	}
	if err != nil {
		return nil, err
	}

	recorded, err := time.Parse("2006-01-02", vt.RecordedDate)
	if err != nil {
		return nil, fmt.Errorf("voicetrack: recording %s has bad date %q: %w", vt.ID, vt.RecordedDate, err)
	}
	days := int(target.Sub(recorded).Hours() / 24)
	if days > 0 {
		telemetry.VoiceTrackFallbacks.Inc()
	}

	return &Match{
		VoiceTrack:   vt,
		IsFallback:   days > 0,
		FallbackDays: days,
	}, nil
}

// ResolveSlot finds the recording a slot would air and records the binding:
// an open slot moves to assigned, a linked slot is left untouched.
func (m *Manager) ResolveSlot(ctx context.Context, slot *models.VoiceTrackSlot) (*Match, error) {
	match, err := m.Find(ctx, slot.StationID, slot.StandardizedName, slot.AirDate, DefaultMaxDaysBack)
	if err != nil {
		return nil, err
	}

	if slot.Status != models.SlotLinked {
		result := m.db.WithContext(ctx).
			Model(&models.VoiceTrackSlot{}).
			Where("id = ? AND status <> ?", slot.ID, models.SlotLinked).
			Updates(map[string]interface{}{
				"voice_track_id": match.VoiceTrack.ID,
				"status":         models.SlotAssigned,
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected > 0 {
			slot.VoiceTrackID = &match.VoiceTrack.ID
			slot.Status = models.SlotAssigned
		}
	}

	return match, nil
}
