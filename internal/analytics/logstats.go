/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package analytics computes reporting summaries over finished logs.
// Everything is derived on demand from the stored log; nothing here runs
// in the background or writes rows.
package analytics

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/dailylog"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

// Service answers stats queries about daily logs.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewService creates a new analytics service.
func NewService(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "analytics").Logger(),
	}
}

// HourStats summarizes one hour of a log.
type HourStats struct {
	Hour     int `json:"hour"`
	Elements int `json:"elements"`
	// FilledSec is the planned playout time of the hour. DriftSec is how
	// far it runs past (positive) or short of (negative) the hour grid.
	FilledSec int `json:"filled_sec"`
	DriftSec  int `json:"drift_sec"`
	// MaxShiftSec is the largest distance any element moved from its
	// clock position during timing correction.
	MaxShiftSec int `json:"max_shift_sec"`
}

// LogStats is the on-demand reporting summary for one daily log.
type LogStats struct {
	LogID          string           `json:"log_id"`
	StationID      string           `json:"station_id"`
	AirDate        string           `json:"air_date"`
	Status         models.LogStatus `json:"status"`
	RevisionNumber int              `json:"revision_number"`
	Locked         bool             `json:"locked"`
	Published      bool             `json:"published"`

	TotalElements int `json:"total_elements"`
	TotalSeconds  int `json:"total_seconds"`

	SecondsByType map[models.ContentType]int `json:"seconds_by_type"`
	CountByType   map[models.ContentType]int `json:"count_by_type"`

	Fallbacks    int `json:"fallbacks"`
	Placeholders int `json:"placeholders"`
	Omissions    int `json:"omissions"`
	HardStarts   int `json:"hard_starts"`
	Advisories   int `json:"advisories"`

	Hours [24]HourStats `json:"hours"`
}

// LogStats loads a log and computes its summary.
func (s *Service) LogStats(ctx context.Context, logID string) (*LogStats, error) {
	var log models.DailyLog
	result := s.db.WithContext(ctx).First(&log, "id = ?", logID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, dailylog.ErrLogNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}

	return Compute(&log), nil
}

// Compute derives the summary from an already loaded log.
func Compute(log *models.DailyLog) *LogStats {
	stats := &LogStats{
		LogID:          log.ID,
		StationID:      log.StationID,
		AirDate:        log.AirDate,
		Status:         log.Status,
		RevisionNumber: log.RevisionNumber,
		Locked:         log.Locked,
		Published:      log.Published,
		SecondsByType:  make(map[models.ContentType]int),
		CountByType:    make(map[models.ContentType]int),
		Advisories:     len(log.Conflicts) + len(log.Oversell),
	}

	for _, advisory := range log.Conflicts {
		if advisory.Code == models.AdvisoryNoContent {
			stats.Omissions++
		}
	}

	for h := range log.Hours {
		block := &log.Hours[h]
		hour := HourStats{
			Hour:      block.Hour,
			Elements:  len(block.Elements),
			FilledSec: block.TotalDurationSec,
		}
		// A deliberately dark hour is not 3600s of drift.
		if len(block.Elements) > 0 {
			hour.DriftSec = block.TotalDurationSec - 3600
		}

		for _, elem := range block.Elements {
			stats.TotalElements++
			stats.TotalSeconds += elem.DurationSec
			stats.SecondsByType[elem.Type] += elem.DurationSec
			stats.CountByType[elem.Type]++

			if elem.FallbackUsed {
				stats.Fallbacks++
			}
			if elem.Placeholder {
				stats.Placeholders++
			}
			if elem.HardStart {
				stats.HardStarts++
			}

			shift := elem.StartSec - elem.ScheduledSec
			if shift < 0 {
				shift = -shift
			}
			if shift > hour.MaxShiftSec {
				hour.MaxShiftSec = shift
			}
		}

		stats.Hours[h] = hour
	}

	return stats
}
