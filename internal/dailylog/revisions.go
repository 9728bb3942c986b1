/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dailylog

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/events"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

// Revisions lists a log's revision history, oldest first, without the
// snapshot payloads.
func (s *Service) Revisions(ctx context.Context, logID string) ([]models.LogRevision, error) {
	var revs []models.LogRevision
	err := s.db.WithContext(ctx).
		Select("id", "daily_log_id", "version_number", "change_summary", "change_type", "changed_by_id", "created_at").
		Where("daily_log_id = ?", logID).
		Order("version_number ASC").
		Find(&revs).Error
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	return revs, nil
}

// Revision fetches one revision with its full snapshot.
func (s *Service) Revision(ctx context.Context, logID string, version int) (*models.LogRevision, error) {
	var rev models.LogRevision
	err := s.db.WithContext(ctx).
		Where("daily_log_id = ? AND version_number = ?", logID, version).
		First(&rev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRevisionNotFound
		}
		return nil, err
	}
	return &rev, nil
}

// Revert restores a log's content to what a prior revision captured. The
// current state is snapshotted first, so a revert is itself revertible.
// Lock and published flags are left alone: reverting content does not
// re-open a locked day or unpublish one already sent to automation.
func (s *Service) Revert(ctx context.Context, logID string, version int, actor string) (*models.DailyLog, error) {
	var log models.DailyLog
	if err := s.db.WithContext(ctx).Where("id = ?", logID).First(&log).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLogNotFound
		}
		return nil, err
	}
	if log.Locked {
		return nil, ErrLogLocked
	}

	target, err := s.Revision(ctx, logID, version)
	if err != nil {
		return nil, err
	}

	oldRevision := log.RevisionNumber
	snap := snapshotOf(&log)

	log.Hours = target.Snapshot.Hours
	log.Status = target.Snapshot.Status
	log.Conflicts = target.Snapshot.Conflicts
	log.Oversell = target.Snapshot.Oversell
	log.RevisionNumber = oldRevision + 1

	summary := fmt.Sprintf("state before revert to version %d", version)
	rev := newRevision(log.ID, oldRevision+1, snap, models.ChangeTypeRevert, summary, actor)
	if err := s.commitMutation(ctx, &log, oldRevision, rev); err != nil {
		return nil, err
	}

	s.publish(events.EventLogReverted, events.Payload{
		"log_id":     log.ID,
		"station_id": log.StationID,
		"air_date":   log.AirDate,
		"to_version": version,
	})
	s.logger.Info().
		Str("log_id", log.ID).
		Int("to_version", version).
		Int("revision", log.RevisionNumber).
		Msg("log reverted")

	return &log, nil
}
