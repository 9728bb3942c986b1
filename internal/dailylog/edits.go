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

	"github.com/friendsincode/muninn_traffic/internal/clock"
	"github.com/friendsincode/muninn_traffic/internal/events"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

// editFunc mutates one hour of the log and reports which hour changed and
// the element index timing must be recomputed from.
type editFunc func(log *models.DailyLog) (hour, fromIdx int, err error)

// applyEdit runs one structural edit end to end: lock check, pre-edit
// snapshot, mutation, forward retime, total recompute, and the guarded
// commit. The returned log reflects the applied edit.
func (s *Service) applyEdit(ctx context.Context, logID, summary, actor string, edit editFunc) (*models.DailyLog, error) {
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

	oldRevision := log.RevisionNumber
	snap := snapshotOf(&log)

	hour, fromIdx, err := edit(&log)
	if err != nil {
		return nil, err
	}

	advisories := clock.Retime(hour, log.Hours[hour].Elements, fromIdx)

	block := &log.Hours[hour]
	total := 0
	for i := range block.Elements {
		total += block.Elements[i].DurationSec
	}
	block.TotalDurationSec = total

	log.Conflicts = mergeRetimeAdvisories(log.Conflicts, advisories, hour)
	log.Status = models.LogStatusEdited
	log.RevisionNumber = oldRevision + 1

	rev := newRevision(log.ID, oldRevision+1, snap, models.ChangeTypeEdit, summary, actor)
	if err := s.commitMutation(ctx, &log, oldRevision, rev); err != nil {
		return nil, err
	}

	s.publish(events.EventLogEdited, events.Payload{
		"log_id":     log.ID,
		"station_id": log.StationID,
		"air_date":   log.AirDate,
		"hour":       hour,
		"summary":    summary,
	})
	s.logger.Info().
		Str("log_id", log.ID).
		Int("hour", hour).
		Int("revision", log.RevisionNumber).
		Str("summary", summary).
		Msg("log edited")

	return &log, nil
}

// mergeRetimeAdvisories swaps the hour's timing advisories for the fresh
// set, keeping selection-sourced ones untouched.
func mergeRetimeAdvisories(existing models.AdvisoryList, fresh []models.Advisory, hour int) models.AdvisoryList {
	merged := make(models.AdvisoryList, 0, len(existing)+len(fresh))
	for _, adv := range existing {
		if adv.Hour == hour && (adv.Code == models.AdvisoryOverlap || adv.Code == models.AdvisoryOverrun) {
			continue
		}
		merged = append(merged, adv)
	}
	return append(merged, fresh...)
}

// InsertElement splices a new element into an hour at index. Zero scheduled
// fields are defaulted so the insertion is plan-neutral: the element's
// allotment is its own duration, scheduled where the previous element's
// plan ends.
func (s *Service) InsertElement(ctx context.Context, logID string, hour, index int, elem models.LogElement, actor string) (*models.DailyLog, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("%w: hour %d out of range", ErrValidation, hour)
	}
	if !elem.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown element type %q", ErrValidation, elem.Type)
	}
	if elem.DurationSec <= 0 {
		return nil, fmt.Errorf("%w: element duration must be positive", ErrValidation)
	}

	summary := fmt.Sprintf("insert %s %q at hour %d position %d", elem.Type, elem.Title, hour, index)
	return s.applyEdit(ctx, logID, summary, actor, func(log *models.DailyLog) (int, int, error) {
		elements := log.Hours[hour].Elements
		if index < 0 || index > len(elements) {
			return 0, 0, ErrElementIndex
		}
		if elem.ScheduledDurationSec <= 0 {
			elem.ScheduledDurationSec = elem.DurationSec
		}
		if elem.ScheduledSec == 0 && index > 0 {
			elem.ScheduledSec = planEnd(elements[index-1])
		}
		elements = append(elements[:index], append([]models.LogElement{elem}, elements[index:]...)...)
		log.Hours[hour].Elements = elements
		return hour, index, nil
	})
}

// RemoveElement deletes the element at index from an hour.
func (s *Service) RemoveElement(ctx context.Context, logID string, hour, index int, actor string) (*models.DailyLog, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("%w: hour %d out of range", ErrValidation, hour)
	}

	summary := fmt.Sprintf("remove element %d from hour %d", index, hour)
	return s.applyEdit(ctx, logID, summary, actor, func(log *models.DailyLog) (int, int, error) {
		elements := log.Hours[hour].Elements
		if index < 0 || index >= len(elements) {
			return 0, 0, ErrElementIndex
		}
		log.Hours[hour].Elements = append(elements[:index], elements[index+1:]...)
		return hour, index, nil
	})
}

// planEnd is where an element's plan window closes.
func planEnd(elem models.LogElement) int {
	nominal := elem.ScheduledDurationSec
	if nominal <= 0 {
		nominal = elem.DurationSec
	}
	return elem.ScheduledSec + nominal
}

// MoveElement repositions an element within its hour; toIndex addresses the
// final ordering. A flexible element is re-planned to its new neighborhood
// so the retime walk stays monotonic; a hard start keeps its pin and moves
// only in sequence order.
func (s *Service) MoveElement(ctx context.Context, logID string, hour, fromIndex, toIndex int, actor string) (*models.DailyLog, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("%w: hour %d out of range", ErrValidation, hour)
	}

	summary := fmt.Sprintf("move element %d to %d in hour %d", fromIndex, toIndex, hour)
	return s.applyEdit(ctx, logID, summary, actor, func(log *models.DailyLog) (int, int, error) {
		elements := log.Hours[hour].Elements
		if fromIndex < 0 || fromIndex >= len(elements) || toIndex < 0 || toIndex >= len(elements) {
			return 0, 0, ErrElementIndex
		}
		moved := elements[fromIndex]
		elements = append(elements[:fromIndex], elements[fromIndex+1:]...)
		elements = append(elements[:toIndex], append([]models.LogElement{moved}, elements[toIndex:]...)...)

		if !elements[toIndex].HardStart {
			if toIndex == 0 {
				elements[toIndex].ScheduledSec = 0
			} else {
				elements[toIndex].ScheduledSec = planEnd(elements[toIndex-1])
			}
		}
		log.Hours[hour].Elements = elements

		first := fromIndex
		if toIndex < first {
			first = toIndex
		}
		return hour, first, nil
	})
}

// ReorderHour rewrites an hour's element order. order lists, for each new
// position, the old index it takes; it must be a permutation of the hour.
// Flexible elements are re-planned sequentially in the new order; hard
// starts keep their pins.
func (s *Service) ReorderHour(ctx context.Context, logID string, hour int, order []int, actor string) (*models.DailyLog, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("%w: hour %d out of range", ErrValidation, hour)
	}

	summary := fmt.Sprintf("reorder hour %d", hour)
	return s.applyEdit(ctx, logID, summary, actor, func(log *models.DailyLog) (int, int, error) {
		elements := log.Hours[hour].Elements
		if len(order) != len(elements) {
			return 0, 0, fmt.Errorf("%w: order covers %d elements, hour has %d", ErrValidation, len(order), len(elements))
		}
		seen := make([]bool, len(elements))
		for _, idx := range order {
			if idx < 0 || idx >= len(elements) || seen[idx] {
				return 0, 0, fmt.Errorf("%w: order is not a permutation of the hour", ErrValidation)
			}
			seen[idx] = true
		}

		rebuilt := make([]models.LogElement, len(elements))
		for newPos, oldPos := range order {
			rebuilt[newPos] = elements[oldPos]
		}

		planCursor := 0
		for i := range rebuilt {
			if rebuilt[i].HardStart {
				if end := planEnd(rebuilt[i]); end > planCursor {
					planCursor = end
				}
				continue
			}
			rebuilt[i].ScheduledSec = planCursor
			planCursor = planEnd(rebuilt[i])
		}

		log.Hours[hour].Elements = rebuilt
		return hour, 0, nil
	})
}

// Lock freezes a log against structural edits. Locking an already locked
// log is a no-op.
func (s *Service) Lock(ctx context.Context, logID, actor string) error {
	return s.setLocked(ctx, logID, actor, true)
}

// Unlock reopens a log for editing.
func (s *Service) Unlock(ctx context.Context, logID, actor string) error {
	return s.setLocked(ctx, logID, actor, false)
}

func (s *Service) setLocked(ctx context.Context, logID, actor string, locked bool) error {
	var log models.DailyLog
	if err := s.db.WithContext(ctx).Where("id = ?", logID).First(&log).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLogNotFound
		}
		return err
	}
	if log.Locked == locked {
		return nil
	}

	if err := s.db.WithContext(ctx).Model(&models.DailyLog{}).
		Where("id = ?", logID).
		Update("locked", locked).Error; err != nil {
		return err
	}

	event := events.EventLogLocked
	if !locked {
		event = events.EventLogUnlocked
	}
	s.publish(event, events.Payload{"log_id": logID, "actor": actor})
	s.logger.Info().
		Str("log_id", logID).
		Bool("locked", locked).
		Str("actor", actor).
		Msg("log lock changed")
	return nil
}
