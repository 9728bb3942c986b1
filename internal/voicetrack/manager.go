/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package voicetrack manages talk breaks on generated logs: extracting break
// structure from resolved hours, creating lettered slots with talent
// previews, resolving recordings across days, and linking recorded audio.
package voicetrack

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/models"
)

var (
	ErrSlotNotFound      = errors.New("voicetrack: slot not found")
	ErrRecordingNotFound = errors.New("voicetrack: no recording found")
	ErrValidation        = errors.New("voicetrack: invalid request")
)

// defaultBreakOffsets places breaks at 15, 30, and 45 minutes into an hour
// whose template marked no voice-track positions of its own.
var defaultBreakOffsets = []int{900, 1800, 2700}

// DefaultMaxDaysBack bounds the cross-day recording fallback search.
const DefaultMaxDaysBack = 28

// RampEstimator supplies talk-over timings for break previews.
type RampEstimator interface {
	RampEstimates(ctx context.Context, stationID, fileRef string) (rampInSec, rampOutSec float64, err error)
}

// AssetRenamer renames stored audio when a recording is linked to a slot.
type AssetRenamer interface {
	Rename(ctx context.Context, oldRef, newRef string) error
}

// Manager owns voice-track slots and their recordings.
type Manager struct {
	db      *gorm.DB
	storage AssetRenamer
	ramp    RampEstimator
	logger  zerolog.Logger
}

// New creates a manager. storage and ramp may be nil; linking then skips the
// asset rename and previews carry no talk-over estimates.
func New(db *gorm.DB, storage AssetRenamer, ramp RampEstimator, logger zerolog.Logger) *Manager {
	return &Manager{
		db:      db,
		storage: storage,
		ramp:    ramp,
		logger:  logger.With().Str("component", "voicetrack").Logger(),
	}
}

// Break is one talk-break position within an hour.
type Break struct {
	OffsetSec  int
	ElementIdx int // index into the hour's elements, -1 for a default position
}

// ExtractBreaks finds an hour's break positions: its voice-track elements,
// or the default quarter-hour offsets when the hour has content but no
// marked breaks. An empty hour yields no breaks at all.
func ExtractBreaks(block models.HourBlock) []Break {
	if len(block.Elements) == 0 {
		return nil
	}

	var breaks []Break
	for i, elem := range block.Elements {
		if elem.Type == models.TypeVoiceTrack {
			breaks = append(breaks, Break{OffsetSec: elem.StartSec, ElementIdx: i})
		}
	}
	if len(breaks) == 0 {
		for _, off := range defaultBreakOffsets {
			breaks = append(breaks, Break{OffsetSec: off, ElementIdx: -1})
		}
	}
	return breaks
}

// breakLetter labels break i as A..Z, then AA, AB, and so on.
func breakLetter(i int) string {
	letter := ""
	for n := i; n >= 0; n = n/26 - 1 {
		letter = string(rune('A'+n%26)) + letter
	}
	return letter
}

// CreateSlots derives and stores one hour's slots from the log's resolved
// content, replacing any prior set for that hour. Returns the new slots in
// break order.
func (m *Manager) CreateSlots(ctx context.Context, log *models.DailyLog, hour int) ([]models.VoiceTrackSlot, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("%w: hour %d out of range", ErrValidation, hour)
	}

	slots := m.buildSlots(ctx, log, hour)
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("daily_log_id = ? AND hour = ?", log.ID, hour).
			Delete(&models.VoiceTrackSlot{}).Error; err != nil {
			return fmt.Errorf("clear hour slots: %w", err)
		}
		if len(slots) == 0 {
			return nil
		}
		if err := tx.Create(&slots).Error; err != nil {
			return fmt.Errorf("create slots: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slots, nil
}

// RebuildDay recreates the full slot set for a freshly generated log.
func (m *Manager) RebuildDay(ctx context.Context, log *models.DailyLog) ([]models.VoiceTrackSlot, error) {
	var all []models.VoiceTrackSlot
	for hour := 0; hour < 24; hour++ {
		all = append(all, m.buildSlots(ctx, log, hour)...)
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("daily_log_id = ?", log.ID).
			Delete(&models.VoiceTrackSlot{}).Error; err != nil {
			return fmt.Errorf("clear log slots: %w", err)
		}
		if len(all) == 0 {
			return nil
		}
		if err := tx.Create(&all).Error; err != nil {
			return fmt.Errorf("create slots: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("log_id", log.ID).
		Str("air_date", log.AirDate).
		Int("slots", len(all)).
		Msg("voice track slots rebuilt")
	return all, nil
}

func (m *Manager) buildSlots(ctx context.Context, log *models.DailyLog, hour int) []models.VoiceTrackSlot {
	block := log.Hours[hour]
	breaks := ExtractBreaks(block)
	if len(breaks) == 0 {
		return nil
	}

	slots := make([]models.VoiceTrackSlot, 0, len(breaks))
	for i, brk := range breaks {
		letter := breakLetter(i)
		slot := models.VoiceTrackSlot{
			ID:               uuid.NewString(),
			DailyLogID:       log.ID,
			StationID:        log.StationID,
			AirDate:          log.AirDate,
			Hour:             hour,
			BreakLetter:      letter,
			StandardizedName: models.StandardizedBreakName(hour, letter),
			OffsetSec:        brk.OffsetSec,
			Status:           models.SlotOpen,
		}

		if prev := nearestMusicBefore(block.Elements, brk.OffsetSec); prev != nil {
			slot.PrevTitle = prev.Title
			slot.PrevArtist = prev.Artist
			slot.PrevFileRef = prev.FileRef
			if m.ramp != nil && prev.FileRef != "" {
				if _, out, err := m.ramp.RampEstimates(ctx, log.StationID, prev.FileRef); err == nil {
					slot.PrevRampOutSec = out
				}
			}
		}
		if next := nearestMusicAfter(block.Elements, brk.OffsetSec); next != nil {
			slot.NextTitle = next.Title
			slot.NextArtist = next.Artist
			slot.NextFileRef = next.FileRef
			if m.ramp != nil && next.FileRef != "" {
				if in, _, err := m.ramp.RampEstimates(ctx, log.StationID, next.FileRef); err == nil {
					slot.NextRampInSec = in
				}
			}
		}

		slots = append(slots, slot)
	}
	return slots
}

// nearestMusicBefore returns the song finishing closest to (at or before)
// the break offset.
func nearestMusicBefore(elements []models.LogElement, offsetSec int) *models.LogElement {
	var found *models.LogElement
	for i := range elements {
		if elements[i].Type != models.TypeMusic {
			continue
		}
		if elements[i].EndSec <= offsetSec && (found == nil || elements[i].EndSec > found.EndSec) {
			found = &elements[i]
		}
	}
	return found
}

// nearestMusicAfter returns the song starting closest to (at or after) the
// break offset.
func nearestMusicAfter(elements []models.LogElement, offsetSec int) *models.LogElement {
	var found *models.LogElement
	for i := range elements {
		if elements[i].Type != models.TypeMusic {
			continue
		}
		if elements[i].StartSec >= offsetSec && (found == nil || elements[i].StartSec < found.StartSec) {
			found = &elements[i]
		}
	}
	return found
}

// ListSlots returns a log's slots in air order with recordings preloaded.
func (m *Manager) ListSlots(ctx context.Context, logID string) ([]models.VoiceTrackSlot, error) {
	var slots []models.VoiceTrackSlot
	err := m.db.WithContext(ctx).
		Preload("VoiceTrack").
		Where("daily_log_id = ?", logID).
		Order("hour ASC, offset_sec ASC, break_letter ASC").
		Find(&slots).Error
	if err != nil {
		return nil, err
	}
	return slots, nil
}

// AssignTalent books talent onto a slot. An open slot moves to assigned; a
// slot that already carries a linked recording keeps its status.
func (m *Manager) AssignTalent(ctx context.Context, slotID, talentID string) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.VoiceTrackSlot{}).
			Where("id = ?", slotID).
			Update("talent_id", talentID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrSlotNotFound
		}
		return tx.Model(&models.VoiceTrackSlot{}).
			Where("id = ? AND status = ?", slotID, models.SlotOpen).
			Update("status", models.SlotAssigned).Error
	})
}

// Link binds a recording to a slot: the slot moves to linked, the recording
// takes the slot's standardized name and air date, and the stored audio is
// renamed to match. The rename is an external effect; its failure warns and
// does not undo the link.
func (m *Manager) Link(ctx context.Context, slotID, voiceTrackID, actor string) error {
	var slot models.VoiceTrackSlot
	if err := m.db.WithContext(ctx).Where("id = ?", slotID).First(&slot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSlotNotFound
		}
		return err
	}

	var vt models.VoiceTrack
	if err := m.db.WithContext(ctx).Where("id = ?", voiceTrackID).First(&vt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRecordingNotFound
		}
		return err
	}
	if vt.StationID != slot.StationID {
		return fmt.Errorf("%w: recording %s belongs to a different station", ErrValidation, voiceTrackID)
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.VoiceTrackSlot{}).
			Where("id = ?", slot.ID).
			Updates(map[string]interface{}{
				"voice_track_id": vt.ID,
				"status":         models.SlotLinked,
			}).Error; err != nil {
			return fmt.Errorf("update slot: %w", err)
		}
		if err := tx.Model(&models.VoiceTrack{}).
			Where("id = ?", vt.ID).
			Updates(map[string]interface{}{
				"standardized_name": slot.StandardizedName,
				"recorded_date":     slot.AirDate,
			}).Error; err != nil {
			return fmt.Errorf("update recording: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	vt.StandardizedName = slot.StandardizedName
	vt.RecordedDate = slot.AirDate
	m.renameAsset(ctx, &slot, &vt)

	m.logger.Info().
		Str("slot_id", slot.ID).
		Str("voice_track_id", vt.ID).
		Str("standardized_name", slot.StandardizedName).
		Str("actor", actor).
		Msg("voice track linked")
	return nil
}

// renameAsset renames the audio file after the standardized break name and
// points the recording at the new path. Failures only warn.
func (m *Manager) renameAsset(ctx context.Context, slot *models.VoiceTrackSlot, vt *models.VoiceTrack) {
	if m.storage == nil || vt.FileRef == "" {
		return
	}
	newRef := standardizedFileRef(vt.FileRef, slot.AirDate, slot.StandardizedName)
	if newRef == vt.FileRef {
		return
	}

	if err := m.storage.Rename(ctx, vt.FileRef, newRef); err != nil {
		m.logger.Warn().Err(err).
			Str("voice_track_id", vt.ID).
			Str("from", vt.FileRef).
			Str("to", newRef).
			Msg("voice track rename failed, keeping original path")
		return
	}

	if err := m.db.WithContext(ctx).Model(&models.VoiceTrack{}).
		Where("id = ?", vt.ID).
		Update("file_ref", newRef).Error; err != nil {
		m.logger.Warn().Err(err).
			Str("voice_track_id", vt.ID).
			Msg("voice track path update failed after rename")
	}
}

// standardizedFileRef rebuilds a file name around the standardized break
// name, e.g. vt/raw123.wav -> vt/VT_2024-01-12_14-00_BreakA.wav.
func standardizedFileRef(oldRef, airDate, standardizedName string) string {
	dir := path.Dir(oldRef)
	ext := path.Ext(oldRef)
	name := fmt.Sprintf("VT_%s_%s%s", airDate, standardizedName, ext)
	if dir == "." {
		return name
	}
	return path.Join(dir, name)
}
