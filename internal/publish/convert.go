/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package publish

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_traffic/internal/catalog"
	"github.com/friendsincode/muninn_traffic/internal/models"
	"github.com/friendsincode/muninn_traffic/internal/voicetrack"
)

// WireEntry is one line of the schedule pushed to the automation system:
// an absolute start instant, the automation system's numeric media id, the
// content kind, and whether playout must cut to it at the stated time.
type WireEntry struct {
	Start     time.Time `json:"start"`
	MediaID   int64     `json:"media_id"`
	Kind      string    `json:"type"`
	HardStart bool      `json:"hard_start"`
}

// Converter flattens a daily log into wire entries. Every element must end
// up with a real media id or be dropped with an advisory; the wire never
// carries a null id.
type Converter struct {
	catalog *catalog.Accessor
	vt      *voicetrack.Manager
	logger  zerolog.Logger
}

// NewConverter wires a converter. The voice-track manager may be nil for
// stations that never use talk breaks; voice-track elements then drop with
// a no_media_id advisory.
func NewConverter(cat *catalog.Accessor, vt *voicetrack.Manager, logger zerolog.Logger) *Converter {
	return &Converter{
		catalog: cat,
		vt:      vt,
		logger:  logger.With().Str("component", "publish").Logger(),
	}
}

// Convert maps a full day into wire entries sorted by start time. dayStart
// anchors hour 0 in station-local time. Dropped elements come back as
// advisories for the caller to surface; they are not persisted anywhere.
func (c *Converter) Convert(ctx context.Context, log *models.DailyLog, dayStart time.Time) ([]WireEntry, []models.Advisory, error) {
	slots, err := c.slotsByHour(ctx, log)
	if err != nil {
		return nil, nil, err
	}

	var entries []WireEntry
	var dropped []models.Advisory
	for hour := 0; hour < 24; hour++ {
		he, hd, err := c.convertHour(ctx, log, dayStart, hour, slots[hour])
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, he...)
		dropped = append(dropped, hd...)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Start.Before(entries[j].Start) })
	return entries, dropped, nil
}

// ConvertHour maps a single hour, for replaceHour publishes after an edit.
func (c *Converter) ConvertHour(ctx context.Context, log *models.DailyLog, dayStart time.Time, hour int) ([]WireEntry, []models.Advisory, error) {
	if hour < 0 || hour > 23 {
		return nil, nil, fmt.Errorf("publish: hour %d out of range", hour)
	}
	slots, err := c.slotsByHour(ctx, log)
	if err != nil {
		return nil, nil, err
	}
	entries, dropped, err := c.convertHour(ctx, log, dayStart, hour, slots[hour])
	if err != nil {
		return nil, nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Start.Before(entries[j].Start) })
	return entries, dropped, nil
}

// convertHour walks one hour's elements in order. Voice-track elements are
// matched positionally against the hour's slots: the k-th voice-track
// element takes the k-th slot, which ListSlots returns in break-letter
// order, the same order generation emitted the elements in.
func (c *Converter) convertHour(ctx context.Context, log *models.DailyLog, dayStart time.Time, hour int, slots []models.VoiceTrackSlot) ([]WireEntry, []models.Advisory, error) {
	var entries []WireEntry
	var dropped []models.Advisory

	vtIdx := 0
	for i := range log.Hours[hour].Elements {
		elem := &log.Hours[hour].Elements[i]

		var mediaID *int64
		var err error
		if elem.Type == models.TypeVoiceTrack {
			mediaID, err = c.voiceTrackMediaID(ctx, slots, vtIdx)
			vtIdx++
		} else {
			mediaID, err = c.elementMediaID(ctx, log.StationID, elem)
		}
		if err != nil {
			return nil, nil, err
		}

		if mediaID == nil {
			dropped = append(dropped, models.Advisory{
				Hour:   hour,
				Code:   models.AdvisoryNoMediaID,
				Detail: fmt.Sprintf("%s %q at %ds has no automation media id", elem.Type, elem.Title, elem.StartSec),
			})
			c.logger.Warn().
				Str("log_id", log.ID).
				Int("hour", hour).
				Str("type", string(elem.Type)).
				Str("title", elem.Title).
				Msg("dropping element without media id from wire output")
			continue
		}

		entries = append(entries, WireEntry{
			Start:     dayStart.Add(time.Duration(hour)*time.Hour + time.Duration(elem.StartSec)*time.Second),
			MediaID:   *mediaID,
			Kind:      string(elem.Type),
			HardStart: elem.HardStart,
		})
	}

	return entries, dropped, nil
}

// elementMediaID resolves a non-voice-track element. The id captured at
// generation time wins; otherwise the catalog is consulted by file
// reference. Placeholders carry neither and fall through to nil.
func (c *Converter) elementMediaID(ctx context.Context, stationID string, elem *models.LogElement) (*int64, error) {
	if elem.AutomationID != nil {
		return elem.AutomationID, nil
	}
	if elem.FileRef == "" || c.catalog == nil {
		return nil, nil
	}
	item, err := c.catalog.FindByFileRef(ctx, stationID, elem.FileRef)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up %q: %w", elem.FileRef, err)
	}
	return item.AutomationID, nil
}

// voiceTrackMediaID resolves the idx-th talk break of an hour. A linked
// slot airs its linked recording; an open slot gets one last fallback
// resolution attempt so a day can publish even when nobody linked takes
// by hand.
func (c *Converter) voiceTrackMediaID(ctx context.Context, slots []models.VoiceTrackSlot, idx int) (*int64, error) {
	if idx >= len(slots) {
		return nil, nil
	}
	slot := &slots[idx]

	if slot.Status == models.SlotLinked && slot.VoiceTrack != nil {
		return slot.VoiceTrack.AutomationID, nil
	}
	if c.vt == nil {
		return nil, nil
	}

	match, err := c.vt.ResolveSlot(ctx, slot)
	if errors.Is(err, voicetrack.ErrRecordingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve slot %s: %w", slot.StandardizedName, err)
	}
	return match.VoiceTrack.AutomationID, nil
}

// slotsByHour loads the log's slots once and groups them per hour, keeping
// ListSlots ordering within each hour.
func (c *Converter) slotsByHour(ctx context.Context, log *models.DailyLog) (map[int][]models.VoiceTrackSlot, error) {
	grouped := make(map[int][]models.VoiceTrackSlot)
	if c.vt == nil {
		return grouped, nil
	}
	slots, err := c.vt.ListSlots(ctx, log.ID)
	if err != nil {
		return nil, fmt.Errorf("list voice track slots: %w", err)
	}
	for _, s := range slots {
		grouped[s.Hour] = append(grouped[s.Hour], s)
	}
	return grouped, nil
}
