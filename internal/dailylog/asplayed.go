/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dailylog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/muninn_traffic/internal/catalog"
	"github.com/friendsincode/muninn_traffic/internal/events"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

// AsPlayedEntry is one line of an automation reconciliation report: what
// actually aired and when. AutomationID is preferred for matching; FileRef
// is the fallback when the automation system only reports filenames.
type AsPlayedEntry struct {
	AutomationID *int64    `json:"automation_id,omitempty"`
	FileRef      string    `json:"file_ref,omitempty"`
	PlayedAt     time.Time `json:"played_at"`
}

// RecordAsPlayed reconciles an as-played report against the catalog and
// writes play history, which feeds artist separation and least-recently-
// played ordering on the next generation. Entries that match nothing in
// the catalog are skipped. Returns the number of plays recorded.
func (s *Service) RecordAsPlayed(ctx context.Context, stationID string, entries []AsPlayedEntry) (int, error) {
	plays := make([]models.PlayHistory, 0, len(entries))
	skipped := 0
	for _, entry := range entries {
		item, err := s.matchEntry(ctx, stationID, entry)
		if err != nil {
			return 0, err
		}
		if item == nil {
			skipped++
			continue
		}
		plays = append(plays, models.PlayHistory{
			ID:            uuid.NewString(),
			StationID:     stationID,
			ContentItemID: item.ID,
			Artist:        item.Artist,
			Title:         item.Title,
			Type:          item.Type,
			PlayedAt:      entry.PlayedAt,
		})
	}

	if err := s.catalog.RecordPlays(ctx, plays); err != nil {
		return 0, fmt.Errorf("record plays: %w", err)
	}

	s.publish(events.EventAsPlayed, events.Payload{
		"station_id": stationID,
		"applied":    len(plays),
		"skipped":    skipped,
	})
	s.logger.Info().
		Str("station_id", stationID).
		Int("applied", len(plays)).
		Int("skipped", skipped).
		Msg("as-played report recorded")

	return len(plays), nil
}

func (s *Service) matchEntry(ctx context.Context, stationID string, entry AsPlayedEntry) (*models.ContentItem, error) {
	if entry.AutomationID != nil {
		item, err := s.catalog.FindByAutomationID(ctx, stationID, *entry.AutomationID)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return nil, err
		}
	}
	if entry.FileRef != "" {
		item, err := s.catalog.FindByFileRef(ctx, stationID, entry.FileRef)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}
