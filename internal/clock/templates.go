/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package clock

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/cache"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

// ErrTemplateNotFound is returned when a template lookup matches no row.
var ErrTemplateNotFound = errors.New("clock: template not found")

// Service manages clock templates: authoring, lookup, and the
// narrowest-window-wins mapping from hours of day to templates.
type Service struct {
	db     *gorm.DB
	cache  *cache.Cache
	logger zerolog.Logger
}

// NewService constructs a template service. The cache may be nil.
func NewService(db *gorm.DB, c *cache.Cache, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		cache:  c,
		logger: logger.With().Str("component", "clock").Logger(),
	}
}

// Create validates and stores a new template.
func (s *Service) Create(ctx context.Context, tpl *models.ClockTemplate) error {
	if err := ValidateTemplate(tpl); err != nil {
		return err
	}
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(tpl).Error; err != nil {
		return err
	}
	s.invalidate(ctx, tpl.StationID)
	s.logger.Info().Str("template_id", tpl.ID).Str("name", tpl.Name).Msg("clock template created")
	return nil
}

// Update validates and replaces an existing template.
func (s *Service) Update(ctx context.Context, tpl *models.ClockTemplate) error {
	if err := ValidateTemplate(tpl); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Model(&models.ClockTemplate{}).
		Where("id = ? AND station_id = ?", tpl.ID, tpl.StationID).
		Updates(map[string]any{
			"name":       tpl.Name,
			"start_hour": tpl.StartHour,
			"end_hour":   tpl.EndHour,
			"slots":      tpl.Slots,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTemplateNotFound
	}
	s.invalidate(ctx, tpl.StationID)
	return nil
}

// Delete removes a template.
func (s *Service) Delete(ctx context.Context, stationID, id string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND station_id = ?", id, stationID).
		Delete(&models.ClockTemplate{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTemplateNotFound
	}
	s.invalidate(ctx, stationID)
	return nil
}

// Get returns one template by id.
func (s *Service) Get(ctx context.Context, id string) (*models.ClockTemplate, error) {
	var tpl models.ClockTemplate
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

// ListByStation returns a station's templates ordered most specific first:
// narrower hour windows beat broader ones, ties break on start hour and
// age, so the first applicable template for an hour is the winner.
func (s *Service) ListByStation(ctx context.Context, stationID string) ([]models.ClockTemplate, error) {
	if s.cache != nil {
		if cached, ok := s.cache.GetClockTemplates(ctx, stationID); ok {
			return fromCachedTemplates(cached), nil
		}
	}

	var templates []models.ClockTemplate
	err := s.db.WithContext(ctx).
		Where("station_id = ?", stationID).
		Order("created_at ASC").
		Find(&templates).Error
	if err != nil {
		return nil, err
	}

	sort.SliceStable(templates, func(i, j int) bool {
		wi, wj := templates[i].WindowWidth(), templates[j].WindowWidth()
		if wi != wj {
			return wi < wj
		}
		if templates[i].StartHour != templates[j].StartHour {
			return templates[i].StartHour < templates[j].StartHour
		}
		return templates[i].CreatedAt.Before(templates[j].CreatedAt)
	})

	if s.cache != nil {
		_ = s.cache.SetClockTemplates(ctx, stationID, toCachedTemplates(templates))
	}

	return templates, nil
}

// TemplateFor picks the template applicable to an hour of day, or
// ErrTemplateNotFound when no window covers it.
func (s *Service) TemplateFor(ctx context.Context, stationID string, hour int) (*models.ClockTemplate, error) {
	templates, err := s.ListByStation(ctx, stationID)
	if err != nil {
		return nil, err
	}
	for i := range templates {
		if templates[i].AppliesTo(hour) {
			return &templates[i], nil
		}
	}
	return nil, ErrTemplateNotFound
}

// TemplatesForDay maps every hour of the day to its applicable template.
// Hours no window covers stay nil.
func (s *Service) TemplatesForDay(ctx context.Context, stationID string) ([24]*models.ClockTemplate, error) {
	var day [24]*models.ClockTemplate

	templates, err := s.ListByStation(ctx, stationID)
	if err != nil {
		return day, err
	}

	for hour := 0; hour < 24; hour++ {
		for i := range templates {
			if templates[i].AppliesTo(hour) {
				day[hour] = &templates[i]
				break
			}
		}
	}

	return day, nil
}

func (s *Service) invalidate(ctx context.Context, stationID string) {
	if s.cache != nil {
		_ = s.cache.InvalidateClocks(ctx, stationID)
	}
}

func toCachedTemplates(templates []models.ClockTemplate) []cache.CachedClockTemplate {
	out := make([]cache.CachedClockTemplate, len(templates))
	for i, tpl := range templates {
		slots := make([]cache.CachedClockSlot, len(tpl.Slots))
		for j, slot := range tpl.Slots {
			slots[j] = cache.CachedClockSlot{
				Position:           slot.Position,
				Type:               string(slot.Type),
				Count:              slot.Count,
				FallbackType:       string(slot.FallbackType),
				HardStart:          slot.HardStart,
				ScheduledOffsetSec: slot.ScheduledOffsetSec,
				FixedDurationSec:   slot.FixedDurationSec,
				Anchor:             string(slot.Anchor),
			}
		}
		out[i] = cache.CachedClockTemplate{
			ID:        tpl.ID,
			StationID: tpl.StationID,
			Name:      tpl.Name,
			StartHour: tpl.StartHour,
			EndHour:   tpl.EndHour,
			Slots:     slots,
		}
	}
	return out
}

func fromCachedTemplates(cached []cache.CachedClockTemplate) []models.ClockTemplate {
	out := make([]models.ClockTemplate, len(cached))
	for i, tpl := range cached {
		slots := make(models.ClockSlotList, len(tpl.Slots))
		for j, slot := range tpl.Slots {
			slots[j] = models.ClockSlot{
				Position:           slot.Position,
				Type:               models.ContentType(slot.Type),
				Count:              slot.Count,
				FallbackType:       models.ContentType(slot.FallbackType),
				HardStart:          slot.HardStart,
				ScheduledOffsetSec: slot.ScheduledOffsetSec,
				FixedDurationSec:   slot.FixedDurationSec,
				Anchor:             models.AnchorPosition(slot.Anchor),
			}
		}
		out[i] = models.ClockTemplate{
			ID:        tpl.ID,
			StationID: tpl.StationID,
			Name:      tpl.Name,
			StartHour: tpl.StartHour,
			EndHour:   tpl.EndHour,
			Slots:     slots,
		}
	}
	return out
}
