/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog answers content questions for the selection and publish
// paths: which items are active, which campaigns are in flight, what played
// recently. Hot lists are served from Redis when the cache is warm and fall
// back to the database transparently.
package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/cache"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

// ErrNotFound is returned when a catalog lookup matches no row.
var ErrNotFound = errors.New("catalog: not found")

// Accessor provides read access to the content catalog plus the play
// history write path.
type Accessor struct {
	db     *gorm.DB
	cache  *cache.Cache
	logger zerolog.Logger
}

// New creates a catalog accessor. The cache may be nil, in which case all
// reads hit the database.
func New(db *gorm.DB, c *cache.Cache, logger zerolog.Logger) *Accessor {
	return &Accessor{
		db:     db,
		cache:  c,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// ActiveByType returns the active content items of one type for a station
// in a stable order (title, then id).
func (a *Accessor) ActiveByType(ctx context.Context, stationID string, t models.ContentType) ([]models.ContentItem, error) {
	if a.cache != nil {
		if cached, ok := a.cache.GetContentList(ctx, stationID, string(t)); ok {
			return fromCachedItems(cached), nil
		}
	}

	var items []models.ContentItem
	err := a.db.WithContext(ctx).
		Where("station_id = ? AND type = ? AND active = ?", stationID, t, true).
		Order("title, id").
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		_ = a.cache.SetContentList(ctx, stationID, string(t), toCachedItems(items))
	}

	return items, nil
}

// EligibleMusic returns active music filtered by daypart and BPM window.
// An item with an empty daypart airs in any daypart; an item with zero BPM
// passes any window; a zero bound leaves that side unconstrained.
func (a *Accessor) EligibleMusic(ctx context.Context, stationID string, daypart models.Daypart, minBPM, maxBPM float64) ([]models.ContentItem, error) {
	items, err := a.ActiveByType(ctx, stationID, models.TypeMusic)
	if err != nil {
		return nil, err
	}

	eligible := make([]models.ContentItem, 0, len(items))
	for _, item := range items {
		if item.Daypart != "" && item.Daypart != daypart {
			continue
		}
		if item.BPM > 0 {
			if minBPM > 0 && item.BPM < minBPM {
				continue
			}
			if maxBPM > 0 && item.BPM > maxBPM {
				continue
			}
		}
		eligible = append(eligible, item)
	}

	return eligible, nil
}

// ActiveCampaigns returns the campaigns whose flight window covers the given
// date (YYYY-MM-DD, inclusive on both ends), highest priority first. Ties
// break on name then id so selection stays deterministic.
func (a *Accessor) ActiveCampaigns(ctx context.Context, stationID, date string) ([]models.Campaign, error) {
	all, err := a.allCampaigns(ctx, stationID)
	if err != nil {
		return nil, err
	}

	inFlight := make([]models.Campaign, 0, len(all))
	for _, camp := range all {
		start := camp.StartDate.Format("2006-01-02")
		end := camp.EndDate.Format("2006-01-02")
		if date < start || date > end {
			continue
		}
		inFlight = append(inFlight, camp)
	}

	sort.Slice(inFlight, func(i, j int) bool {
		if inFlight[i].Priority != inFlight[j].Priority {
			return inFlight[i].Priority > inFlight[j].Priority
		}
		if inFlight[i].Name != inFlight[j].Name {
			return inFlight[i].Name < inFlight[j].Name
		}
		return inFlight[i].ID < inFlight[j].ID
	})

	return inFlight, nil
}

func (a *Accessor) allCampaigns(ctx context.Context, stationID string) ([]models.Campaign, error) {
	if a.cache != nil {
		if cached, ok := a.cache.GetCampaignList(ctx, stationID); ok {
			return fromCachedCampaigns(cached), nil
		}
	}

	var campaigns []models.Campaign
	err := a.db.WithContext(ctx).
		Where("station_id = ? AND active = ?", stationID, true).
		Order("priority DESC, name, id").
		Find(&campaigns).Error
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		_ = a.cache.SetCampaignList(ctx, stationID, toCachedCampaigns(campaigns))
	}

	return campaigns, nil
}

// RecentArtists returns the latest play time per artist since the cutoff.
// Keys are lowercased artist names.
func (a *Accessor) RecentArtists(ctx context.Context, stationID string, since time.Time) (map[string]time.Time, error) {
	var plays []models.PlayHistory
	err := a.db.WithContext(ctx).
		Where("station_id = ? AND played_at > ? AND artist <> ''", stationID, since).
		Find(&plays).Error
	if err != nil {
		return nil, err
	}

	recent := make(map[string]time.Time, len(plays))
	for _, play := range plays {
		key := strings.ToLower(play.Artist)
		if last, ok := recent[key]; !ok || play.PlayedAt.After(last) {
			recent[key] = play.PlayedAt
		}
	}

	return recent, nil
}

// FindByFileRef looks up a content item by its file reference.
func (a *Accessor) FindByFileRef(ctx context.Context, stationID, fileRef string) (*models.ContentItem, error) {
	var item models.ContentItem
	err := a.db.WithContext(ctx).
		Where("station_id = ? AND file_ref = ?", stationID, fileRef).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByAutomationID looks up a content item by the playout system's
// numeric media id.
func (a *Accessor) FindByAutomationID(ctx context.Context, stationID string, automationID int64) (*models.ContentItem, error) {
	var item models.ContentItem
	err := a.db.WithContext(ctx).
		Where("station_id = ? AND automation_id = ?", stationID, automationID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// RecordPlays appends as-played history rows and advances each item's
// last-played marker, then invalidates the content caches for the touched
// stations so rotation ordering sees the new plays.
func (a *Accessor) RecordPlays(ctx context.Context, plays []models.PlayHistory) error {
	if len(plays) == 0 {
		return nil
	}

	stations := make(map[string]struct{})
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range plays {
			play := &plays[i]
			if play.ID == "" {
				play.ID = uuid.NewString()
			}
			if err := tx.Create(play).Error; err != nil {
				return err
			}
			if play.ContentItemID != "" {
				err := tx.Model(&models.ContentItem{}).
					Where("id = ? AND (last_played_at IS NULL OR last_played_at < ?)", play.ContentItemID, play.PlayedAt).
					Update("last_played_at", play.PlayedAt).Error
				if err != nil {
					return err
				}
			}
			stations[play.StationID] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if a.cache != nil {
		for stationID := range stations {
			_ = a.cache.InvalidateContent(ctx, stationID)
		}
	}

	a.logger.Debug().Int("count", len(plays)).Msg("recorded plays")
	return nil
}

func toCachedItems(items []models.ContentItem) []cache.CachedContentItem {
	out := make([]cache.CachedContentItem, len(items))
	for i, item := range items {
		out[i] = cache.CachedContentItem{
			ID:              item.ID,
			StationID:       item.StationID,
			Type:            string(item.Type),
			Title:           item.Title,
			Artist:          item.Artist,
			DurationSec:     item.DurationSec,
			FileRef:         item.FileRef,
			AutomationID:    item.AutomationID,
			Daypart:         string(item.Daypart),
			BPM:             item.BPM,
			RampInSec:       item.RampInSec,
			NewRelease:      item.NewRelease,
			AllowBackToBack: item.AllowBackToBack,
			CampaignID:      item.CampaignID,
			LastPlayedAt:    item.LastPlayedAt,
		}
	}
	return out
}

func fromCachedItems(cached []cache.CachedContentItem) []models.ContentItem {
	out := make([]models.ContentItem, len(cached))
	for i, item := range cached {
		out[i] = models.ContentItem{
			ID:              item.ID,
			StationID:       item.StationID,
			Type:            models.ContentType(item.Type),
			Title:           item.Title,
			Artist:          item.Artist,
			DurationSec:     item.DurationSec,
			FileRef:         item.FileRef,
			AutomationID:    item.AutomationID,
			Daypart:         models.Daypart(item.Daypart),
			BPM:             item.BPM,
			RampInSec:       item.RampInSec,
			NewRelease:      item.NewRelease,
			AllowBackToBack: item.AllowBackToBack,
			CampaignID:      item.CampaignID,
			LastPlayedAt:    item.LastPlayedAt,
			Active:          true,
		}
	}
	return out
}

func toCachedCampaigns(campaigns []models.Campaign) []cache.CachedCampaign {
	out := make([]cache.CachedCampaign, len(campaigns))
	for i, camp := range campaigns {
		out[i] = cache.CachedCampaign{
			ID:              camp.ID,
			StationID:       camp.StationID,
			Name:            camp.Name,
			Advertiser:      camp.Advertiser,
			Priority:        camp.Priority,
			StartDate:       camp.StartDate.Format("2006-01-02"),
			EndDate:         camp.EndDate.Format("2006-01-02"),
			MaxPlaysPerHour: camp.MaxPlaysPerHour,
		}
	}
	return out
}

func fromCachedCampaigns(cached []cache.CachedCampaign) []models.Campaign {
	out := make([]models.Campaign, len(cached))
	for i, camp := range cached {
		start, _ := time.Parse("2006-01-02", camp.StartDate)
		end, _ := time.Parse("2006-01-02", camp.EndDate)
		out[i] = models.Campaign{
			ID:              camp.ID,
			StationID:       camp.StationID,
			Name:            camp.Name,
			Advertiser:      camp.Advertiser,
			Priority:        camp.Priority,
			StartDate:       start,
			EndDate:         end,
			MaxPlaysPerHour: camp.MaxPlaysPerHour,
			Active:          true,
		}
	}
	return out
}
