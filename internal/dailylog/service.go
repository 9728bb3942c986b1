/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package dailylog assembles broadcast days from clock templates and owns
// the log lifecycle: generation, structural edits under optimistic
// concurrency, locking, revision history, and as-played reconciliation.
package dailylog

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/catalog"
	"github.com/friendsincode/muninn_traffic/internal/clock"
	"github.com/friendsincode/muninn_traffic/internal/config"
	"github.com/friendsincode/muninn_traffic/internal/events"
	"github.com/friendsincode/muninn_traffic/internal/models"
	"github.com/friendsincode/muninn_traffic/internal/telemetry"
	"github.com/friendsincode/muninn_traffic/internal/voicetrack"
)

var (
	ErrLogNotFound      = errors.New("dailylog: log not found")
	ErrLogLocked        = errors.New("dailylog: log is locked")
	ErrConcurrency      = errors.New("dailylog: log changed underneath, re-fetch and retry")
	ErrRevisionNotFound = errors.New("dailylog: revision not found")
	ErrStationNotFound  = errors.New("dailylog: station not found")
	ErrNotPublishable   = errors.New("dailylog: log not publishable")
	ErrElementIndex     = errors.New("dailylog: element index out of range")
	ErrValidation       = errors.New("dailylog: invalid request")
)

// Service is the daily log assembler and lifecycle manager.
type Service struct {
	db       *gorm.DB
	cfg      *config.Config
	clocks   *clock.Service
	resolver *clock.Resolver
	catalog  *catalog.Accessor
	vt       *voicetrack.Manager
	bus      *events.Bus
	logger   zerolog.Logger
}

// New creates the service. vt and bus may be nil; generation then skips
// slot rebuilding and event publication.
func New(db *gorm.DB, cfg *config.Config, clocks *clock.Service, resolver *clock.Resolver,
	cat *catalog.Accessor, vt *voicetrack.Manager, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:       db,
		cfg:      cfg,
		clocks:   clocks,
		resolver: resolver,
		catalog:  cat,
		vt:       vt,
		bus:      bus,
		logger:   logger.With().Str("component", "dailylog").Logger(),
	}
}

// GenerateOptions tunes one generation run.
type GenerateOptions struct {
	Seed  int64  // fixed base seed; 0 derives one from station, date, and hour
	Actor string // optional user id recorded on the generate revision
}

// Generate builds the broadcast day for a station and air date: one template
// per hour (narrowest window wins), all 24 hours resolved in parallel, each
// with its own deterministic seed. An existing log for the day is retired
// (soft-deleted) and replaced atomically; a locked log refuses regeneration.
func (s *Service) Generate(ctx context.Context, stationID, airDate string, opts GenerateOptions) (*models.DailyLog, error) {
	ctx, span := telemetry.StartSpan(ctx, "dailylog", "generate")
	defer span.End()

	start := time.Now()
	log, err := s.generate(ctx, stationID, airDate, opts)
	telemetry.GenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.GenerationTotal.WithLabelValues(telemetry.OutcomeFailure).Inc()
		return nil, err
	}
	telemetry.GenerationTotal.WithLabelValues(telemetry.OutcomeSuccess).Inc()
	for _, adv := range log.Conflicts {
		telemetry.GenerationAdvisories.WithLabelValues(adv.Code).Inc()
	}
	for _, adv := range log.Oversell {
		telemetry.GenerationAdvisories.WithLabelValues(adv.Code).Inc()
	}
	return log, nil
}

func (s *Service) generate(ctx context.Context, stationID, airDate string, opts GenerateOptions) (*models.DailyLog, error) {
	day, err := time.Parse("2006-01-02", airDate)
	if err != nil {
		return nil, fmt.Errorf("%w: bad air date %q", ErrValidation, airDate)
	}

	var station models.Station
	if err := s.db.WithContext(ctx).Where("id = ?", stationID).First(&station).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStationNotFound
		}
		return nil, err
	}

	loc := time.UTC
	if station.Timezone != "" {
		if stationLoc, err := time.LoadLocation(station.Timezone); err == nil {
			loc = stationLoc
		} else {
			s.logger.Warn().Str("station_id", stationID).Str("timezone", station.Timezone).Msg("unknown timezone, using UTC")
		}
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)

	templates, err := s.clocks.TemplatesForDay(ctx, stationID)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	lookback := time.Duration(s.cfg.GenArtistSepMin) * time.Minute
	if lookback <= 0 {
		lookback = 2 * time.Hour
	}
	recent, err := s.catalog.RecentArtists(ctx, stationID, dayStart.Add(-lookback))
	if err != nil {
		return nil, fmt.Errorf("load recent artists: %w", err)
	}

	var (
		wg      sync.WaitGroup
		results [24]*clock.HourResolution
		errs    [24]error
	)
	for hour := 0; hour < 24; hour++ {
		tpl := templates[hour]
		if tpl == nil {
			continue
		}
		wg.Add(1)
		go func(hour int, tpl *models.ClockTemplate) {
			defer wg.Done()
			res, err := s.resolver.ResolveHour(ctx, clock.HourRequest{
				StationID: stationID,
				AirDate:   airDate,
				Hour:      hour,
				HourStart: dayStart.Add(time.Duration(hour) * time.Hour),
				Template:  tpl,
				Seed:      hourSeed(stationID, airDate, hour, opts.Seed),
				Recent:    recent,
			})
			results[hour], errs[hour] = res, err
		}(hour, tpl)
	}
	wg.Wait()

	if err := errors.Join(errs[:]...); err != nil {
		return nil, fmt.Errorf("resolve hours: %w", err)
	}

	var hours models.HourArray
	var conflicts, oversell models.AdvisoryList
	for hour := 0; hour < 24; hour++ {
		hours[hour].Hour = hour
		if results[hour] == nil {
			if templates[hour] == nil {
				conflicts = append(conflicts, models.Advisory{
					Hour:   hour,
					Code:   models.AdvisoryNoContent,
					Detail: "no clock template covers this hour",
				})
			}
			continue
		}
		hours[hour].Elements = results[hour].Elements
		hours[hour].TotalDurationSec = results[hour].TotalDurationSec
		for _, adv := range results[hour].Advisories {
			if adv.Code == models.AdvisoryOversell {
				oversell = append(oversell, adv)
			} else {
				conflicts = append(conflicts, adv)
			}
		}
	}

	newLog := &models.DailyLog{
		ID:             uuid.NewString(),
		StationID:      stationID,
		AirDate:        airDate,
		Hours:          hours,
		Status:         models.LogStatusGenerated,
		RevisionNumber: 1,
		Conflicts:      conflicts,
		Oversell:       oversell,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.DailyLog
		err := tx.Where("station_id = ? AND air_date = ?", stationID, airDate).First(&existing).Error
		switch {
		case err == nil:
			if existing.Locked {
				return ErrLogLocked
			}
			if err := tx.Delete(&existing).Error; err != nil {
				return fmt.Errorf("retire existing log: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		if err := tx.Create(newLog).Error; err != nil {
			return fmt.Errorf("create log: %w", err)
		}
		rev := newRevision(newLog.ID, 1, snapshotOf(newLog), models.ChangeTypeGenerate,
			"generated from clock templates", opts.Actor)
		if err := tx.Create(rev).Error; err != nil {
			return fmt.Errorf("create revision: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.vt != nil {
		if _, err := s.vt.RebuildDay(ctx, newLog); err != nil {
			s.logger.Warn().Err(err).Str("log_id", newLog.ID).Msg("voice track slot rebuild failed")
		}
	}

	s.publish(events.EventLogGenerated, events.Payload{
		"log_id":     newLog.ID,
		"station_id": stationID,
		"air_date":   airDate,
	})
	s.logger.Info().
		Str("log_id", newLog.ID).
		Str("station_id", stationID).
		Str("air_date", airDate).
		Int("total_sec", newLog.TotalDurationSec()).
		Int("conflicts", len(conflicts)).
		Int("oversell", len(oversell)).
		Msg("daily log generated")

	return newLog, nil
}

// Get fetches a log by id.
func (s *Service) Get(ctx context.Context, logID string) (*models.DailyLog, error) {
	var log models.DailyLog
	err := s.db.WithContext(ctx).Where("id = ?", logID).First(&log).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLogNotFound
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// ByStationDate fetches the live (non-deleted) log for a station day.
func (s *Service) ByStationDate(ctx context.Context, stationID, airDate string) (*models.DailyLog, error) {
	var log models.DailyLog
	err := s.db.WithContext(ctx).
		Where("station_id = ? AND air_date = ?", stationID, airDate).
		First(&log).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLogNotFound
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// ValidatePublish enforces the publish gate: content present and no
// unresolved conflicts. Oversell advisories never block.
func ValidatePublish(log *models.DailyLog) error {
	if log.Empty() {
		return fmt.Errorf("%w: no content", ErrNotPublishable)
	}
	if n := len(log.Conflicts); n > 0 {
		return fmt.Errorf("%w: %d unresolved conflicts", ErrNotPublishable, n)
	}
	return nil
}

// hourSeed derives a stable per-hour seed so unchanged inputs regenerate the
// same day. A caller-fixed base seed keeps hours distinct by offset.
func hourSeed(stationID, airDate string, hour int, base int64) int64 {
	if base != 0 {
		return base + int64(hour)
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d", stationID, airDate, hour)
	return int64(h.Sum64())
}

func snapshotOf(log *models.DailyLog) models.LogSnapshot {
	return models.LogSnapshot{
		Hours:     log.Hours,
		Status:    log.Status,
		Locked:    log.Locked,
		Published: log.Published,
		Conflicts: log.Conflicts,
		Oversell:  log.Oversell,
	}
}

func newRevision(logID string, version int, snap models.LogSnapshot, changeType, summary, actor string) *models.LogRevision {
	rev := &models.LogRevision{
		ID:            uuid.NewString(),
		DailyLogID:    logID,
		VersionNumber: version,
		Snapshot:      snap,
		ChangeSummary: summary,
		ChangeType:    changeType,
	}
	if actor != "" {
		rev.ChangedByID = &actor
	}
	return rev
}

func (s *Service) publish(event events.EventType, payload events.Payload) {
	if s.bus != nil {
		s.bus.Publish(event, payload)
	}
}

// commitMutation persists a structural mutation: the revision snapshot and
// the guarded log update commit together or not at all. A lost optimistic
// race reports ErrConcurrency, unless the cause was a concurrent lock.
func (s *Service) commitMutation(ctx context.Context, log *models.DailyLog, oldRevision int, rev *models.LogRevision) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rev).Error; err != nil {
			return fmt.Errorf("create revision: %w", err)
		}
		result := tx.Model(&models.DailyLog{}).
			Where("id = ? AND revision_number = ? AND locked = ?", log.ID, oldRevision, false).
			Updates(map[string]interface{}{
				"hours":           log.Hours,
				"status":          log.Status,
				"conflicts":       log.Conflicts,
				"oversell":        log.Oversell,
				"revision_number": log.RevisionNumber,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConcurrency
		}
		return nil
	})
	if errors.Is(err, ErrConcurrency) {
		var current models.DailyLog
		if lerr := s.db.WithContext(ctx).Select("locked").Where("id = ?", log.ID).First(&current).Error; lerr == nil && current.Locked {
			return ErrLogLocked
		}
	}
	return err
}
