/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package importer pulls a station's library out of a legacy traffic
// system's Postgres database: cart library, traffic orders and recorded
// voice tracks. Reads go straight over database/sql; the legacy schema
// is never migrated, only queried.
package importer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/events"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

// Options configures an import run.
type Options struct {
	// DSN is the lib/pq connection string for the legacy database.
	DSN string
	// TargetStationID receives the imported records.
	TargetStationID string
	// DryRun reads and converts everything but writes nothing.
	DryRun bool

	SkipContent     bool
	SkipCampaigns   bool
	SkipVoiceTracks bool
}

// Progress reports where a run currently is. Total is 0 while a phase's
// row count is still unknown.
type Progress struct {
	Phase   string `json:"phase"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// ProgressCallback receives progress updates during a run.
type ProgressCallback func(Progress)

// Stats summarizes a finished run.
type Stats struct {
	DryRun              bool           `json:"dry_run"`
	ContentImported     int            `json:"content_imported"`
	CampaignsImported   int            `json:"campaigns_imported"`
	VoiceTracksImported int            `json:"voice_tracks_imported"`
	Skipped             map[string]int `json:"skipped,omitempty"`
	Warnings            []string       `json:"warnings,omitempty"`
}

// Map flattens the stats for the jsonb column on ImportJob.
func (s *Stats) Map() map[string]any {
	return map[string]any{
		"dry_run":               s.DryRun,
		"content_imported":      s.ContentImported,
		"campaigns_imported":    s.CampaignsImported,
		"voice_tracks_imported": s.VoiceTracksImported,
		"skipped":               s.Skipped,
		"warnings":              s.Warnings,
	}
}

func (s *Stats) skip(reason string) {
	if s.Skipped == nil {
		s.Skipped = make(map[string]int)
	}
	s.Skipped[reason]++
}

const maxWarnings = 20

func (s *Stats) warn(format string, args ...any) {
	if len(s.Warnings) >= maxWarnings {
		return
	}
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
	if len(s.Warnings) == maxWarnings {
		s.Warnings = append(s.Warnings, "further warnings suppressed")
	}
}

// groupTypes maps legacy cart group names onto content types. Unknown
// groups are skipped rather than guessed.
var groupTypes = map[string]models.ContentType{
	"MUSIC":    models.TypeMusic,
	"SPOTS":    models.TypeAd,
	"ADS":      models.TypeAd,
	"PSA":      models.TypePSA,
	"IDS":      models.TypeStationID,
	"LEGAL":    models.TypeStationID,
	"LINERS":   models.TypeLiner,
	"PROMOS":   models.TypePromo,
	"NEWS":     models.TypeNews,
	"BEDS":     models.TypeBed,
	"FILL":     models.TypeInterstitial,
	"SWEEPERS": models.TypeLiner,
}

// Importer copies a legacy library into the muninn database.
type Importer struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// New creates an importer. bus may be nil; the CLI runs without one.
func New(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Importer {
	return &Importer{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "importer").Logger(),
	}
}

// Run executes an import. Unless DryRun is set, an ImportJob row records
// the run and its outcome.
func (i *Importer) Run(ctx context.Context, opts Options, progress ProgressCallback) (*Stats, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("importer: dsn is required")
	}
	if opts.TargetStationID == "" {
		return nil, fmt.Errorf("importer: target station is required")
	}
	if progress == nil {
		progress = func(Progress) {}
	}

	stats := &Stats{DryRun: opts.DryRun}

	var job *models.ImportJob
	if !opts.DryRun {
		job = &models.ImportJob{
			ID:        uuid.NewString(),
			Source:    "legacy",
			Status:    "running",
			StartedAt: time.Now(),
		}
		if err := i.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, fmt.Errorf("record import job: %w", err)
		}
	}

	err := i.run(ctx, opts, progress, stats)

	if job != nil {
		now := time.Now()
		job.FinishedAt = &now
		job.Stats = stats.Map()
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
		} else {
			job.Status = "complete"
		}
		if updateErr := i.db.WithContext(ctx).Save(job).Error; updateErr != nil {
			i.logger.Error().Err(updateErr).Str("job_id", job.ID).Msg("failed to update import job")
		}
	}

	if err != nil {
		return stats, err
	}

	if i.bus != nil && !opts.DryRun {
		payload := events.Payload{
			"station_id":   opts.TargetStationID,
			"content":      stats.ContentImported,
			"campaigns":    stats.CampaignsImported,
			"voice_tracks": stats.VoiceTracksImported,
		}
		if job != nil {
			payload["job_id"] = job.ID
		}
		i.bus.Publish(events.EventImportDone, payload)
	}

	return stats, nil
}

func (i *Importer) run(ctx context.Context, opts Options, progress ProgressCallback, stats *Stats) error {
	progress(Progress{Phase: "connect", Message: "connecting to legacy database"})

	legacy, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return fmt.Errorf("open legacy database: %w", err)
	}
	defer legacy.Close()

	if err := legacy.PingContext(ctx); err != nil {
		return fmt.Errorf("ping legacy database: %w", err)
	}

	if !opts.SkipContent {
		if err := i.importContent(ctx, legacy, opts, progress, stats); err != nil {
			return fmt.Errorf("import content: %w", err)
		}
	}
	if !opts.SkipCampaigns {
		if err := i.importCampaigns(ctx, legacy, opts, progress, stats); err != nil {
			return fmt.Errorf("import campaigns: %w", err)
		}
	}
	if !opts.SkipVoiceTracks {
		if err := i.importVoiceTracks(ctx, legacy, opts, progress, stats); err != nil {
			return fmt.Errorf("import voice tracks: %w", err)
		}
	}

	progress(Progress{Phase: "done"})
	i.logger.Info().
		Bool("dry_run", opts.DryRun).
		Int("content", stats.ContentImported).
		Int("campaigns", stats.CampaignsImported).
		Int("voice_tracks", stats.VoiceTracksImported).
		Msg("legacy import finished")
	return nil
}

// legacyCart is one row of the legacy cart library.
type legacyCart struct {
	CartNumber int64
	GroupName  string
	Title      string
	Artist     sql.NullString
	LengthMS   int64
	Filename   sql.NullString
	Enabled    bool
}

// convertCart maps a cart onto a content item. Returns false when the
// cart cannot be scheduled here.
func convertCart(cart legacyCart, stationID string, stats *Stats) (*models.ContentItem, bool) {
	contentType, ok := groupTypes[strings.ToUpper(strings.TrimSpace(cart.GroupName))]
	if !ok {
		stats.skip("unknown_group")
		stats.warn("cart %d: unknown group %q", cart.CartNumber, cart.GroupName)
		return nil, false
	}
	if cart.LengthMS <= 0 {
		stats.skip("zero_length")
		return nil, false
	}

	cartNumber := cart.CartNumber
	return &models.ContentItem{
		ID:           uuid.NewString(),
		StationID:    stationID,
		Type:         contentType,
		Title:        cart.Title,
		Artist:       cart.Artist.String,
		DurationSec:  int((cart.LengthMS + 500) / 1000),
		FileRef:      cart.Filename.String,
		AutomationID: &cartNumber,
		Active:       cart.Enabled,
	}, true
}

func (i *Importer) importContent(ctx context.Context, legacy *sql.DB, opts Options, progress ProgressCallback, stats *Stats) error {
	var total int
	if err := legacy.QueryRowContext(ctx, `SELECT COUNT(*) FROM carts`).Scan(&total); err != nil {
		return fmt.Errorf("count carts: %w", err)
	}
	progress(Progress{Phase: "content", Total: total})

	existing, err := i.existingFileRefs(ctx, opts.TargetStationID)
	if err != nil {
		return err
	}

	rows, err := legacy.QueryContext(ctx, `
		SELECT cart_number, group_name, title, artist, length_msec, filename, enabled
		FROM carts
		ORDER BY cart_number`)
	if err != nil {
		return fmt.Errorf("query carts: %w", err)
	}
	defer rows.Close()

	seen := 0
	for rows.Next() {
		seen++
		var cart legacyCart
		if err := rows.Scan(&cart.CartNumber, &cart.GroupName, &cart.Title, &cart.Artist, &cart.LengthMS, &cart.Filename, &cart.Enabled); err != nil {
			stats.skip("bad_cart_row")
			stats.warn("cart row %d: %v", seen, err)
			continue
		}

		item, ok := convertCart(cart, opts.TargetStationID, stats)
		if !ok {
			continue
		}
		if item.FileRef != "" && existing[item.FileRef] {
			stats.skip("duplicate_content")
			continue
		}

		if !opts.DryRun {
			if err := i.db.WithContext(ctx).Create(item).Error; err != nil {
				stats.skip("content_write_failed")
				stats.warn("cart %d: %v", cart.CartNumber, err)
				continue
			}
		}
		existing[item.FileRef] = true
		stats.ContentImported++

		if seen%100 == 0 {
			progress(Progress{Phase: "content", Current: seen, Total: total})
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read carts: %w", err)
	}

	progress(Progress{Phase: "content", Current: seen, Total: total})
	return nil
}

// legacyOrder is one row of the legacy traffic order book.
type legacyOrder struct {
	OrderID      int64
	Advertiser   string
	Description  sql.NullString
	StartDate    time.Time
	EndDate      time.Time
	Priority     sql.NullInt64
	MaxSpotsHour sql.NullInt64
	Active       bool
}

func convertOrder(order legacyOrder, stationID string) *models.Campaign {
	name := strings.TrimSpace(order.Description.String)
	if name == "" {
		name = order.Advertiser
	}
	maxPerHour := int(order.MaxSpotsHour.Int64)
	if maxPerHour <= 0 {
		maxPerHour = 2
	}
	return &models.Campaign{
		ID:              uuid.NewString(),
		StationID:       stationID,
		Name:            name,
		Advertiser:      order.Advertiser,
		Priority:        int(order.Priority.Int64),
		StartDate:       order.StartDate,
		EndDate:         order.EndDate,
		MaxPlaysPerHour: maxPerHour,
		Active:          order.Active,
	}
}

func (i *Importer) importCampaigns(ctx context.Context, legacy *sql.DB, opts Options, progress ProgressCallback, stats *Stats) error {
	var total int
	if err := legacy.QueryRowContext(ctx, `SELECT COUNT(*) FROM traffic_orders`).Scan(&total); err != nil {
		return fmt.Errorf("count traffic orders: %w", err)
	}
	progress(Progress{Phase: "campaigns", Total: total})

	var names []string
	if err := i.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("station_id = ?", opts.TargetStationID).
		Pluck("name", &names).Error; err != nil {
		return fmt.Errorf("list existing campaigns: %w", err)
	}
	existing := make(map[string]bool, len(names))
	for _, name := range names {
		existing[name] = true
	}

	rows, err := legacy.QueryContext(ctx, `
		SELECT order_id, advertiser, description, start_date, end_date, priority, max_spots_hour, active
		FROM traffic_orders
		ORDER BY order_id`)
	if err != nil {
		return fmt.Errorf("query traffic orders: %w", err)
	}
	defer rows.Close()

	seen := 0
	for rows.Next() {
		seen++
		var order legacyOrder
		if err := rows.Scan(&order.OrderID, &order.Advertiser, &order.Description, &order.StartDate, &order.EndDate, &order.Priority, &order.MaxSpotsHour, &order.Active); err != nil {
			stats.skip("bad_order_row")
			stats.warn("order row %d: %v", seen, err)
			continue
		}

		campaign := convertOrder(order, opts.TargetStationID)
		if existing[campaign.Name] {
			stats.skip("duplicate_campaign")
			continue
		}

		if !opts.DryRun {
			if err := i.db.WithContext(ctx).Create(campaign).Error; err != nil {
				stats.skip("campaign_write_failed")
				stats.warn("order %d: %v", order.OrderID, err)
				continue
			}
		}
		existing[campaign.Name] = true
		stats.CampaignsImported++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read traffic orders: %w", err)
	}

	progress(Progress{Phase: "campaigns", Current: seen, Total: total})
	return nil
}

// legacyVoiceTrack is one recorded track in the legacy system.
type legacyVoiceTrack struct {
	VTID        int64
	AirDate     time.Time
	Hour        int
	BreakLetter string
	Filename    sql.NullString
	CartNumber  sql.NullInt64
	LengthMS    int64
	Take        sql.NullInt64
	Final       bool
}

func convertVoiceTrack(vt legacyVoiceTrack, stationID string, stats *Stats) (*models.VoiceTrack, bool) {
	if vt.Hour < 0 || vt.Hour > 23 || vt.BreakLetter == "" {
		stats.skip("bad_voice_track_slot")
		stats.warn("voice track %d: bad slot hour=%d break=%q", vt.VTID, vt.Hour, vt.BreakLetter)
		return nil, false
	}

	take := int(vt.Take.Int64)
	if take <= 0 {
		take = 1
	}

	track := &models.VoiceTrack{
		ID:               uuid.NewString(),
		StationID:        stationID,
		StandardizedName: models.StandardizedBreakName(vt.Hour, strings.ToUpper(vt.BreakLetter)),
		RecordedDate:     vt.AirDate.Format("2006-01-02"),
		Take:             take,
		Final:            vt.Final,
		FileRef:          vt.Filename.String,
		DurationSec:      int((vt.LengthMS + 500) / 1000),
	}
	if vt.CartNumber.Valid {
		cart := vt.CartNumber.Int64
		track.AutomationID = &cart
	}
	return track, true
}

func (i *Importer) importVoiceTracks(ctx context.Context, legacy *sql.DB, opts Options, progress ProgressCallback, stats *Stats) error {
	var total int
	if err := legacy.QueryRowContext(ctx, `SELECT COUNT(*) FROM voice_tracks`).Scan(&total); err != nil {
		return fmt.Errorf("count voice tracks: %w", err)
	}
	progress(Progress{Phase: "voice_tracks", Total: total})

	rows, err := legacy.QueryContext(ctx, `
		SELECT vt_id, air_date, hour, break_letter, filename, cart_number, length_msec, take, final
		FROM voice_tracks
		ORDER BY air_date, hour, break_letter, take`)
	if err != nil {
		return fmt.Errorf("query voice tracks: %w", err)
	}
	defer rows.Close()

	seen := 0
	for rows.Next() {
		seen++
		var vt legacyVoiceTrack
		if err := rows.Scan(&vt.VTID, &vt.AirDate, &vt.Hour, &vt.BreakLetter, &vt.Filename, &vt.CartNumber, &vt.LengthMS, &vt.Take, &vt.Final); err != nil {
			stats.skip("bad_voice_track_row")
			stats.warn("voice track row %d: %v", seen, err)
			continue
		}

		track, ok := convertVoiceTrack(vt, opts.TargetStationID, stats)
		if !ok {
			continue
		}

		var count int64
		if err := i.db.WithContext(ctx).Model(&models.VoiceTrack{}).
			Where("station_id = ? AND standardized_name = ? AND recorded_date = ? AND take = ?",
				track.StationID, track.StandardizedName, track.RecordedDate, track.Take).
			Count(&count).Error; err != nil {
			return fmt.Errorf("check existing voice track: %w", err)
		}
		if count > 0 {
			stats.skip("duplicate_voice_track")
			continue
		}

		if !opts.DryRun {
			if err := i.db.WithContext(ctx).Create(track).Error; err != nil {
				stats.skip("voice_track_write_failed")
				stats.warn("voice track %d: %v", vt.VTID, err)
				continue
			}
		}
		stats.VoiceTracksImported++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read voice tracks: %w", err)
	}

	progress(Progress{Phase: "voice_tracks", Current: seen, Total: total})
	return nil
}

func (i *Importer) existingFileRefs(ctx context.Context, stationID string) (map[string]bool, error) {
	var refs []string
	if err := i.db.WithContext(ctx).Model(&models.ContentItem{}).
		Where("station_id = ?", stationID).
		Pluck("file_ref", &refs).Error; err != nil {
		return nil, fmt.Errorf("list existing content: %w", err)
	}
	existing := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if ref != "" {
			existing[ref] = true
		}
	}
	return existing, nil
}
