/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package integrity scans for cross-table inconsistencies the schema
// cannot rule out on its own: slot links to vanished recordings, slots
// left behind by retired logs, catalog entries that can never reach the
// playout system. Every finding is report-only until an explicit repair
// is requested.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/models"
)

// ErrUnsupportedFinding rejects repair requests for finding types the
// service does not know.
var ErrUnsupportedFinding = errors.New("integrity: unsupported finding type")

type FindingType string

const (
	FindingSlotMissingRecording   FindingType = "slot_missing_recording"
	FindingSlotStationMismatch    FindingType = "slot_station_mismatch"
	FindingSlotRetiredLog         FindingType = "slot_retired_log"
	FindingContentUnplayable      FindingType = "content_unplayable"
	FindingOrphanPlayHistory      FindingType = "orphan_play_history"
	FindingCampaignFlightInverted FindingType = "campaign_flight_inverted"
)

type Finding struct {
	ID         string         `json:"id"`
	Type       FindingType    `json:"type"`
	Severity   string         `json:"severity"`
	Summary    string         `json:"summary"`
	StationID  string         `json:"station_id,omitempty"`
	ResourceID string         `json:"resource_id"`
	Repairable bool           `json:"repairable"`
	Details    map[string]any `json:"details,omitempty"`
}

type Report struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Total       int                 `json:"total"`
	ByType      map[FindingType]int `json:"by_type"`
	Findings    []Finding           `json:"findings"`
}

type RepairInput struct {
	Type       FindingType `json:"type"`
	ResourceID string      `json:"resource_id"`
}

type RepairResult struct {
	Changed bool           `json:"changed"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewService(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "integrity").Logger(),
	}
}

// Scan runs every check and aggregates the findings.
func (s *Service) Scan(ctx context.Context) (*Report, error) {
	findings := make([]Finding, 0, 32)

	for _, scan := range []func(context.Context) ([]Finding, error){
		s.scanSlotsMissingRecording,
		s.scanSlotStationMismatch,
		s.scanRetiredLogSlots,
		s.scanUnplayableContent,
		s.scanOrphanPlayHistory,
		s.scanInvertedCampaignFlights,
	} {
		added, err := scan(ctx)
		if err != nil {
			return nil, err
		}
		findings = append(findings, added...)
	}

	byType := make(map[FindingType]int)
	for _, f := range findings {
		byType[f.Type]++
	}

	report := &Report{
		GeneratedAt: time.Now().UTC(),
		Total:       len(findings),
		ByType:      byType,
		Findings:    findings,
	}

	if report.Total > 0 {
		s.logger.Warn().Int("total_findings", report.Total).Interface("by_type", byType).Msg("integrity scan completed with findings")
	} else {
		s.logger.Info().Msg("integrity scan completed with no findings")
	}

	return report, nil
}

// Repair applies the fix for a single finding. Repairs re-verify the
// problem first, so acting on a stale report is harmless.
func (s *Service) Repair(ctx context.Context, input RepairInput) (RepairResult, error) {
	switch input.Type {
	case FindingSlotMissingRecording, FindingSlotStationMismatch:
		return s.repairUnlinkSlot(ctx, input)
	case FindingSlotRetiredLog:
		return s.repairRetiredLogSlot(ctx, input)
	case FindingContentUnplayable:
		return s.repairUnplayableContent(ctx, input)
	case FindingOrphanPlayHistory:
		return s.repairOrphanPlayHistory(ctx, input)
	case FindingCampaignFlightInverted:
		return s.repairInvertedCampaignFlight(ctx, input)
	default:
		return RepairResult{}, fmt.Errorf("%w: %s", ErrUnsupportedFinding, input.Type)
	}
}

// scanSlotsMissingRecording finds slots claiming a linked recording
// that is gone or was never set.
func (s *Service) scanSlotsMissingRecording(ctx context.Context) ([]Finding, error) {
	type row struct {
		ID               string
		StationID        string
		AirDate          string
		StandardizedName string
		VoiceTrackID     *string
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Table("voice_track_slots vts").
		Select("vts.id, vts.station_id, vts.air_date, vts.standardized_name, vts.voice_track_id").
		Joins("LEFT JOIN voice_tracks vt ON vt.id = vts.voice_track_id").
		Where("vts.status = ?", models.SlotLinked).
		Where("vts.voice_track_id IS NULL OR vt.id IS NULL").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		recordingID := ""
		if r.VoiceTrackID != nil {
			recordingID = *r.VoiceTrackID
		}
		findings = append(findings, Finding{
			ID:         findingID(FindingSlotMissingRecording, r.ID),
			Type:       FindingSlotMissingRecording,
			Severity:   "high",
			Summary:    "Linked slot references a missing recording",
			StationID:  r.StationID,
			ResourceID: r.ID,
			Repairable: true,
			Details: map[string]any{
				"air_date":          r.AirDate,
				"standardized_name": r.StandardizedName,
				"voice_track_id":    recordingID,
			},
		})
	}
	return findings, nil
}

// scanSlotStationMismatch finds slots linked to a recording owned by a
// different station.
func (s *Service) scanSlotStationMismatch(ctx context.Context) ([]Finding, error) {
	type row struct {
		ID               string
		StationID        string
		TrackStationID   string
		StandardizedName string
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Table("voice_track_slots vts").
		Select("vts.id, vts.station_id, vt.station_id AS track_station_id, vts.standardized_name").
		Joins("JOIN voice_tracks vt ON vt.id = vts.voice_track_id").
		Where("vts.station_id <> vt.station_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		findings = append(findings, Finding{
			ID:         findingID(FindingSlotStationMismatch, r.ID),
			Type:       FindingSlotStationMismatch,
			Severity:   "high",
			Summary:    "Slot is linked to another station's recording",
			StationID:  r.StationID,
			ResourceID: r.ID,
			Repairable: true,
			Details: map[string]any{
				"standardized_name": r.StandardizedName,
				"track_station_id":  r.TrackStationID,
			},
		})
	}
	return findings, nil
}

// scanRetiredLogSlots finds slots whose daily log was retired by a
// regeneration. Slot rebuilds clear the new log's slots only, so the
// retired day's slots stay behind until reaped here.
func (s *Service) scanRetiredLogSlots(ctx context.Context) ([]Finding, error) {
	type row struct {
		ID         string
		StationID  string
		AirDate    string
		DailyLogID string
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Table("voice_track_slots vts").
		Select("vts.id, vts.station_id, vts.air_date, vts.daily_log_id").
		Joins("LEFT JOIN daily_logs d ON d.id = vts.daily_log_id AND d.deleted_at IS NULL").
		Where("d.id IS NULL").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		findings = append(findings, Finding{
			ID:         findingID(FindingSlotRetiredLog, r.ID),
			Type:       FindingSlotRetiredLog,
			Severity:   "medium",
			Summary:    "Slot belongs to a retired daily log",
			StationID:  r.StationID,
			ResourceID: r.ID,
			Repairable: true,
			Details: map[string]any{
				"air_date":     r.AirDate,
				"daily_log_id": r.DailyLogID,
			},
		})
	}
	return findings, nil
}

// scanUnplayableContent finds active catalog entries with no file
// reference and no automation id. These can be scheduled but always
// drop out of the wire log at publish time.
func (s *Service) scanUnplayableContent(ctx context.Context) ([]Finding, error) {
	type row struct {
		ID        string
		StationID string
		Type      string
		Title     string
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Table("content_items").
		Select("id, station_id, type, title").
		Where("active = ?", true).
		Where("(file_ref IS NULL OR file_ref = '') AND automation_id IS NULL").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		findings = append(findings, Finding{
			ID:         findingID(FindingContentUnplayable, r.ID),
			Type:       FindingContentUnplayable,
			Severity:   "medium",
			Summary:    "Active content has neither file reference nor automation id",
			StationID:  r.StationID,
			ResourceID: r.ID,
			Repairable: true,
			Details: map[string]any{
				"content_type": r.Type,
				"title":        r.Title,
			},
		})
	}
	return findings, nil
}

// scanOrphanPlayHistory finds as-played rows pointing at content that
// no longer exists. They poison artist-separation lookback with rows
// that can never be traced back.
func (s *Service) scanOrphanPlayHistory(ctx context.Context) ([]Finding, error) {
	type row struct {
		ID            string
		StationID     string
		ContentItemID string
		Title         string
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Table("play_histories ph").
		Select("ph.id, ph.station_id, ph.content_item_id, ph.title").
		Joins("LEFT JOIN content_items ci ON ci.id = ph.content_item_id").
		Where("ph.content_item_id <> ''").
		Where("ci.id IS NULL").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		findings = append(findings, Finding{
			ID:         findingID(FindingOrphanPlayHistory, r.ID),
			Type:       FindingOrphanPlayHistory,
			Severity:   "low",
			Summary:    "Play history references deleted content",
			StationID:  r.StationID,
			ResourceID: r.ID,
			Repairable: true,
			Details: map[string]any{
				"content_item_id": r.ContentItemID,
				"title":           r.Title,
			},
		})
	}
	return findings, nil
}

// scanInvertedCampaignFlights finds active campaigns whose flight ends
// before it starts. The selection waterfall would never pick them, which
// reads as silent underdelivery.
func (s *Service) scanInvertedCampaignFlights(ctx context.Context) ([]Finding, error) {
	var campaigns []models.Campaign
	if err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Where("end_date < start_date").
		Find(&campaigns).Error; err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(campaigns))
	for _, c := range campaigns {
		findings = append(findings, Finding{
			ID:         findingID(FindingCampaignFlightInverted, c.ID),
			Type:       FindingCampaignFlightInverted,
			Severity:   "medium",
			Summary:    "Campaign flight ends before it starts",
			StationID:  c.StationID,
			ResourceID: c.ID,
			Repairable: true,
			Details: map[string]any{
				"name":       c.Name,
				"start_date": c.StartDate.Format("2006-01-02"),
				"end_date":   c.EndDate.Format("2006-01-02"),
			},
		})
	}
	return findings, nil
}

// repairUnlinkSlot clears a broken recording link. The slot drops back
// to assigned when talent is still attached, otherwise to open.
func (s *Service) repairUnlinkSlot(ctx context.Context, input RepairInput) (RepairResult, error) {
	var slot models.VoiceTrackSlot
	if err := s.db.WithContext(ctx).First(&slot, "id = ?", input.ResourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RepairResult{Changed: false, Message: "slot already removed"}, nil
		}
		return RepairResult{}, err
	}

	broken := slot.Status == models.SlotLinked && slot.VoiceTrackID == nil
	if slot.VoiceTrackID != nil {
		var track models.VoiceTrack
		err := s.db.WithContext(ctx).First(&track, "id = ?", *slot.VoiceTrackID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			broken = true
		case err != nil:
			return RepairResult{}, err
		case track.StationID != slot.StationID:
			broken = true
		}
	}
	if !broken {
		return RepairResult{Changed: false, Message: "slot link is intact"}, nil
	}

	status := models.SlotOpen
	if slot.TalentID != nil {
		status = models.SlotAssigned
	}
	if err := s.db.WithContext(ctx).Model(&models.VoiceTrackSlot{}).
		Where("id = ?", slot.ID).
		Updates(map[string]any{"voice_track_id": nil, "status": status}).Error; err != nil {
		return RepairResult{}, err
	}

	return RepairResult{
		Changed: true,
		Message: "cleared broken recording link",
		Details: map[string]any{"status": string(status)},
	}, nil
}

// repairRetiredLogSlot deletes a slot left behind by a regenerated day.
func (s *Service) repairRetiredLogSlot(ctx context.Context, input RepairInput) (RepairResult, error) {
	var slot models.VoiceTrackSlot
	if err := s.db.WithContext(ctx).First(&slot, "id = ?", input.ResourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RepairResult{Changed: false, Message: "slot already removed"}, nil
		}
		return RepairResult{}, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.DailyLog{}).
		Where("id = ?", slot.DailyLogID).
		Count(&count).Error; err != nil {
		return RepairResult{}, err
	}
	if count > 0 {
		return RepairResult{Changed: false, Message: "daily log exists; finding already resolved"}, nil
	}

	if err := s.db.WithContext(ctx).Delete(&slot).Error; err != nil {
		return RepairResult{}, err
	}
	return RepairResult{Changed: true, Message: "deleted slot of retired log"}, nil
}

// repairUnplayableContent deactivates content that cannot reach the
// playout system, so selection stops scheduling it.
func (s *Service) repairUnplayableContent(ctx context.Context, input RepairInput) (RepairResult, error) {
	var item models.ContentItem
	if err := s.db.WithContext(ctx).First(&item, "id = ?", input.ResourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RepairResult{Changed: false, Message: "content already removed"}, nil
		}
		return RepairResult{}, err
	}
	if item.FileRef != "" || item.AutomationID != nil {
		return RepairResult{Changed: false, Message: "content is playable again"}, nil
	}
	if !item.Active {
		return RepairResult{Changed: false, Message: "content already inactive"}, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.ContentItem{}).
		Where("id = ?", item.ID).
		Update("active", false).Error; err != nil {
		return RepairResult{}, err
	}
	return RepairResult{
		Changed: true,
		Message: "deactivated unplayable content",
		Details: map[string]any{"title": item.Title},
	}, nil
}

// repairOrphanPlayHistory deletes a history row whose content is gone.
func (s *Service) repairOrphanPlayHistory(ctx context.Context, input RepairInput) (RepairResult, error) {
	var row models.PlayHistory
	if err := s.db.WithContext(ctx).First(&row, "id = ?", input.ResourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RepairResult{Changed: false, Message: "history row already removed"}, nil
		}
		return RepairResult{}, err
	}

	if row.ContentItemID != "" {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.ContentItem{}).
			Where("id = ?", row.ContentItemID).
			Count(&count).Error; err != nil {
			return RepairResult{}, err
		}
		if count > 0 {
			return RepairResult{Changed: false, Message: "content exists; finding already resolved"}, nil
		}
	}

	if err := s.db.WithContext(ctx).Delete(&row).Error; err != nil {
		return RepairResult{}, err
	}
	return RepairResult{Changed: true, Message: "deleted orphan play history row"}, nil
}

// repairInvertedCampaignFlight deactivates a campaign with an impossible
// flight window rather than guessing which date was intended.
func (s *Service) repairInvertedCampaignFlight(ctx context.Context, input RepairInput) (RepairResult, error) {
	var campaign models.Campaign
	if err := s.db.WithContext(ctx).First(&campaign, "id = ?", input.ResourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RepairResult{Changed: false, Message: "campaign already removed"}, nil
		}
		return RepairResult{}, err
	}
	if !campaign.EndDate.Before(campaign.StartDate) {
		return RepairResult{Changed: false, Message: "flight window is valid again"}, nil
	}
	if !campaign.Active {
		return RepairResult{Changed: false, Message: "campaign already inactive"}, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ?", campaign.ID).
		Update("active", false).Error; err != nil {
		return RepairResult{}, err
	}
	return RepairResult{
		Changed: true,
		Message: "deactivated campaign with inverted flight",
		Details: map[string]any{"name": campaign.Name},
	}, nil
}

func findingID(t FindingType, resourceID string) string {
	return fmt.Sprintf("%s|%s", t, resourceID)
}
