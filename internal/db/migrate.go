/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/friendsincode/muninn_traffic/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		// Platform-level models
		&models.User{},
		&models.APIKey{},
		&models.AuditLog{},

		// Station-level models
		&models.Station{},
		&models.ContentItem{},
		&models.Campaign{},
		&models.PlayHistory{},

		// Log engine
		&models.ClockTemplate{},
		&models.DailyLog{},
		&models.LogRevision{},
		&models.VoiceTrackSlot{},
		&models.VoiceTrack{},

		// Integrations
		&models.WebhookTarget{},
		&models.WebhookLog{},
		&models.ImportJob{},
	); err != nil {
		return err
	}

	if err := applyDailyLogUniqueGuard(database); err != nil {
		return err
	}
	if err := normalizeLegacyBreakNames(database); err != nil {
		return err
	}

	return nil
}

// applyDailyLogUniqueGuard enforces "one non-deleted log per (station, air
// date)" with a partial unique index. MySQL has no partial indexes; there the
// soft-delete replace flow in the generation transaction carries the
// invariant alone.
func applyDailyLogUniqueGuard(database *gorm.DB) error {
	dialect := database.Dialector.Name()
	if dialect != "postgres" && dialect != "sqlite" {
		return nil
	}

	stmt := `
CREATE UNIQUE INDEX IF NOT EXISTS uniq_daily_logs_station_date_live
ON daily_logs (station_id, air_date)
WHERE deleted_at IS NULL
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply daily log unique guard: %w", err)
	}

	return nil
}

var breakNamePattern = regexp.MustCompile(`^\d{2}-00_Break[A-Z]+$`)

// normalizeLegacyBreakNames repairs standardized names written by older
// import tools, which lowercased the "Break" token and the letter. The name
// is the cross-day fallback join key, so casing drift breaks lookups.
func normalizeLegacyBreakNames(database *gorm.DB) error {
	type row struct {
		ID               string
		StandardizedName string
	}

	fix := func(table string) error {
		var rows []row
		if err := database.Table(table).
			Select("id, standardized_name").
			Where("standardized_name != ''").
			Find(&rows).Error; err != nil {
			return fmt.Errorf("normalize break names query %s: %w", table, err)
		}

		for _, r := range rows {
			if breakNamePattern.MatchString(r.StandardizedName) {
				continue
			}
			fixed := canonicalBreakName(r.StandardizedName)
			if fixed == "" || fixed == r.StandardizedName {
				continue
			}
			database.Table(table).
				Where("id = ?", r.ID).
				Update("standardized_name", fixed)
		}
		return nil
	}

	if err := fix("voice_tracks"); err != nil {
		return err
	}
	return fix("voice_track_slots")
}

// canonicalBreakName rewrites "14-00_breaka" style variants into
// "14-00_BreakA". Unrecognized shapes return "".
func canonicalBreakName(name string) string {
	lower := strings.ToLower(name)
	idx := strings.Index(lower, "_break")
	if idx < 0 {
		return ""
	}
	prefix := name[:idx]
	letter := strings.ToUpper(name[idx+len("_break"):])
	if prefix == "" || letter == "" {
		return ""
	}
	candidate := prefix + "_Break" + letter
	if !breakNamePattern.MatchString(candidate) {
		return ""
	}
	return candidate
}
