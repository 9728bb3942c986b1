/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package analytics

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/dailylog"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.DailyLog{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func statsFixture() *models.DailyLog {
	log := &models.DailyLog{
		ID:             uuid.NewString(),
		StationID:      uuid.NewString(),
		AirDate:        "2024-03-15",
		Status:         models.LogStatusGenerated,
		RevisionNumber: 3,
		Conflicts: models.AdvisoryList{
			{Hour: 6, Code: models.AdvisoryNoContent, Detail: "nothing to pick"},
			{Hour: 7, Code: models.AdvisoryOverlap, Detail: "hard start snapped"},
		},
		Oversell: models.AdvisoryList{
			{Hour: 8, Code: models.AdvisoryOversell, Detail: "ad downgraded"},
		},
	}
	for h := range log.Hours {
		log.Hours[h].Hour = h
	}

	log.Hours[6] = models.HourBlock{
		Hour: 6,
		Elements: []models.LogElement{
			{Type: models.TypeMusic, DurationSec: 180, StartSec: 0, ScheduledSec: 0},
			{Type: models.TypeMusic, DurationSec: 200, StartSec: 180, ScheduledSec: 170},
			{Type: models.TypeAd, DurationSec: 30, StartSec: 380, ScheduledSec: 380, FallbackUsed: true},
			{Type: models.TypeStationID, DurationSec: 10, StartSec: 410, ScheduledSec: 400, HardStart: true},
		},
		TotalDurationSec: 3620,
	}
	log.Hours[7] = models.HourBlock{
		Hour: 7,
		Elements: []models.LogElement{
			{Type: models.TypeMusic, DurationSec: 240, StartSec: 0, ScheduledSec: 0},
			{Type: models.TypeInterstitial, DurationSec: 60, StartSec: 240, ScheduledSec: 240, Placeholder: true},
		},
		TotalDurationSec: 3500,
	}
	return log
}

func TestComputeAggregatesByType(t *testing.T) {
	stats := Compute(statsFixture())

	if stats.TotalElements != 6 {
		t.Fatalf("expected 6 elements, got %d", stats.TotalElements)
	}
	if got := stats.SecondsByType[models.TypeMusic]; got != 620 {
		t.Fatalf("expected 620 music seconds, got %d", got)
	}
	if got := stats.CountByType[models.TypeAd]; got != 1 {
		t.Fatalf("expected 1 ad, got %d", got)
	}
	if stats.TotalSeconds != 720 {
		t.Fatalf("expected 720 total seconds, got %d", stats.TotalSeconds)
	}
}

func TestComputeCountsFlagsAndAdvisories(t *testing.T) {
	stats := Compute(statsFixture())

	if stats.Fallbacks != 1 {
		t.Fatalf("expected 1 fallback, got %d", stats.Fallbacks)
	}
	if stats.Placeholders != 1 {
		t.Fatalf("expected 1 placeholder, got %d", stats.Placeholders)
	}
	if stats.HardStarts != 1 {
		t.Fatalf("expected 1 hard start, got %d", stats.HardStarts)
	}
	if stats.Omissions != 1 {
		t.Fatalf("expected 1 omission, got %d", stats.Omissions)
	}
	if stats.Advisories != 3 {
		t.Fatalf("expected 3 advisories, got %d", stats.Advisories)
	}
}

func TestComputeDriftPerHour(t *testing.T) {
	stats := Compute(statsFixture())

	if got := stats.Hours[6].DriftSec; got != 20 {
		t.Fatalf("expected hour 6 to overrun by 20s, got %d", got)
	}
	if got := stats.Hours[7].DriftSec; got != -100 {
		t.Fatalf("expected hour 7 to run 100s short, got %d", got)
	}
	if got := stats.Hours[6].MaxShiftSec; got != 10 {
		t.Fatalf("expected max shift 10s in hour 6, got %d", got)
	}
	// Hours without content do not count as drifted.
	if got := stats.Hours[3].DriftSec; got != 0 {
		t.Fatalf("expected no drift for empty hour, got %d", got)
	}
}

func TestLogStatsLoadsFromDB(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, zerolog.Nop())

	log := statsFixture()
	if err := db.Create(log).Error; err != nil {
		t.Fatalf("create log: %v", err)
	}

	stats, err := svc.LogStats(context.Background(), log.ID)
	if err != nil {
		t.Fatalf("LogStats: %v", err)
	}
	if stats.LogID != log.ID || stats.AirDate != "2024-03-15" {
		t.Fatalf("unexpected identity %+v", stats)
	}
	if stats.RevisionNumber != 3 {
		t.Fatalf("expected revision 3, got %d", stats.RevisionNumber)
	}
}

func TestLogStatsUnknownLog(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, zerolog.Nop())

	if _, err := svc.LogStats(context.Background(), uuid.NewString()); !errors.Is(err, dailylog.ErrLogNotFound) {
		t.Fatalf("expected ErrLogNotFound, got %v", err)
	}
}
