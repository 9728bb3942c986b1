package analysis

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/catalog"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.ContentItem{}, &models.Campaign{}, &models.PlayHistory{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func testEstimator(db *gorm.DB) *Estimator {
	return New(catalog.New(db, nil, zerolog.Nop()), nil, zerolog.Nop())
}

func createItem(t *testing.T, db *gorm.DB, stationID, fileRef string, durationSec int, rampIn float64) {
	t.Helper()
	if err := db.Create(&models.ContentItem{
		ID:          uuid.NewString(),
		StationID:   stationID,
		Type:        models.TypeMusic,
		Title:       fileRef,
		DurationSec: durationSec,
		FileRef:     fileRef,
		RampInSec:   rampIn,
		Active:      true,
	}).Error; err != nil {
		t.Fatalf("failed to create item: %v", err)
	}
}

func closeTo(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestRampEstimatesUsesMeasuredIntro(t *testing.T) {
	db := setupTestDB(t)
	stationID := uuid.NewString()
	createItem(t, db, stationID, "music/a.flac", 180, 8.5)

	in, out, err := testEstimator(db).RampEstimates(context.Background(), stationID, "music/a.flac")
	if err != nil {
		t.Fatalf("RampEstimates() error = %v", err)
	}
	if !closeTo(in, 8.5) {
		t.Errorf("rampIn = %v, want measured 8.5", in)
	}
	if !closeTo(out, 10) {
		t.Errorf("rampOut = %v, want 10", out)
	}
}

func TestRampEstimatesHeuristicIntro(t *testing.T) {
	db := setupTestDB(t)
	stationID := uuid.NewString()
	createItem(t, db, stationID, "music/b.flac", 100, 0)

	in, out, err := testEstimator(db).RampEstimates(context.Background(), stationID, "music/b.flac")
	if err != nil {
		t.Fatalf("RampEstimates() error = %v", err)
	}
	// Tenth of 100s, under the 15s cap.
	if !closeTo(in, 10) {
		t.Errorf("rampIn = %v, want 10", in)
	}
	if !closeTo(out, 10) {
		t.Errorf("rampOut = %v, want 10", out)
	}
}

func TestRampEstimatesShortItem(t *testing.T) {
	db := setupTestDB(t)
	stationID := uuid.NewString()
	createItem(t, db, stationID, "liners/c.wav", 12, 0)

	in, out, err := testEstimator(db).RampEstimates(context.Background(), stationID, "liners/c.wav")
	if err != nil {
		t.Fatalf("RampEstimates() error = %v", err)
	}
	if !closeTo(in, 1.2) {
		t.Errorf("rampIn = %v, want 1.2", in)
	}
	// Outro start is clamped to intro+5s clearance, not duration-10.
	if !closeTo(out, 12-(1.2+5)) {
		t.Errorf("rampOut = %v, want %v", out, 12-(1.2+5))
	}
}

func TestRampEstimatesUnknownFile(t *testing.T) {
	db := setupTestDB(t)

	_, _, err := testEstimator(db).RampEstimates(context.Background(), uuid.NewString(), "missing.flac")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("RampEstimates() error = %v, want catalog.ErrNotFound", err)
	}
}
