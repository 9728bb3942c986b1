package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

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

func createTestItem(t *testing.T, db *gorm.DB, item models.ContentItem) models.ContentItem {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("failed to create content item: %v", err)
	}
	return item
}

func TestActiveByTypeFiltersInactiveAndOtherTypes(t *testing.T) {
	db := setupTestDB(t)
	acc := New(db, nil, zerolog.Nop())
	stationID := uuid.NewString()

	createTestItem(t, db, models.ContentItem{StationID: stationID, Type: models.TypeMusic, Title: "Keep", Active: true})
	createTestItem(t, db, models.ContentItem{StationID: stationID, Type: models.TypeMusic, Title: "Inactive", Active: false})
	createTestItem(t, db, models.ContentItem{StationID: stationID, Type: models.TypeAd, Title: "Spot", Active: true})
	createTestItem(t, db, models.ContentItem{StationID: uuid.NewString(), Type: models.TypeMusic, Title: "OtherStation", Active: true})

	items, err := acc.ActiveByType(context.Background(), stationID, models.TypeMusic)
	if err != nil {
		t.Fatalf("ActiveByType() error = %v", err)
	}

	if len(items) != 1 {
		t.Fatalf("ActiveByType() returned %d items, want 1", len(items))
	}
	if items[0].Title != "Keep" {
		t.Errorf("ActiveByType() returned %q, want %q", items[0].Title, "Keep")
	}
}

func TestEligibleMusicDaypartAndBPM(t *testing.T) {
	db := setupTestDB(t)
	acc := New(db, nil, zerolog.Nop())
	stationID := uuid.NewString()

	createTestItem(t, db, models.ContentItem{StationID: stationID, Type: models.TypeMusic, Title: "AnyDaypart", Active: true})
	createTestItem(t, db, models.ContentItem{StationID: stationID, Type: models.TypeMusic, Title: "MorningOnly", Daypart: models.DaypartMorning, Active: true})
	createTestItem(t, db, models.ContentItem{StationID: stationID, Type: models.TypeMusic, Title: "EveningOnly", Daypart: models.DaypartEvening, Active: true})
	createTestItem(t, db, models.ContentItem{StationID: stationID, Type: models.TypeMusic, Title: "TooFast", BPM: 150, Active: true})
	createTestItem(t, db, models.ContentItem{StationID: stationID, Type: models.TypeMusic, Title: "InWindow", BPM: 120, Active: true})

	items, err := acc.EligibleMusic(context.Background(), stationID, models.DaypartMorning, 100, 130)
	if err != nil {
		t.Fatalf("EligibleMusic() error = %v", err)
	}

	got := make(map[string]bool, len(items))
	for _, item := range items {
		got[item.Title] = true
	}

	for _, want := range []string{"AnyDaypart", "MorningOnly", "InWindow"} {
		if !got[want] {
			t.Errorf("EligibleMusic() missing %q", want)
		}
	}
	if got["EveningOnly"] {
		t.Error("EligibleMusic() included wrong daypart item")
	}
	if got["TooFast"] {
		t.Error("EligibleMusic() included item outside BPM window")
	}
}

func TestActiveCampaignsFlightWindowAndPriority(t *testing.T) {
	db := setupTestDB(t)
	acc := New(db, nil, zerolog.Nop())
	stationID := uuid.NewString()

	mkCampaign := func(name string, priority int, start, end string) {
		startDate, _ := time.Parse("2006-01-02", start)
		endDate, _ := time.Parse("2006-01-02", end)
		camp := models.Campaign{
			ID:              uuid.NewString(),
			StationID:       stationID,
			Name:            name,
			Priority:        priority,
			StartDate:       startDate,
			EndDate:         endDate,
			MaxPlaysPerHour: 2,
			Active:          true,
		}
		if err := db.Create(&camp).Error; err != nil {
			t.Fatalf("failed to create campaign: %v", err)
		}
	}

	mkCampaign("Low", 1, "2024-03-01", "2024-03-31")
	mkCampaign("High", 10, "2024-03-01", "2024-03-31")
	mkCampaign("Ended", 5, "2024-02-01", "2024-02-28")
	mkCampaign("Future", 5, "2024-04-01", "2024-04-30")
	mkCampaign("LastDay", 3, "2024-02-15", "2024-03-15")

	campaigns, err := acc.ActiveCampaigns(context.Background(), stationID, "2024-03-15")
	if err != nil {
		t.Fatalf("ActiveCampaigns() error = %v", err)
	}

	if len(campaigns) != 3 {
		t.Fatalf("ActiveCampaigns() returned %d campaigns, want 3", len(campaigns))
	}
	if campaigns[0].Name != "High" || campaigns[1].Name != "LastDay" || campaigns[2].Name != "Low" {
		t.Errorf("ActiveCampaigns() order = %q, %q, %q; want High, LastDay, Low",
			campaigns[0].Name, campaigns[1].Name, campaigns[2].Name)
	}
}

func TestRecentArtistsKeepsLatestPlay(t *testing.T) {
	db := setupTestDB(t)
	acc := New(db, nil, zerolog.Nop())
	stationID := uuid.NewString()
	now := time.Now()

	plays := []models.PlayHistory{
		{ID: uuid.NewString(), StationID: stationID, Artist: "The Regulars", PlayedAt: now.Add(-2 * time.Hour)},
		{ID: uuid.NewString(), StationID: stationID, Artist: "the regulars", PlayedAt: now.Add(-30 * time.Minute)},
		{ID: uuid.NewString(), StationID: stationID, Artist: "Old Timer", PlayedAt: now.Add(-48 * time.Hour)},
		{ID: uuid.NewString(), StationID: stationID, Artist: "", PlayedAt: now.Add(-10 * time.Minute)},
	}
	for i := range plays {
		if err := db.Create(&plays[i]).Error; err != nil {
			t.Fatalf("failed to create play: %v", err)
		}
	}

	recent, err := acc.RecentArtists(context.Background(), stationID, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("RecentArtists() error = %v", err)
	}

	if len(recent) != 1 {
		t.Fatalf("RecentArtists() returned %d artists, want 1", len(recent))
	}

	last, ok := recent["the regulars"]
	if !ok {
		t.Fatal("RecentArtists() missing lowercased artist key")
	}
	if diff := last.Sub(now.Add(-30 * time.Minute)); diff > time.Second || diff < -time.Second {
		t.Errorf("RecentArtists() kept %v, want most recent play time", last)
	}
}

func TestFindByFileRef(t *testing.T) {
	db := setupTestDB(t)
	acc := New(db, nil, zerolog.Nop())
	stationID := uuid.NewString()

	created := createTestItem(t, db, models.ContentItem{
		StationID: stationID,
		Type:      models.TypeLiner,
		Title:     "Top of Hour",
		FileRef:   "liners/top_of_hour.wav",
		Active:    true,
	})

	item, err := acc.FindByFileRef(context.Background(), stationID, "liners/top_of_hour.wav")
	if err != nil {
		t.Fatalf("FindByFileRef() error = %v", err)
	}
	if item.ID != created.ID {
		t.Errorf("FindByFileRef() returned id %q, want %q", item.ID, created.ID)
	}

	_, err = acc.FindByFileRef(context.Background(), stationID, "missing.wav")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByFileRef() error = %v, want ErrNotFound", err)
	}
}

func TestRecordPlaysAdvancesLastPlayed(t *testing.T) {
	db := setupTestDB(t)
	acc := New(db, nil, zerolog.Nop())
	stationID := uuid.NewString()
	now := time.Now()

	item := createTestItem(t, db, models.ContentItem{
		StationID: stationID,
		Type:      models.TypeMusic,
		Title:     "Rotation Cut",
		Artist:    "Night Shift",
		Active:    true,
	})

	err := acc.RecordPlays(context.Background(), []models.PlayHistory{
		{StationID: stationID, ContentItemID: item.ID, Artist: item.Artist, Title: item.Title, Type: item.Type, PlayedAt: now},
	})
	if err != nil {
		t.Fatalf("RecordPlays() error = %v", err)
	}

	var reloaded models.ContentItem
	if err := db.First(&reloaded, "id = ?", item.ID).Error; err != nil {
		t.Fatalf("failed to reload item: %v", err)
	}
	if reloaded.LastPlayedAt == nil {
		t.Fatal("RecordPlays() did not set last_played_at")
	}

	// An older as-played report must not move the marker backwards.
	err = acc.RecordPlays(context.Background(), []models.PlayHistory{
		{StationID: stationID, ContentItemID: item.ID, Artist: item.Artist, Title: item.Title, Type: item.Type, PlayedAt: now.Add(-1 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("RecordPlays() error = %v", err)
	}

	var again models.ContentItem
	if err := db.First(&again, "id = ?", item.ID).Error; err != nil {
		t.Fatalf("failed to reload item: %v", err)
	}
	if again.LastPlayedAt.Before(*reloaded.LastPlayedAt) {
		t.Error("RecordPlays() moved last_played_at backwards")
	}

	var count int64
	if err := db.Model(&models.PlayHistory{}).Where("station_id = ?", stationID).Count(&count).Error; err != nil {
		t.Fatalf("failed to count plays: %v", err)
	}
	if count != 2 {
		t.Errorf("RecordPlays() stored %d history rows, want 2", count)
	}
}
