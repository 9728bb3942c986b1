package selector

import (
	"context"
	"errors"
	"testing"
	"time"

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

func newTestSelector(t *testing.T, db *gorm.DB) *Selector {
	return New(catalog.New(db, nil, zerolog.Nop()), 0, zerolog.Nop())
}

func mustCreate(t *testing.T, db *gorm.DB, item models.ContentItem) models.ContentItem {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.Active = true
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("failed to create content item: %v", err)
	}
	return item
}

func TestPickMusicPrefersLeastRecentlyPlayed(t *testing.T) {
	db := setupTestDB(t)
	sel := newTestSelector(t, db)
	stationID := uuid.NewString()
	at := time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC)

	recent := at.Add(-1 * time.Hour)
	older := at.Add(-24 * time.Hour)
	mustCreate(t, db, models.ContentItem{StationID: stationID, Type: models.TypeMusic, Title: "Recent", Artist: "One", LastPlayedAt: &recent})
	mustCreate(t, db, models.ContentItem{StationID: stationID, Type: models.TypeMusic, Title: "Older", Artist: "Two", LastPlayedAt: &older})
	fresh := mustCreate(t, db, models.ContentItem{StationID: stationID, Type: models.TypeMusic, Title: "Fresh", Artist: "Three"})

	state := NewHourState(1, nil)
	choice, err := sel.Pick(context.Background(), Request{
		StationID: stationID,
		AirDate:   "2024-03-15",
		Hour:      6,
		At:        at,
		Type:      models.TypeMusic,
		Daypart:   models.DaypartMorning,
	}, state)
	if err != nil {
		t.Fatalf("Pick() error = %v", err)
	}
	if choice == nil {
		t.Fatal("Pick() returned no choice")
	}
	if choice.Item.ID != fresh.ID {
		t.Errorf("Pick() chose %q, want never-played %q", choice.Item.Title, fresh.Title)
	}
	if choice.FallbackUsed {
		t.Error("Pick() reported fallback for a primary pick")
	}
}

func TestPickMusicArtistSeparation(t *testing.T) {
	db := setupTestDB(t)
	sel := newTestSelector(t, db)
	stationID := uuid.NewString()
	at := time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC)

	mustCreate(t, db, models.ContentItem{StationID: stationID, Type: models.TypeMusic, Title: "Blocked", Artist: "Night Shift"})
	other := mustCreate(t, db, models.ContentItem{StationID: stationID, Type: models.TypeMusic, Title: "Clear", Artist: "Day Crew"})

	state := NewHourState(1, map[string]time.Time{
		"night shift": at.Add(-10 * time.Minute),
	})
	choice, err := sel.Pick(context.Background(), Request{
		StationID: stationID,
		AirDate:   "2024-03-15",
		Hour:      6,
		At:        at,
		Type:      models.TypeMusic,
		Daypart:   models.DaypartMorning,
	}, state)
	if err != nil {
		t.Fatalf("Pick() error = %v", err)
	}
	if choice == nil {
		t.Fatal("Pick() returned no choice")
	}
	if choice.Item.ID != other.ID {
		t.Errorf("Pick() chose %q, want artist outside separation window", choice.Item.Title)
	}
}

func TestPickMusicNewReleaseExemptFromSeparation(t *testing.T) {
	db := setupTestDB(t)
	sel := newTestSelector(t, db)
	stationID := uuid.NewString()
	at := time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC)

	exempt := mustCreate(t, db, models.ContentItem{StationID: stationID, Type: models.TypeMusic, Title: "Single", Artist: "Night Shift", NewRelease: true})

	state := NewHourState(1, map[string]time.Time{
		"night shift": at.Add(-5 * time.Minute),
	})
	choice, err := sel.Pick(context.Background(), Request{
		StationID: stationID,
		AirDate:   "2024-03-15",
		Hour:      6,
		At:        at,
		Type:      models.TypeMusic,
		Daypart:   models.DaypartMorning,
	}, state)
	if err != nil {
		t.Fatalf("Pick() error = %v", err)
	}
	if choice == nil {
		t.Fatal("Pick() returned no choice, want new-release exemption")
	}
	if choice.Item.ID != exempt.ID {
		t.Errorf("Pick() chose %q, want new release", choice.Item.Title)
	}
}

func TestPickMusicEmptyCatalogReturnsNil(t *testing.T) {
	db := setupTestDB(t)
	sel := newTestSelector(t, db)

	state := NewHourState(1, nil)
	choice, err := sel.Pick(context.Background(), Request{
		StationID: uuid.NewString(),
		AirDate:   "2024-03-15",
		Hour:      6,
		At:        time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC),
		Type:      models.TypeMusic,
		Daypart:   models.DaypartMorning,
	}, state)
	if err != nil {
		t.Fatalf("Pick() error = %v", err)
	}
	if choice != nil {
		t.Fatalf("Pick() = %v, want nil on empty catalog", choice)
	}
}

func TestPickAdWaterfall(t *testing.T) {
	db := setupTestDB(t)
	sel := newTestSelector(t, db)
	stationID := uuid.NewString()
	at := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	start, _ := time.Parse("2006-01-02", "2024-03-01")
	end, _ := time.Parse("2006-01-02", "2024-03-31")

	campA := models.Campaign{ID: uuid.NewString(), StationID: stationID, Name: "Alpha", Priority: 10, StartDate: start, EndDate: end, MaxPlaysPerHour: 2, Active: true}
	campB := models.Campaign{ID: uuid.NewString(), StationID: stationID, Name: "Beta", Priority: 1, StartDate: start, EndDate: end, MaxPlaysPerHour: 1, Active: true}
	if err := db.Create(&campA).Error; err != nil {
		t.Fatalf("failed to create campaign: %v", err)
	}
	if err := db.Create(&campB).Error; err != nil {
		t.Fatalf("failed to create campaign: %v", err)
	}

	mustCreate(t, db, models.ContentItem{StationID: stationID, Type: models.TypeAd, Title: "Alpha Spot 1", CampaignID: &campA.ID})
	mustCreate(t, db, models.ContentItem{StationID: stationID, Type: models.TypeAd, Title: "Alpha Spot 2", CampaignID: &campA.ID})
	betaAd := mustCreate(t, db, models.ContentItem{StationID: stationID, Type: models.TypeAd, Title: "Beta Spot", CampaignID: &campB.ID})
	promo := mustCreate(t, db, models.ContentItem{StationID: stationID, Type: models.TypePromo, Title: "Station Promo"})

	state := NewHourState(1, nil)
	req := Request{StationID: stationID, AirDate: "2024-03-15", Hour: 12, At: at, Type: models.TypeAd}

	// First two picks drain campaign Alpha (priority 10, capped at 2).
	for i := 0; i < 2; i++ {
		choice, err := sel.Pick(context.Background(), req, state)
		if err != nil {
			t.Fatalf("Pick() error = %v", err)
		}
		if choice == nil || choice.Item.CampaignID == nil || *choice.Item.CampaignID != campA.ID {
			t.Fatalf("pick %d did not come from the priority campaign", i+1)
		}
		if choice.FallbackUsed {
			t.Errorf("pick %d reported fallback for paid inventory", i+1)
		}
	}

	// Third pick falls through to campaign Beta.
	choice, err := sel.Pick(context.Background(), req, state)
	if err != nil {
		t.Fatalf("Pick() error = %v", err)
	}
	if choice == nil || choice.Item.ID != betaAd.ID {
		t.Fatal("third pick should come from the lower-priority campaign")
	}

	// Fourth pick: both campaigns capped, downgrade to promo.
	choice, err = sel.Pick(context.Background(), req, state)
	if err != nil {
		t.Fatalf("Pick() error = %v", err)
	}
	if choice == nil || choice.Item.ID != promo.ID {
		t.Fatal("fourth pick should downgrade to promo")
	}
	if !choice.FallbackUsed {
		t.Error("downgraded pick must set FallbackUsed")
	}
}

func TestPickAdPSAFinalTier(t *testing.T) {
	db := setupTestDB(t)
	sel := newTestSelector(t, db)
	stationID := uuid.NewString()

	psa := mustCreate(t, db, models.ContentItem{StationID: stationID, Type: models.TypePSA, Title: "Safety Message"})

	state := NewHourState(1, nil)
	choice, err := sel.Pick(context.Background(), Request{
		StationID: stationID,
		AirDate:   "2024-03-15",
		Hour:      12,
		At:        time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		Type:      models.TypeAd,
	}, state)
	if err != nil {
		t.Fatalf("Pick() error = %v", err)
	}
	if choice == nil || choice.Item.ID != psa.ID {
		t.Fatal("with no ads or promos the pick should fall through to PSA")
	}
	if !choice.FallbackUsed {
		t.Error("PSA fill must set FallbackUsed")
	}
}

func TestPickFallbackType(t *testing.T) {
	db := setupTestDB(t)
	sel := newTestSelector(t, db)
	stationID := uuid.NewString()

	bed := mustCreate(t, db, models.ContentItem{StationID: stationID, Type: models.TypeBed, Title: "Music Bed"})

	state := NewHourState(1, nil)
	choice, err := sel.Pick(context.Background(), Request{
		StationID:    stationID,
		AirDate:      "2024-03-15",
		Hour:         9,
		At:           time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC),
		Type:         models.TypeLiner,
		FallbackType: models.TypeBed,
	}, state)
	if err != nil {
		t.Fatalf("Pick() error = %v", err)
	}
	if choice == nil || choice.Item.ID != bed.ID {
		t.Fatal("empty primary type should fall back to the configured fallback type")
	}
	if !choice.FallbackUsed {
		t.Error("fallback-type pick must set FallbackUsed")
	}
}

func TestPickVoiceTrackNeverSelects(t *testing.T) {
	db := setupTestDB(t)
	sel := newTestSelector(t, db)
	stationID := uuid.NewString()

	mustCreate(t, db, models.ContentItem{StationID: stationID, Type: models.TypeVoiceTrack, Title: "Stray VT"})

	state := NewHourState(1, nil)
	choice, err := sel.Pick(context.Background(), Request{
		StationID: stationID,
		AirDate:   "2024-03-15",
		Hour:      9,
		At:        time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC),
		Type:      models.TypeVoiceTrack,
	}, state)
	if err != nil {
		t.Fatalf("Pick() error = %v", err)
	}
	if choice != nil {
		t.Fatal("voice track elements are filled by slot linking, not selection")
	}
}

func TestPickUnknownTypeRejected(t *testing.T) {
	db := setupTestDB(t)
	sel := newTestSelector(t, db)

	state := NewHourState(1, nil)
	_, err := sel.Pick(context.Background(), Request{
		StationID: uuid.NewString(),
		AirDate:   "2024-03-15",
		Hour:      9,
		At:        time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC),
		Type:      models.ContentType("jingle"),
	}, state)
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("Pick() error = %v, want ErrUnknownType", err)
	}
}

func TestPickDeterministicForSeed(t *testing.T) {
	db := setupTestDB(t)
	sel := newTestSelector(t, db)
	stationID := uuid.NewString()
	at := time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		mustCreate(t, db, models.ContentItem{
			StationID: stationID,
			Type:      models.TypeMusic,
			Title:     "Track",
			Artist:    uuid.NewString(),
		})
	}

	runPicks := func(seed int64) []string {
		state := NewHourState(seed, nil)
		var ids []string
		for i := 0; i < 4; i++ {
			choice, err := sel.Pick(context.Background(), Request{
				StationID: stationID,
				AirDate:   "2024-03-15",
				Hour:      6,
				At:        at.Add(time.Duration(i) * 3 * time.Minute),
				Type:      models.TypeMusic,
				Daypart:   models.DaypartMorning,
			}, state)
			if err != nil {
				t.Fatalf("Pick() error = %v", err)
			}
			if choice == nil {
				t.Fatal("Pick() returned no choice")
			}
			ids = append(ids, choice.Item.ID)
		}
		return ids
	}

	first := runPicks(42)
	second := runPicks(42)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("pick %d differs for identical seed: %q vs %q", i, first[i], second[i])
		}
	}
}
