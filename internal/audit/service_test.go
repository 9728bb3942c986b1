/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/events"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.AuditLog{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestRecordMapsPayload(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, events.NewBus(), zerolog.Nop())

	logID := uuid.NewString()
	stationID := uuid.NewString()
	userID := uuid.NewString()

	svc.record(context.Background(), models.AuditActionLogEdit, events.Payload{
		"log_id":     logID,
		"station_id": stationID,
		"actor":      userID,
		"summary":    "moved element",
	})

	var entry models.AuditLog
	if err := db.First(&entry).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if entry.Action != models.AuditActionLogEdit {
		t.Fatalf("expected log.edit, got %s", entry.Action)
	}
	if entry.ResourceType != "daily_log" || entry.ResourceID != logID {
		t.Fatalf("expected daily_log/%s, got %s/%s", logID, entry.ResourceType, entry.ResourceID)
	}
	if entry.StationID == nil || *entry.StationID != stationID {
		t.Fatalf("expected station %s, got %v", stationID, entry.StationID)
	}
	if entry.UserID == nil || *entry.UserID != userID {
		t.Fatalf("expected actor %s, got %v", userID, entry.UserID)
	}
	if entry.Details["summary"] != "moved element" {
		t.Fatalf("expected summary in details, got %v", entry.Details)
	}
	if _, dup := entry.Details["log_id"]; dup {
		t.Fatalf("log_id must live on the resource column, not details")
	}
}

func TestRecordSlotEventTargetsSlot(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, events.NewBus(), zerolog.Nop())

	slotID := uuid.NewString()
	svc.record(context.Background(), models.AuditActionSlotLink, events.Payload{
		"slot_id":    slotID,
		"station_id": uuid.NewString(),
	})

	var entry models.AuditLog
	if err := db.First(&entry).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if entry.ResourceType != "voice_track_slot" || entry.ResourceID != slotID {
		t.Fatalf("expected voice_track_slot/%s, got %s/%s", slotID, entry.ResourceType, entry.ResourceID)
	}
}

func TestStartConsumesBusEvents(t *testing.T) {
	db := setupTestDB(t)
	bus := events.NewBus()
	svc := NewService(db, bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Start(ctx)

	payload := events.Payload{
		"log_id":     uuid.NewString(),
		"station_id": uuid.NewString(),
	}

	// Start subscribes asynchronously; republish until an entry lands.
	deadline := time.Now().Add(2 * time.Second)
	for {
		bus.Publish(events.EventLogPublished, payload)

		var count int64
		if err := db.Model(&models.AuditLog{}).Count(&count).Error; err != nil {
			t.Fatalf("count: %v", err)
		}
		if count > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit entry never recorded")
		}
		time.Sleep(20 * time.Millisecond)
	}

	var entry models.AuditLog
	if err := db.First(&entry).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if entry.Action != models.AuditActionLogPublish {
		t.Fatalf("expected log.publish, got %s", entry.Action)
	}
}

func TestLogFillsDefaults(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, events.NewBus(), zerolog.Nop())

	entry := &models.AuditLog{Action: models.AuditActionUserCreate}
	if err := svc.Log(context.Background(), entry); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if entry.ID == "" || entry.Timestamp.IsZero() {
		t.Fatalf("expected id and timestamp to be filled, got %+v", entry)
	}
}

func TestQueryFilters(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, events.NewBus(), zerolog.Nop())
	ctx := context.Background()

	stationA := uuid.NewString()
	stationB := uuid.NewString()
	base := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	seed := []struct {
		action  models.AuditAction
		station string
		at      time.Time
	}{
		{models.AuditActionLogGenerate, stationA, base},
		{models.AuditActionLogPublish, stationA, base.Add(time.Hour)},
		{models.AuditActionLogPublish, stationB, base.Add(2 * time.Hour)},
	}
	for i := range seed {
		station := seed[i].station
		if err := svc.Log(ctx, &models.AuditLog{
			Action:    seed[i].action,
			StationID: &station,
			Timestamp: seed[i].at,
		}); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	action := models.AuditActionLogPublish
	logs, total, err := svc.Query(ctx, QueryFilters{Action: &action})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != 2 || len(logs) != 2 {
		t.Fatalf("expected 2 publish entries, got total=%d len=%d", total, len(logs))
	}
	if !logs[0].Timestamp.After(logs[1].Timestamp) {
		t.Fatalf("expected most recent first")
	}

	logs, total, err = svc.Query(ctx, QueryFilters{Action: &action, StationID: &stationA})
	if err != nil {
		t.Fatalf("Query station: %v", err)
	}
	if total != 1 || len(logs) != 1 {
		t.Fatalf("expected 1 entry for station A, got total=%d len=%d", total, len(logs))
	}
}
