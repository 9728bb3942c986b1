/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package clock

import (
	"context"
	"errors"
	"testing"

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

	if err := db.AutoMigrate(&models.ClockTemplate{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return db
}

func stationTemplate(stationID, name string, startHour, endHour int) *models.ClockTemplate {
	return &models.ClockTemplate{
		StationID: stationID,
		Name:      name,
		StartHour: startHour,
		EndHour:   endHour,
		Slots: models.ClockSlotList{
			{Position: 0, Type: models.TypeMusic, Count: 1},
		},
	}
}

func TestTemplateCRUD(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, nil, zerolog.Nop())
	ctx := context.Background()
	stationID := uuid.NewString()

	tpl := stationTemplate(stationID, "Morning Drive", 6, 10)
	if err := svc.Create(ctx, tpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if tpl.ID == "" {
		t.Fatal("Create() should assign an id")
	}

	got, err := svc.Get(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "Morning Drive" || got.StartHour != 6 || got.EndHour != 10 {
		t.Errorf("Get() = %q [%d, %d), want Morning Drive [6, 10)", got.Name, got.StartHour, got.EndHour)
	}
	if len(got.Slots) != 1 || got.Slots[0].Type != models.TypeMusic {
		t.Errorf("Get() slots = %+v, want the stored music slot", got.Slots)
	}

	got.Name = "Breakfast Show"
	got.EndHour = 9
	if err := svc.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	updated, err := svc.Get(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("Get() after update error = %v", err)
	}
	if updated.Name != "Breakfast Show" || updated.EndHour != 9 {
		t.Errorf("update not applied: %q ends %d", updated.Name, updated.EndHour)
	}

	if err := svc.Delete(ctx, stationID, tpl.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.Get(ctx, tpl.ID); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrTemplateNotFound", err)
	}
}

func TestCreateRejectsInvalidTemplate(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, nil, zerolog.Nop())
	ctx := context.Background()
	stationID := uuid.NewString()

	tpl := stationTemplate(stationID, "Empty", 0, 24)
	tpl.Slots = nil
	if err := svc.Create(ctx, tpl); !errors.Is(err, ErrInvalidTemplate) {
		t.Fatalf("Create() error = %v, want ErrInvalidTemplate", err)
	}

	templates, err := svc.ListByStation(ctx, stationID)
	if err != nil {
		t.Fatalf("ListByStation() error = %v", err)
	}
	if len(templates) != 0 {
		t.Errorf("rejected template was persisted: %+v", templates)
	}
}

func TestUpdateMissingTemplate(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, nil, zerolog.Nop())

	tpl := stationTemplate(uuid.NewString(), "Ghost", 0, 24)
	tpl.ID = uuid.NewString()
	if err := svc.Update(context.Background(), tpl); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("Update() error = %v, want ErrTemplateNotFound", err)
	}
}

func TestDeleteMissingTemplate(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, nil, zerolog.Nop())

	err := svc.Delete(context.Background(), uuid.NewString(), uuid.NewString())
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("Delete() error = %v, want ErrTemplateNotFound", err)
	}
}

func TestTemplateForPrefersNarrowestWindow(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, nil, zerolog.Nop())
	ctx := context.Background()
	stationID := uuid.NewString()

	for _, tpl := range []*models.ClockTemplate{
		stationTemplate(stationID, "All Day", 0, 0),
		stationTemplate(stationID, "Morning", 6, 10),
		stationTemplate(stationID, "Drive Peak", 6, 7),
	} {
		if err := svc.Create(ctx, tpl); err != nil {
			t.Fatalf("Create(%s) error = %v", tpl.Name, err)
		}
	}

	tests := []struct {
		hour int
		want string
	}{
		{6, "Drive Peak"},
		{8, "Morning"},
		{12, "All Day"},
		{0, "All Day"},
	}
	for _, tt := range tests {
		got, err := svc.TemplateFor(ctx, stationID, tt.hour)
		if err != nil {
			t.Fatalf("TemplateFor(%d) error = %v", tt.hour, err)
		}
		if got.Name != tt.want {
			t.Errorf("TemplateFor(%d) = %q, want %q", tt.hour, got.Name, tt.want)
		}
	}
}

func TestTemplateForOvernightWrap(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, nil, zerolog.Nop())
	ctx := context.Background()
	stationID := uuid.NewString()

	if err := svc.Create(ctx, stationTemplate(stationID, "Overnight", 22, 6)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for _, hour := range []int{22, 23, 0, 2, 5} {
		got, err := svc.TemplateFor(ctx, stationID, hour)
		if err != nil {
			t.Fatalf("TemplateFor(%d) error = %v", hour, err)
		}
		if got.Name != "Overnight" {
			t.Errorf("TemplateFor(%d) = %q, want Overnight", hour, got.Name)
		}
	}

	if _, err := svc.TemplateFor(ctx, stationID, 12); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("TemplateFor(12) error = %v, want ErrTemplateNotFound", err)
	}
}

func TestTemplatesForDayLeavesUncoveredHoursNil(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, nil, zerolog.Nop())
	ctx := context.Background()
	stationID := uuid.NewString()

	if err := svc.Create(ctx, stationTemplate(stationID, "Morning", 6, 10)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	day, err := svc.TemplatesForDay(ctx, stationID)
	if err != nil {
		t.Fatalf("TemplatesForDay() error = %v", err)
	}

	for hour := 0; hour < 24; hour++ {
		covered := hour >= 6 && hour < 10
		if covered && day[hour] == nil {
			t.Errorf("hour %d should map to the morning template", hour)
		}
		if !covered && day[hour] != nil {
			t.Errorf("hour %d should be uncovered, got %q", hour, day[hour].Name)
		}
	}
}
