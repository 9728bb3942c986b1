package clock

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const templateYAML = `
templates:
  - name: Morning Drive
    start_hour: 6
    end_hour: 10
    slots:
      - type: news
        anchor: top
        fixed_duration_sec: 120
      - type: music
        count: 3
      - type: ad
        fallback_type: promo
  - name: Overnight
    start_hour: 22
    end_hour: 6
    slots:
      - type: music
        count: 10
`

func TestImportYAMLCreatesAndUpdates(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, nil, zerolog.Nop())
	ctx := context.Background()
	stationID := uuid.NewString()

	n, err := svc.ImportYAML(ctx, stationID, strings.NewReader(templateYAML))
	if err != nil {
		t.Fatalf("ImportYAML() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("ImportYAML() wrote %d templates, want 2", n)
	}

	morning, err := svc.TemplateFor(ctx, stationID, 7)
	if err != nil {
		t.Fatalf("TemplateFor(7) error = %v", err)
	}
	if morning.Name != "Morning Drive" || len(morning.Slots) != 3 {
		t.Errorf("imported template = %q with %d slots, want Morning Drive with 3", morning.Name, len(morning.Slots))
	}
	if morning.Slots[0].FixedDurationSec == nil || *morning.Slots[0].FixedDurationSec != 120 {
		t.Errorf("news slot fixed duration = %v, want 120", morning.Slots[0].FixedDurationSec)
	}
	if morning.Slots[1].Count != 3 {
		t.Errorf("music slot count = %d, want 3", morning.Slots[1].Count)
	}

	// Re-importing the same names updates in place instead of duplicating.
	updated := strings.Replace(templateYAML, "end_hour: 10", "end_hour: 9", 1)
	if _, err := svc.ImportYAML(ctx, stationID, strings.NewReader(updated)); err != nil {
		t.Fatalf("ImportYAML() second pass error = %v", err)
	}

	templates, err := svc.ListByStation(ctx, stationID)
	if err != nil {
		t.Fatalf("ListByStation() error = %v", err)
	}
	if len(templates) != 2 {
		t.Fatalf("re-import duplicated templates: %d", len(templates))
	}
	morning, err = svc.TemplateFor(ctx, stationID, 7)
	if err != nil {
		t.Fatalf("TemplateFor(7) error = %v", err)
	}
	if morning.EndHour != 9 {
		t.Errorf("re-import did not update end hour: %d", morning.EndHour)
	}
}

func TestImportYAMLRejectsBadTemplate(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, nil, zerolog.Nop())
	ctx := context.Background()
	stationID := uuid.NewString()

	bad := `
templates:
  - name: Broken
    start_hour: 0
    end_hour: 24
    slots:
      - type: jingle
`
	if _, err := svc.ImportYAML(ctx, stationID, strings.NewReader(bad)); err == nil {
		t.Fatal("ImportYAML() should reject an unknown slot type")
	}

	templates, err := svc.ListByStation(ctx, stationID)
	if err != nil {
		t.Fatalf("ListByStation() error = %v", err)
	}
	if len(templates) != 0 {
		t.Errorf("rejected file was partially imported: %d templates", len(templates))
	}
}

func TestExportYAMLRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, nil, zerolog.Nop())
	ctx := context.Background()
	source := uuid.NewString()
	target := uuid.NewString()

	if _, err := svc.ImportYAML(ctx, source, strings.NewReader(templateYAML)); err != nil {
		t.Fatalf("ImportYAML() error = %v", err)
	}

	var buf bytes.Buffer
	if err := svc.ExportYAML(ctx, source, &buf); err != nil {
		t.Fatalf("ExportYAML() error = %v", err)
	}

	n, err := svc.ImportYAML(ctx, target, &buf)
	if err != nil {
		t.Fatalf("ImportYAML() of exported file error = %v", err)
	}
	if n != 2 {
		t.Fatalf("round trip wrote %d templates, want 2", n)
	}

	morning, err := svc.TemplateFor(ctx, target, 7)
	if err != nil {
		t.Fatalf("TemplateFor(7) error = %v", err)
	}
	if len(morning.Slots) != 3 {
		t.Fatalf("round trip lost slots: %d", len(morning.Slots))
	}
	if morning.Slots[0].Anchor != "top" {
		t.Errorf("anchor lost in round trip: %q", morning.Slots[0].Anchor)
	}
	if morning.Slots[2].FallbackType != "promo" {
		t.Errorf("fallback type lost in round trip: %q", morning.Slots[2].FallbackType)
	}
}
