package dailylog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/config"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

func editService(db *gorm.DB) *Service {
	return New(db, &config.Config{}, nil, nil, nil, nil, nil, zerolog.Nop())
}

func threeSongs() []models.LogElement {
	return []models.LogElement{
		{Type: models.TypeMusic, Title: "One", DurationSec: 100, StartSec: 0, EndSec: 100, ScheduledSec: 0, ScheduledDurationSec: 100},
		{Type: models.TypeMusic, Title: "Two", DurationSec: 100, StartSec: 100, EndSec: 200, ScheduledSec: 100, ScheduledDurationSec: 100},
		{Type: models.TypeMusic, Title: "Three", DurationSec: 100, StartSec: 200, EndSec: 300, ScheduledSec: 200, ScheduledDurationSec: 100},
	}
}

func createTestLog(t *testing.T, db *gorm.DB, airDate string, elements []models.LogElement) *models.DailyLog {
	t.Helper()

	var hours models.HourArray
	for h := range hours {
		hours[h].Hour = h
	}
	total := 0
	for _, elem := range elements {
		total += elem.DurationSec
	}
	hours[8].Elements = elements
	hours[8].TotalDurationSec = total

	log := &models.DailyLog{
		ID:             uuid.NewString(),
		StationID:      uuid.NewString(),
		AirDate:        airDate,
		Hours:          hours,
		Status:         models.LogStatusGenerated,
		RevisionNumber: 1,
	}
	if err := db.Create(log).Error; err != nil {
		t.Fatalf("failed to create log: %v", err)
	}

	rev := &models.LogRevision{
		ID:            uuid.NewString(),
		DailyLogID:    log.ID,
		VersionNumber: 1,
		Snapshot:      models.LogSnapshot{Hours: hours, Status: log.Status},
		ChangeType:    models.ChangeTypeGenerate,
		ChangeSummary: "generated from clock templates",
	}
	if err := db.Create(rev).Error; err != nil {
		t.Fatalf("failed to create revision: %v", err)
	}

	return log
}

func TestInsertElementRetimesHour(t *testing.T) {
	db := setupTestDB(t)
	svc := editService(db)
	log := createTestLog(t, db, "2024-03-15", threeSongs())

	updated, err := svc.InsertElement(context.Background(), log.ID, 8, 1, models.LogElement{
		Type: models.TypeLiner, Title: "Drop In", DurationSec: 50,
	}, "md")
	if err != nil {
		t.Fatalf("InsertElement() error = %v", err)
	}

	elems := updated.Hours[8].Elements
	if len(elems) != 4 {
		t.Fatalf("hour has %d elements, want 4", len(elems))
	}
	if elems[1].Title != "Drop In" || elems[1].StartSec != 100 || elems[1].EndSec != 150 {
		t.Errorf("inserted element = %q [%d,%d), want \"Drop In\" [100,150)", elems[1].Title, elems[1].StartSec, elems[1].EndSec)
	}
	if elems[2].Title != "Two" || elems[2].StartSec != 150 {
		t.Errorf("element after insert = %q at %d, want \"Two\" at 150", elems[2].Title, elems[2].StartSec)
	}
	if elems[3].StartSec != 250 || elems[3].EndSec != 350 {
		t.Errorf("last element at [%d,%d), want [250,350)", elems[3].StartSec, elems[3].EndSec)
	}
	if updated.Hours[8].TotalDurationSec != 350 {
		t.Errorf("TotalDurationSec = %d, want 350", updated.Hours[8].TotalDurationSec)
	}
	if updated.Status != models.LogStatusEdited {
		t.Errorf("Status = %q, want %q", updated.Status, models.LogStatusEdited)
	}
	if updated.RevisionNumber != 2 {
		t.Errorf("RevisionNumber = %d, want 2", updated.RevisionNumber)
	}
}

func TestInsertElementValidation(t *testing.T) {
	db := setupTestDB(t)
	svc := editService(db)
	log := createTestLog(t, db, "2024-03-15", threeSongs())
	ctx := context.Background()

	if _, err := svc.InsertElement(ctx, log.ID, 24, 0, models.LogElement{Type: models.TypeMusic, DurationSec: 100}, ""); err == nil {
		t.Error("accepted out-of-range hour")
	}
	if _, err := svc.InsertElement(ctx, log.ID, 8, 0, models.LogElement{Type: "jingle", DurationSec: 100}, ""); err == nil {
		t.Error("accepted unknown element type")
	}
	if _, err := svc.InsertElement(ctx, log.ID, 8, 0, models.LogElement{Type: models.TypeMusic}, ""); err == nil {
		t.Error("accepted zero duration")
	}
	if _, err := svc.InsertElement(ctx, log.ID, 8, 99, models.LogElement{Type: models.TypeMusic, DurationSec: 100}, ""); !errors.Is(err, ErrElementIndex) {
		t.Errorf("out-of-range index error = %v, want ErrElementIndex", err)
	}
}

func TestRemoveElementLeavesPlanWindow(t *testing.T) {
	db := setupTestDB(t)
	svc := editService(db)
	log := createTestLog(t, db, "2024-03-15", threeSongs())

	updated, err := svc.RemoveElement(context.Background(), log.ID, 8, 1, "md")
	if err != nil {
		t.Fatalf("RemoveElement() error = %v", err)
	}

	elems := updated.Hours[8].Elements
	if len(elems) != 2 {
		t.Fatalf("hour has %d elements, want 2", len(elems))
	}
	// The removed song's plan window stays open; the survivor chases its
	// own plan rather than sliding forward.
	if elems[1].Title != "Three" || elems[1].StartSec != 200 {
		t.Errorf("surviving element = %q at %d, want \"Three\" at 200", elems[1].Title, elems[1].StartSec)
	}
	if updated.Hours[8].TotalDurationSec != 200 {
		t.Errorf("TotalDurationSec = %d, want 200", updated.Hours[8].TotalDurationSec)
	}
}

func TestMoveElementToFrontStaysContiguous(t *testing.T) {
	db := setupTestDB(t)
	svc := editService(db)
	log := createTestLog(t, db, "2024-03-15", threeSongs())

	updated, err := svc.MoveElement(context.Background(), log.ID, 8, 2, 0, "md")
	if err != nil {
		t.Fatalf("MoveElement() error = %v", err)
	}

	elems := updated.Hours[8].Elements
	wantOrder := []string{"Three", "One", "Two"}
	wantStart := []int{0, 100, 200}
	for i := range elems {
		if elems[i].Title != wantOrder[i] || elems[i].StartSec != wantStart[i] {
			t.Errorf("element %d = %q at %d, want %q at %d", i, elems[i].Title, elems[i].StartSec, wantOrder[i], wantStart[i])
		}
	}
}

func TestMoveElementKeepsHardStartPinned(t *testing.T) {
	db := setupTestDB(t)
	svc := editService(db)
	elems := []models.LogElement{
		{Type: models.TypeMusic, Title: "One", DurationSec: 100, StartSec: 0, EndSec: 100, ScheduledSec: 0, ScheduledDurationSec: 100},
		{Type: models.TypeMusic, Title: "Two", DurationSec: 100, StartSec: 100, EndSec: 200, ScheduledSec: 100, ScheduledDurationSec: 100},
		{Type: models.TypeNews, Title: "News", DurationSec: 60, StartSec: 300, EndSec: 360, ScheduledSec: 300, ScheduledDurationSec: 60, HardStart: true},
	}
	log := createTestLog(t, db, "2024-03-15", elems)

	updated, err := svc.MoveElement(context.Background(), log.ID, 8, 2, 0, "md")
	if err != nil {
		t.Fatalf("MoveElement() error = %v", err)
	}

	moved := updated.Hours[8].Elements
	if moved[0].Title != "News" || moved[0].StartSec != 300 {
		t.Errorf("pinned element = %q at %d, want \"News\" still at 300", moved[0].Title, moved[0].StartSec)
	}
	if moved[1].Title != "One" || moved[1].StartSec != 360 {
		t.Errorf("element after pin = %q at %d, want \"One\" at 360", moved[1].Title, moved[1].StartSec)
	}
	if moved[2].StartSec != 460 {
		t.Errorf("last element at %d, want 460", moved[2].StartSec)
	}
}

func TestReorderHourReplansFlexibleElements(t *testing.T) {
	db := setupTestDB(t)
	svc := editService(db)
	log := createTestLog(t, db, "2024-03-15", threeSongs())

	updated, err := svc.ReorderHour(context.Background(), log.ID, 8, []int{2, 0, 1}, "md")
	if err != nil {
		t.Fatalf("ReorderHour() error = %v", err)
	}

	elems := updated.Hours[8].Elements
	wantOrder := []string{"Three", "One", "Two"}
	wantStart := []int{0, 100, 200}
	for i := range elems {
		if elems[i].Title != wantOrder[i] || elems[i].StartSec != wantStart[i] {
			t.Errorf("element %d = %q at %d, want %q at %d", i, elems[i].Title, elems[i].StartSec, wantOrder[i], wantStart[i])
		}
	}
}

func TestReorderHourRejectsBadPermutation(t *testing.T) {
	db := setupTestDB(t)
	svc := editService(db)
	log := createTestLog(t, db, "2024-03-15", threeSongs())
	ctx := context.Background()

	if _, err := svc.ReorderHour(ctx, log.ID, 8, []int{0, 0, 2}, ""); err == nil {
		t.Error("accepted duplicate index")
	}
	if _, err := svc.ReorderHour(ctx, log.ID, 8, []int{0, 1}, ""); err == nil {
		t.Error("accepted short order")
	}
}

func TestEditRefusedWhenLocked(t *testing.T) {
	db := setupTestDB(t)
	svc := editService(db)
	log := createTestLog(t, db, "2024-03-15", threeSongs())
	if err := db.Model(&models.DailyLog{}).Where("id = ?", log.ID).Update("locked", true).Error; err != nil {
		t.Fatalf("failed to lock log: %v", err)
	}

	if _, err := svc.RemoveElement(context.Background(), log.ID, 8, 0, "md"); !errors.Is(err, ErrLogLocked) {
		t.Errorf("RemoveElement() on locked log error = %v, want ErrLogLocked", err)
	}
}

func TestEditSnapshotsPriorState(t *testing.T) {
	db := setupTestDB(t)
	svc := editService(db)
	log := createTestLog(t, db, "2024-03-15", threeSongs())

	if _, err := svc.InsertElement(context.Background(), log.ID, 8, 3, models.LogElement{
		Type: models.TypeLiner, Title: "Drop In", DurationSec: 50,
	}, "md"); err != nil {
		t.Fatalf("InsertElement() error = %v", err)
	}

	rev, err := svc.Revision(context.Background(), log.ID, 2)
	if err != nil {
		t.Fatalf("Revision() error = %v", err)
	}
	if rev.ChangeType != models.ChangeTypeEdit {
		t.Errorf("ChangeType = %q, want %q", rev.ChangeType, models.ChangeTypeEdit)
	}
	if got := len(rev.Snapshot.Hours[8].Elements); got != 3 {
		t.Errorf("snapshot captured %d elements, want the 3 from before the edit", got)
	}
}

func TestStaleRevisionConflict(t *testing.T) {
	db := setupTestDB(t)
	svc := editService(db)
	log := createTestLog(t, db, "2024-03-15", threeSongs())

	// Another writer bumped the revision after our read.
	if err := db.Model(&models.DailyLog{}).Where("id = ?", log.ID).Update("revision_number", 5).Error; err != nil {
		t.Fatalf("failed to bump revision: %v", err)
	}

	stale := *log
	stale.RevisionNumber = 2
	rev := newRevision(log.ID, 2, snapshotOf(log), models.ChangeTypeEdit, "stale edit", "")
	if err := svc.commitMutation(context.Background(), &stale, 1, rev); !errors.Is(err, ErrConcurrency) {
		t.Errorf("commitMutation() with stale revision error = %v, want ErrConcurrency", err)
	}

	locked := createTestLog(t, db, "2024-03-16", threeSongs())
	if err := db.Model(&models.DailyLog{}).Where("id = ?", locked.ID).Update("locked", true).Error; err != nil {
		t.Fatalf("failed to lock log: %v", err)
	}
	stale2 := *locked
	stale2.RevisionNumber = 2
	rev2 := newRevision(locked.ID, 2, snapshotOf(locked), models.ChangeTypeEdit, "locked edit", "")
	if err := svc.commitMutation(context.Background(), &stale2, 1, rev2); !errors.Is(err, ErrLogLocked) {
		t.Errorf("commitMutation() on locked log error = %v, want ErrLogLocked", err)
	}
}

func TestLockUnlockIdempotent(t *testing.T) {
	db := setupTestDB(t)
	svc := editService(db)
	log := createTestLog(t, db, "2024-03-15", threeSongs())
	ctx := context.Background()

	if err := svc.Lock(ctx, log.ID, "pd"); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if err := svc.Lock(ctx, log.ID, "pd"); err != nil {
		t.Fatalf("second Lock() error = %v", err)
	}
	current, err := svc.Get(ctx, log.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !current.Locked {
		t.Error("log not locked after Lock()")
	}

	if err := svc.Unlock(ctx, log.ID, "pd"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := svc.Unlock(ctx, log.ID, "pd"); err != nil {
		t.Fatalf("second Unlock() error = %v", err)
	}
	current, err = svc.Get(ctx, log.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if current.Locked {
		t.Error("log still locked after Unlock()")
	}

	if err := svc.Lock(ctx, uuid.NewString(), "pd"); !errors.Is(err, ErrLogNotFound) {
		t.Errorf("Lock(missing) error = %v, want ErrLogNotFound", err)
	}
}

func TestRevertRestoresSnapshot(t *testing.T) {
	db := setupTestDB(t)
	svc := editService(db)
	log := createTestLog(t, db, "2024-03-15", threeSongs())
	ctx := context.Background()

	if _, err := svc.InsertElement(ctx, log.ID, 8, 3, models.LogElement{
		Type: models.TypeLiner, Title: "Drop In", DurationSec: 50,
	}, "md"); err != nil {
		t.Fatalf("InsertElement() error = %v", err)
	}

	reverted, err := svc.Revert(ctx, log.ID, 2, "pd")
	if err != nil {
		t.Fatalf("Revert() error = %v", err)
	}
	if got := len(reverted.Hours[8].Elements); got != 3 {
		t.Errorf("reverted hour has %d elements, want 3", got)
	}
	if reverted.Status != models.LogStatusGenerated {
		t.Errorf("reverted Status = %q, want %q", reverted.Status, models.LogStatusGenerated)
	}
	if reverted.RevisionNumber != 3 {
		t.Errorf("RevisionNumber = %d, want 3", reverted.RevisionNumber)
	}

	// The revert itself snapshotted the edited state, so it can be undone.
	rev, err := svc.Revision(ctx, log.ID, 3)
	if err != nil {
		t.Fatalf("Revision() error = %v", err)
	}
	if rev.ChangeType != models.ChangeTypeRevert {
		t.Errorf("ChangeType = %q, want %q", rev.ChangeType, models.ChangeTypeRevert)
	}
	if got := len(rev.Snapshot.Hours[8].Elements); got != 4 {
		t.Errorf("revert snapshot captured %d elements, want the 4 from before the revert", got)
	}

	revs, err := svc.Revisions(ctx, log.ID)
	if err != nil {
		t.Fatalf("Revisions() error = %v", err)
	}
	if len(revs) != 3 {
		t.Fatalf("Revisions() returned %d entries, want 3", len(revs))
	}
	for i, rev := range revs {
		if rev.VersionNumber != i+1 {
			t.Errorf("revision %d has version %d, want %d", i, rev.VersionNumber, i+1)
		}
	}
}

func TestRevertMissingRevision(t *testing.T) {
	db := setupTestDB(t)
	svc := editService(db)
	log := createTestLog(t, db, "2024-03-15", threeSongs())

	if _, err := svc.Revert(context.Background(), log.ID, 99, "pd"); !errors.Is(err, ErrRevisionNotFound) {
		t.Errorf("Revert() to missing version error = %v, want ErrRevisionNotFound", err)
	}
}

func TestRevertRefusedWhenLocked(t *testing.T) {
	db := setupTestDB(t)
	svc := editService(db)
	log := createTestLog(t, db, "2024-03-15", threeSongs())
	if err := db.Model(&models.DailyLog{}).Where("id = ?", log.ID).Update("locked", true).Error; err != nil {
		t.Fatalf("failed to lock log: %v", err)
	}

	if _, err := svc.Revert(context.Background(), log.ID, 1, "pd"); !errors.Is(err, ErrLogLocked) {
		t.Errorf("Revert() on locked log error = %v, want ErrLogLocked", err)
	}
}
