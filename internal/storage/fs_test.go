package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFilesystemStoreSaveOpenRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := NewFilesystemStore(root, zerolog.Nop())
	ctx := context.Background()

	ref := "voicetracks/2024-03-15/14-00_BreakA.wav"
	if err := store.Save(ctx, ref, strings.NewReader("audio bytes")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	r, err := store.Open(ctx, ref)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("failed to read asset: %v", err)
	}
	if string(data) != "audio bytes" {
		t.Errorf("asset content = %q, want %q", data, "audio bytes")
	}
}

func TestFilesystemStoreRenameMovesAsset(t *testing.T) {
	root := t.TempDir()
	store := NewFilesystemStore(root, zerolog.Nop())
	ctx := context.Background()

	oldRef := "voicetracks/drafts/take3.wav"
	newRef := "voicetracks/2024-03-15/09-00_BreakB.wav"
	if err := store.Save(ctx, oldRef, strings.NewReader("take")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Rename(ctx, oldRef, newRef); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(oldRef))); !os.IsNotExist(err) {
		t.Error("old ref still exists after rename")
	}
	r, err := store.Open(ctx, newRef)
	if err != nil {
		t.Fatalf("Open() after rename error = %v", err)
	}
	r.Close()
}

func TestFilesystemStoreDeleteTolerant(t *testing.T) {
	store := NewFilesystemStore(t.TempDir(), zerolog.Nop())
	ctx := context.Background()

	if err := store.Save(ctx, "a.wav", strings.NewReader("x")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Delete(ctx, "a.wav"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	// A second delete of the same ref is not an error.
	if err := store.Delete(ctx, "a.wav"); err != nil {
		t.Fatalf("repeat Delete() error = %v", err)
	}
}

func TestFilesystemStoreCheckAccess(t *testing.T) {
	ctx := context.Background()

	if err := NewFilesystemStore(t.TempDir(), zerolog.Nop()).CheckAccess(ctx); err != nil {
		t.Errorf("CheckAccess() on valid root error = %v", err)
	}
	if err := NewFilesystemStore("/nonexistent/audio/root", zerolog.Nop()).CheckAccess(ctx); err == nil {
		t.Error("CheckAccess() on missing root expected error")
	}
}
