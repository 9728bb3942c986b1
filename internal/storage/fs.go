/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FilesystemStore keeps assets under a local root directory. Refs are
// slash-separated relative paths.
type FilesystemStore struct {
	rootDir string
	logger  zerolog.Logger
}

func NewFilesystemStore(rootDir string, logger zerolog.Logger) *FilesystemStore {
	return &FilesystemStore{
		rootDir: rootDir,
		logger:  logger.With().Str("component", "storage").Logger(),
	}
}

func (fs *FilesystemStore) path(ref string) string {
	return filepath.Join(fs.rootDir, filepath.FromSlash(ref))
}

// Save writes an asset, creating parent directories as needed. A partial
// write is removed rather than left behind.
func (fs *FilesystemStore) Save(ctx context.Context, ref string, r io.Reader) error {
	fullPath := fs.path(ref)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	dest, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, r); err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("write file: %w", err)
	}

	fs.logger.Debug().Str("ref", ref).Msg("asset stored")
	return nil
}

// Open returns the asset for reading; the caller closes it.
func (fs *FilesystemStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	f, err := os.Open(fs.path(ref))
	if err != nil {
		return nil, fmt.Errorf("open asset %q: %w", ref, err)
	}
	return f, nil
}

// Delete removes an asset. A missing file is not an error: deletes are
// retried after partial failures.
func (fs *FilesystemStore) Delete(ctx context.Context, ref string) error {
	if err := os.Remove(fs.path(ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove asset: %w", err)
	}
	fs.logger.Debug().Str("ref", ref).Msg("asset deleted")
	return nil
}

// Rename moves an asset to a new ref, creating the destination directory.
func (fs *FilesystemStore) Rename(ctx context.Context, oldRef, newRef string) error {
	newPath := fs.path(newRef)
	if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	if err := os.Rename(fs.path(oldRef), newPath); err != nil {
		return fmt.Errorf("rename asset: %w", err)
	}
	fs.logger.Debug().Str("from", oldRef).Str("to", newRef).Msg("asset renamed")
	return nil
}

// URL returns the ref itself; local playout mounts the same root.
func (fs *FilesystemStore) URL(ref string) string {
	return ref
}

// CheckAccess verifies the root exists and is a directory.
func (fs *FilesystemStore) CheckAccess(ctx context.Context) error {
	info, err := os.Stat(fs.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("audio root does not exist: %s", fs.rootDir)
		}
		return fmt.Errorf("cannot access audio root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("audio root is not a directory: %s", fs.rootDir)
	}
	return nil
}
