/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage holds the audio assets the engine references by file ref:
// voice-track recordings above all, plus anything an import lands. A file
// ref is a storage-relative path and is what the database and the wire
// format carry; the backend decides what it physically means.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_traffic/internal/config"
)

// Store abstracts the asset backend. Rename exists because linking a
// voice-track recording to a slot renames the asset to the slot's
// standardized name.
type Store interface {
	Save(ctx context.Context, ref string, r io.Reader) error
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
	Rename(ctx context.Context, oldRef, newRef string) error
	URL(ref string) string
	CheckAccess(ctx context.Context) error
}

// New picks a backend from config: S3 when a bucket is configured,
// filesystem otherwise.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, error) {
	if cfg.S3Bucket != "" {
		store, err := NewS3Store(ctx, S3Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKeyID:   cfg.S3AccessKeyID,
			SecretKey:     cfg.S3SecretAccessKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("storage: init s3 backend: %w", err)
		}
		return store, nil
	}
	return NewFilesystemStore(cfg.AudioRoot, logger), nil
}
