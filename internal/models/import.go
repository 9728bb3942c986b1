/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// ImportJob tracks one legacy-system import run.
type ImportJob struct {
	ID         string         `gorm:"type:uuid;primaryKey" json:"id"`
	Source     string         `gorm:"type:varchar(32);not null" json:"source"`
	Status     string         `gorm:"type:varchar(16);not null" json:"status"` // running, complete, failed
	Stats      map[string]any `gorm:"type:jsonb;serializer:json" json:"stats,omitempty"`
	Error      string         `gorm:"type:text" json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// TableName returns the table name for GORM.
func (ImportJob) TableName() string {
	return "import_jobs"
}
