/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"gorm.io/gorm"
)

// LogStatus tracks the editorial state of a daily log.
type LogStatus string

const (
	LogStatusGenerated LogStatus = "generated"
	LogStatusEdited    LogStatus = "edited"
)

// ChangeType classifies why a revision snapshot was taken.
const (
	ChangeTypeGenerate = "generate"
	ChangeTypeEdit     = "edit"
	ChangeTypeRevert   = "revert"
)

// LogElement is one resolved, timed content unit within an hour. StartSec,
// EndSec and ScheduledSec are offsets from the top of the hour.
// ScheduledDurationSec is the planning allotment the slot was given;
// retiming needs it to rebuild drift exactly, so it rides along with the
// actual duration.
type LogElement struct {
	Type                 ContentType `json:"type"`
	Title                string      `json:"title"`
	Artist               string      `json:"artist,omitempty"`
	DurationSec          int         `json:"duration_sec"`
	StartSec             int         `json:"start_sec"`
	EndSec               int         `json:"end_sec"`
	ScheduledSec         int         `json:"scheduled_sec"`
	ScheduledDurationSec int         `json:"scheduled_duration_sec,omitempty"`
	HardStart            bool        `json:"hard_start"`
	FileRef              string      `json:"file_ref,omitempty"`
	AutomationID         *int64      `json:"automation_id,omitempty"`
	ContentItemID        string      `json:"content_item_id,omitempty"`
	FallbackUsed         bool        `json:"fallback_used,omitempty"`
	Placeholder          bool        `json:"placeholder,omitempty"`
}

// HourBlock is one resolved hour of a daily log.
type HourBlock struct {
	Hour             int          `json:"hour"`
	Elements         []LogElement `json:"elements"`
	TotalDurationSec int          `json:"total_duration_sec"`
}

// HourArray is the full broadcast day, indexed by hour of day. A fixed
// array rules out missing or duplicated hour keys.
type HourArray [24]HourBlock

// Advisory is a non-fatal finding recorded during generation or publish
// conversion for operator visibility.
type Advisory struct {
	Hour   int    `json:"hour"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Advisory codes.
const (
	AdvisoryNoContent   = "no_content"  // selection came up empty, element omitted
	AdvisoryOverlap     = "overlap"     // hard start snapped inside the previous element
	AdvisoryOverrun     = "overrun"     // hour total exceeds 3600s
	AdvisoryOversell    = "oversell"    // paid inventory downgraded to promo/psa
	AdvisoryNoMediaID   = "no_media_id" // element dropped from wire output
	AdvisoryPlaceholder = "placeholder" // dead-air placeholder inserted
)

// AdvisoryList is a jsonb-persisted advisory collection.
type AdvisoryList []Advisory

// DailyLog is the versioned broadcast log for one station and air date.
// RevisionNumber doubles as the optimistic-concurrency version: every
// structural mutation bumps it and guards its UPDATE on the old value.
type DailyLog struct {
	ID             string       `gorm:"type:uuid;primaryKey" json:"id"`
	StationID      string       `gorm:"type:uuid;index:idx_daily_logs_station_date;not null" json:"station_id"`
	AirDate        string       `gorm:"type:varchar(10);index:idx_daily_logs_station_date;not null" json:"air_date"`
	Hours          HourArray    `gorm:"type:jsonb;serializer:json;not null" json:"hours"`
	Status         LogStatus    `gorm:"type:varchar(16);not null" json:"status"`
	Locked         bool         `gorm:"not null;default:false" json:"locked"`
	Published      bool         `gorm:"not null;default:false" json:"published"`
	RevisionNumber int          `gorm:"not null;default:1" json:"revision_number"`
	Conflicts      AdvisoryList `gorm:"type:jsonb;serializer:json" json:"conflicts,omitempty"`
	Oversell       AdvisoryList `gorm:"type:jsonb;serializer:json" json:"oversell,omitempty"`

	// Relationships
	Station *Station `gorm:"foreignKey:StationID" json:"station,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the table name for GORM.
func (DailyLog) TableName() string {
	return "daily_logs"
}

// TotalDurationSec sums the resolved duration of every hour.
func (d *DailyLog) TotalDurationSec() int {
	total := 0
	for i := range d.Hours {
		total += d.Hours[i].TotalDurationSec
	}
	return total
}

// Empty reports whether the log carries no elements at all.
func (d *DailyLog) Empty() bool {
	for i := range d.Hours {
		if len(d.Hours[i].Elements) > 0 {
			return false
		}
	}
	return true
}

// LogSnapshot is the typed revision payload: enough state to restore a log's
// content exactly, with an explicit schema rather than an opaque document.
type LogSnapshot struct {
	Hours     HourArray    `json:"hours"`
	Status    LogStatus    `json:"status"`
	Locked    bool         `json:"locked"`
	Published bool         `json:"published"`
	Conflicts AdvisoryList `json:"conflicts,omitempty"`
	Oversell  AdvisoryList `json:"oversell,omitempty"`
}

// LogRevision stores an immutable snapshot of a daily log for history and
// rollback. VersionNumber runs 1..N per log and never repeats.
type LogRevision struct {
	ID            string      `gorm:"type:uuid;primaryKey" json:"id"`
	DailyLogID    string      `gorm:"type:uuid;uniqueIndex:idx_log_revisions_log_version;not null" json:"daily_log_id"`
	VersionNumber int         `gorm:"uniqueIndex:idx_log_revisions_log_version;not null" json:"version_number"`
	Snapshot      LogSnapshot `gorm:"type:jsonb;serializer:json;not null" json:"snapshot"`
	ChangeSummary string      `gorm:"type:text" json:"change_summary,omitempty"`
	ChangeType    string      `gorm:"type:varchar(32)" json:"change_type,omitempty"`

	// Who made the change
	ChangedByID *string `gorm:"type:uuid" json:"changed_by_id,omitempty"`
	ChangedBy   *User   `gorm:"foreignKey:ChangedByID" json:"changed_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (LogRevision) TableName() string {
	return "log_revisions"
}
