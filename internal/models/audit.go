/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

// Audit action constants for log lifecycle and voice-track operations.
const (
	AuditActionLogGenerate      AuditAction = "log.generate"
	AuditActionLogEdit          AuditAction = "log.edit"
	AuditActionLogLock          AuditAction = "log.lock"
	AuditActionLogUnlock        AuditAction = "log.unlock"
	AuditActionLogRevert        AuditAction = "log.revert"
	AuditActionLogPublish       AuditAction = "log.publish"
	AuditActionLogPublishFailed AuditAction = "log.publish_failed"
	AuditActionAsPlayed         AuditAction = "log.as_played"
	AuditActionSlotAssign       AuditAction = "slot.assign"
	AuditActionSlotLink         AuditAction = "slot.link"
	AuditActionClockCreate      AuditAction = "clock.create"
	AuditActionClockUpdate      AuditAction = "clock.update"
	AuditActionClockDelete      AuditAction = "clock.delete"
	AuditActionUserCreate       AuditAction = "user.create"
	AuditActionImportRun        AuditAction = "import.run"
	AuditActionIntegrityRepair  AuditAction = "integrity.repair"
)

// AuditLog records sensitive operations for traceability and compliance.
type AuditLog struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	Timestamp    time.Time      `gorm:"index:idx_audit_timestamp;not null"`
	UserID       *string        `gorm:"type:uuid;index:idx_audit_user"`    // NULL for system actions
	UserEmail    string         `gorm:"type:varchar(255)"`                 // Denormalized for readability
	StationID    *string        `gorm:"type:uuid;index:idx_audit_station"` // NULL if platform-wide
	Action       AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null"`
	ResourceType string         `gorm:"type:varchar(64)"` // "daily_log", "voice_track_slot", "clock_template", ...
	ResourceID   string         `gorm:"type:uuid"`        // ID of the affected resource
	Details      map[string]any `gorm:"type:jsonb;serializer:json"`
	CreatedAt    time.Time
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
