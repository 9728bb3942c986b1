/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AnchorPosition pins a hard-start slot to a fixed clock position.
type AnchorPosition string

const (
	AnchorNone   AnchorPosition = ""
	AnchorTop    AnchorPosition = "top"    // 0s into the hour
	AnchorBottom AnchorPosition = "bottom" // 3540s into the hour
)

// ClockSlot is one element spec within an hour template. Slots without an
// explicit offset or anchor float: the resolver assigns their desired time
// from the per-type estimated-duration table. FixedDurationSec pins the
// allotted time regardless of what content fills the slot (news bulletins,
// timed features); without it the selected item's own length applies.
type ClockSlot struct {
	Position           int            `json:"position"`
	Type               ContentType    `json:"type"`
	Count              int            `json:"count"`
	FallbackType       ContentType    `json:"fallback_type,omitempty"`
	HardStart          bool           `json:"hard_start"`
	ScheduledOffsetSec *int           `json:"scheduled_offset_sec,omitempty"`
	FixedDurationSec   *int           `json:"fixed_duration_sec,omitempty"`
	Anchor             AnchorPosition `json:"anchor,omitempty"`
}

// ClockSlotList is the ordered slot document stored on a template.
type ClockSlotList []ClockSlot

// ClockTemplate describes one hour's intended content as an ordered recipe
// of element specs. StartHour/EndHour bound the hours of day the template
// applies to; an EndHour below StartHour wraps past midnight. When several
// templates apply to an hour the narrowest window wins.
type ClockTemplate struct {
	ID        string        `gorm:"type:uuid;primaryKey" json:"id"`
	StationID string        `gorm:"type:uuid;index:idx_clock_templates_station;not null" json:"station_id"`
	Name      string        `gorm:"type:varchar(255);not null" json:"name"`
	StartHour int           `gorm:"not null" json:"start_hour"`
	EndHour   int           `gorm:"not null" json:"end_hour"`
	Slots     ClockSlotList `gorm:"type:jsonb;serializer:json;not null" json:"slots"`

	// Relationships
	Station *Station `gorm:"foreignKey:StationID" json:"station,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (ClockTemplate) TableName() string {
	return "clock_templates"
}

// WindowWidth returns the template's applicability span in hours, treating
// an end below the start as an overnight wrap. The degenerate equal-hours
// window covers the whole day and reports the full 24 so it always loses
// specificity ties to real windows.
func (c ClockTemplate) WindowWidth() int {
	if c.StartHour == c.EndHour {
		return 24
	}
	if c.EndHour > c.StartHour {
		return c.EndHour - c.StartHour
	}
	return (24 - c.StartHour) + c.EndHour
}

// AppliesTo reports whether the template covers the given hour of day.
// Windows are half-open [StartHour, EndHour); a wrapped window such as
// 22-06 covers 22, 23, 0..5.
func (c ClockTemplate) AppliesTo(hour int) bool {
	if c.StartHour == c.EndHour {
		// Degenerate window covers the whole day.
		return true
	}
	if c.EndHour > c.StartHour {
		return hour >= c.StartHour && hour < c.EndHour
	}
	return hour >= c.StartHour || hour < c.EndHour
}
