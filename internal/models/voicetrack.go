/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/google/uuid"
)

// SlotStatus tracks a voice-track slot's progress toward a linked recording.
type SlotStatus string

const (
	SlotOpen     SlotStatus = "open"
	SlotAssigned SlotStatus = "assigned"
	SlotLinked   SlotStatus = "linked"
)

// VoiceTrackSlot is a talk break derived from a generated hour. The
// StandardizedName ("HH-00_BreakX") is stable per (hour, break letter) and
// is the only join key used for cross-day recording fallback. The Prev/Next
// fields preview the surrounding music so talent knows what they are talking
// out of and into; PrevRampOutSec and NextRampInSec are the analyzer's
// talk-over estimates for the preceding outro and following intro.
type VoiceTrackSlot struct {
	ID               string     `gorm:"type:uuid;primaryKey" json:"id"`
	DailyLogID       string     `gorm:"type:uuid;index:idx_vt_slots_log;not null" json:"daily_log_id"`
	StationID        string     `gorm:"type:uuid;index:idx_vt_slots_station;not null" json:"station_id"`
	AirDate          string     `gorm:"type:varchar(10);not null" json:"air_date"`
	Hour             int        `gorm:"not null" json:"hour"`
	BreakLetter      string     `gorm:"type:varchar(4);not null" json:"break_letter"`
	StandardizedName string     `gorm:"type:varchar(32);index:idx_vt_slots_name;not null" json:"standardized_name"`
	OffsetSec        int        `json:"offset_sec"`
	Status           SlotStatus `gorm:"type:varchar(16);not null" json:"status"`

	TalentID     *string `gorm:"type:uuid" json:"talent_id,omitempty"`
	VoiceTrackID *string `gorm:"type:uuid" json:"voice_track_id,omitempty"`

	PrevTitle      string  `gorm:"type:varchar(255)" json:"prev_title,omitempty"`
	PrevArtist     string  `gorm:"type:varchar(255)" json:"prev_artist,omitempty"`
	PrevFileRef    string  `json:"prev_file_ref,omitempty"`
	PrevRampOutSec float64 `json:"prev_ramp_out_sec,omitempty"`
	NextTitle      string  `gorm:"type:varchar(255)" json:"next_title,omitempty"`
	NextArtist     string  `gorm:"type:varchar(255)" json:"next_artist,omitempty"`
	NextFileRef    string  `json:"next_file_ref,omitempty"`
	NextRampInSec  float64 `json:"next_ramp_in_sec,omitempty"`

	// Relationships
	VoiceTrack *VoiceTrack `gorm:"foreignKey:VoiceTrackID" json:"voice_track,omitempty"`
	Talent     *User       `gorm:"foreignKey:TalentID" json:"talent,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (VoiceTrackSlot) TableName() string {
	return "voice_track_slots"
}

// VoiceTrack is a recorded talk segment. RecordedDate is date-only: fallback
// lookup walks it backward day by day against a slot's air date.
type VoiceTrack struct {
	ID               string `gorm:"type:uuid;primaryKey" json:"id"`
	StationID        string `gorm:"type:uuid;index:idx_voice_tracks_station;not null" json:"station_id"`
	StandardizedName string `gorm:"type:varchar(32);index:idx_voice_tracks_name_date;not null" json:"standardized_name"`
	RecordedDate     string `gorm:"type:varchar(10);index:idx_voice_tracks_name_date;not null" json:"recorded_date"`
	Take             int    `gorm:"not null;default:1" json:"take"`
	Final            bool   `gorm:"not null;default:false" json:"final"`
	FileRef          string `json:"file_ref,omitempty"`
	AutomationID     *int64 `json:"automation_id,omitempty"`
	DurationSec      int    `json:"duration_sec"`

	TalentID *string `gorm:"type:uuid" json:"talent_id,omitempty"`
	Talent   *User   `gorm:"foreignKey:TalentID" json:"talent,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (VoiceTrack) TableName() string {
	return "voice_tracks"
}

// NewVoiceTrack creates a recording stub for a standardized break name.
func NewVoiceTrack(stationID, standardizedName, recordedDate string) *VoiceTrack {
	return &VoiceTrack{
		ID:               uuid.NewString(),
		StationID:        stationID,
		StandardizedName: standardizedName,
		RecordedDate:     recordedDate,
		Take:             1,
	}
}
