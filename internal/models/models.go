package models

import (
	"fmt"
	"time"
)

// RoleName enumerates the RBAC roles.
type RoleName string

const (
	RoleAdmin   RoleName = "admin"
	RoleTraffic RoleName = "traffic"
	RoleTalent  RoleName = "talent"
)

// User represents an authenticated account.
type User struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Email     string `gorm:"uniqueIndex"`
	Password  string
	Role      RoleName `gorm:"type:varchar(16)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Station is the broadcast outlet logs are generated for.
type Station struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Name        string `gorm:"uniqueIndex"`
	Callsign    string `gorm:"type:varchar(16)"`
	Description string `gorm:"type:text"`
	Timezone    string `gorm:"type:varchar(32)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ContentType is the closed set of schedulable content kinds.
type ContentType string

const (
	TypeMusic        ContentType = "music"
	TypeAd           ContentType = "ad"
	TypePSA          ContentType = "psa"
	TypeLiner        ContentType = "liner"
	TypeStationID    ContentType = "station_id"
	TypeNews         ContentType = "news"
	TypeInterstitial ContentType = "interstitial"
	TypePromo        ContentType = "promo"
	TypeBed          ContentType = "bed"
	TypeVoiceTrack   ContentType = "voice_track"
)

// ContentTypes lists every valid content type, in no particular order.
var ContentTypes = []ContentType{
	TypeMusic, TypeAd, TypePSA, TypeLiner, TypeStationID,
	TypeNews, TypeInterstitial, TypePromo, TypeBed, TypeVoiceTrack,
}

// Valid reports whether t is a member of the closed type set.
func (t ContentType) Valid() bool {
	for _, ct := range ContentTypes {
		if t == ct {
			return true
		}
	}
	return false
}

// Daypart represents a time-of-day segment.
type Daypart string

const (
	DaypartMorning   Daypart = "morning"   // 6am-10am
	DaypartMidday    Daypart = "midday"    // 10am-3pm
	DaypartAfternoon Daypart = "afternoon" // 3pm-7pm
	DaypartEvening   Daypart = "evening"   // 7pm-12am
	DaypartOvernight Daypart = "overnight" // 12am-6am
)

// DaypartForHour maps an hour of day (0-23) to its daypart.
func DaypartForHour(hour int) Daypart {
	switch {
	case hour >= 6 && hour < 10:
		return DaypartMorning
	case hour >= 10 && hour < 15:
		return DaypartMidday
	case hour >= 15 && hour < 19:
		return DaypartAfternoon
	case hour >= 19:
		return DaypartEvening
	default:
		return DaypartOvernight
	}
}

// ContentItem is a playable catalog entry: a song, spot, liner, or other
// scheduled unit. AutomationID is the playout system's numeric media id;
// items without one are matched by FileRef at publish time.
type ContentItem struct {
	ID              string      `gorm:"type:uuid;primaryKey"`
	StationID       string      `gorm:"type:uuid;index"`
	Type            ContentType `gorm:"type:varchar(32);index"`
	Title           string      `gorm:"index"`
	Artist          string      `gorm:"index"`
	DurationSec     int
	FileRef         string `gorm:"index"`
	AutomationID    *int64
	Daypart         Daypart `gorm:"type:varchar(16)"`
	BPM             float64
	RampInSec       float64
	NewRelease      bool
	AllowBackToBack bool
	CampaignID      *string `gorm:"type:uuid;index"`
	Active          bool    `gorm:"not null;default:true"`
	LastPlayedAt    *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Campaign groups paid advertisement inventory with flight dates and
// rotation priority. Higher Priority wins in the selection waterfall.
type Campaign struct {
	ID              string `gorm:"type:uuid;primaryKey"`
	StationID       string `gorm:"type:uuid;index"`
	Name            string `gorm:"index"`
	Advertiser      string
	Priority        int       `gorm:"index"`
	StartDate       time.Time `gorm:"type:date"`
	EndDate         time.Time `gorm:"type:date"`
	MaxPlaysPerHour int       `gorm:"not null;default:2"`
	Active          bool      `gorm:"not null;default:true"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PlayHistory stores as-played events reconciled from the automation system.
type PlayHistory struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	StationID     string `gorm:"type:uuid;index"`
	ContentItemID string `gorm:"type:uuid;index"`
	Artist        string `gorm:"index"`
	Title         string
	Type          ContentType `gorm:"type:varchar(32)"`
	PlayedAt      time.Time   `gorm:"index"`
}

// StandardizedBreakName builds the stable cross-day key for a voice-track
// break slot, e.g. hour 14 break "A" -> "14-00_BreakA".
func StandardizedBreakName(hour int, letter string) string {
	return fmt.Sprintf("%02d-00_Break%s", hour, letter)
}
