package clock

import (
	"context"
	"time"

	"github.com/friendsincode/muninn_traffic/internal/models"
	"github.com/friendsincode/muninn_traffic/internal/selector"
)

// Estimated per-type durations in seconds. They drive pass-one desired
// times; once content is selected its real length replaces the estimate.
var estimatedDurations = map[models.ContentType]int{
	models.TypeMusic:        180,
	models.TypeAd:           60,
	models.TypePSA:          45,
	models.TypeLiner:        30,
	models.TypeStationID:    10,
	models.TypeNews:         300,
	models.TypeInterstitial: 300,
	models.TypePromo:        30,
	models.TypeBed:          15,
	models.TypeVoiceTrack:   60,
}

// EstimatedDuration returns the planning estimate for a content type.
func EstimatedDuration(t models.ContentType) int {
	if d, ok := estimatedDurations[t]; ok {
		return d
	}
	return 60
}

// Anchor clock positions, seconds into the hour.
const (
	anchorTopSec    = 0
	anchorBottomSec = 3540
)

const secondsPerHour = 3600

// ContentPicker selects catalog content for one element at a time.
type ContentPicker interface {
	Pick(ctx context.Context, req selector.Request, state *selector.HourState) (*selector.Choice, error)
}

// HourRequest asks for one hour of a station's day to be resolved.
type HourRequest struct {
	StationID string
	AirDate   string    // YYYY-MM-DD
	Hour      int       // 0-23
	HourStart time.Time // absolute start of the hour in station time
	Template  *models.ClockTemplate
	Seed      int64
	Recent    map[string]time.Time // lowercased artist -> last play
	MinBPM    float64
	MaxBPM    float64
}

// HourResolution is one hour's concrete timeline plus everything the
// operator should know about how resolution went.
type HourResolution struct {
	Hour             int
	Elements         []models.LogElement
	TotalDurationSec int
	Advisories       []models.Advisory
}
