/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package selector picks concrete catalog content for one log element at a
// time. Policy is per content type: music ranks by least-recently-played
// with artist separation, advertisements walk the campaign waterfall, and
// every other type takes a plain least-recently-played pick. Selection
// never blocks and never errors on an empty candidate set; it returns a
// nil Choice and leaves the timing decision to the clock resolver.
package selector

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_traffic/internal/catalog"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

// DefaultArtistSeparation is the minimum gap between plays of the same
// artist when no station override is configured.
const DefaultArtistSeparation = 45 * time.Minute

// Score given to an item that has never played. Large enough to outrank
// any real recency gap, small enough that tie-break jitter survives
// float64 precision.
const neverPlayedScore = 1e12

// ErrUnknownType is returned when a request carries a content type outside
// the closed set.
var ErrUnknownType = errors.New("selector: unknown content type")

// Request describes one element to fill.
type Request struct {
	StationID    string
	AirDate      string // YYYY-MM-DD, used for campaign flight checks
	Hour         int
	At           time.Time // absolute placement instant
	Type         models.ContentType
	FallbackType models.ContentType
	Daypart      models.Daypart
	MinBPM       float64
	MaxBPM       float64
}

// Choice is a successful selection. FallbackUsed is set when the pick was
// downgraded from the requested inventory (paid ad to promo or PSA, or any
// type to its configured fallback type).
type Choice struct {
	Item         models.ContentItem
	FallbackUsed bool
}

// HourState accumulates what selection has already placed in the hour being
// resolved: artist play times, item play times, and per-campaign counts.
// It is seeded from play history and updated by Pick, and must not be
// shared between concurrently resolving hours.
type HourState struct {
	rng           *rand.Rand
	artistLast    map[string]time.Time
	itemLast      map[string]time.Time
	campaignPlays map[string]int
}

// NewHourState creates selection state for one hour. recentArtists seeds
// artist separation from play history (keys are lowercased artist names);
// the seed fixes tie-breaking so resolution is reproducible.
func NewHourState(seed int64, recentArtists map[string]time.Time) *HourState {
	state := &HourState{
		rng:           rand.New(rand.NewSource(seed)),
		artistLast:    make(map[string]time.Time, len(recentArtists)),
		itemLast:      make(map[string]time.Time),
		campaignPlays: make(map[string]int),
	}
	for artist, playedAt := range recentArtists {
		state.artistLast[artist] = playedAt
	}
	return state
}

// Observe records a placement so later picks in the same hour see it.
func (s *HourState) Observe(item models.ContentItem, at time.Time) {
	if item.Artist != "" {
		key := strings.ToLower(item.Artist)
		if last, ok := s.artistLast[key]; !ok || at.After(last) {
			s.artistLast[key] = at
		}
	}
	s.itemLast[item.ID] = at
	if item.CampaignID != nil {
		s.campaignPlays[*item.CampaignID]++
	}
}

// CampaignPlays returns how many placements a campaign has in this hour.
func (s *HourState) CampaignPlays(campaignID string) int {
	return s.campaignPlays[campaignID]
}

func (s *HourState) effectiveLastPlayed(item models.ContentItem) *time.Time {
	last := item.LastPlayedAt
	if placed, ok := s.itemLast[item.ID]; ok {
		if last == nil || placed.After(*last) {
			return &placed
		}
	}
	return last
}

// Selector applies the per-type selection policy. It is stateless and safe
// to share across concurrently resolving hours; all mutable selection state
// lives in the HourState passed to Pick.
type Selector struct {
	catalog          *catalog.Accessor
	logger           zerolog.Logger
	artistSeparation time.Duration
}

// New creates a selector. A zero artistSeparation selects the default.
func New(cat *catalog.Accessor, artistSeparation time.Duration, logger zerolog.Logger) *Selector {
	if artistSeparation <= 0 {
		artistSeparation = DefaultArtistSeparation
	}
	return &Selector{
		catalog:          cat,
		logger:           logger.With().Str("component", "selector").Logger(),
		artistSeparation: artistSeparation,
	}
}

// Pick selects content for one element. A nil Choice with a nil error means
// no content is available; the caller decides what that does to the
// timeline. Successful picks are recorded in state.
func (s *Selector) Pick(ctx context.Context, req Request, state *HourState) (*Choice, error) {
	choice, err := s.pickPrimary(ctx, req, state)
	if err != nil {
		return nil, err
	}

	if choice == nil && req.FallbackType != "" && req.FallbackType != req.Type {
		if !req.FallbackType.Valid() {
			return nil, fmt.Errorf("%w: fallback %q", ErrUnknownType, req.FallbackType)
		}
		items, err := s.catalog.ActiveByType(ctx, req.StationID, req.FallbackType)
		if err != nil {
			return nil, err
		}
		if item := s.pickLeastRecent(items, state, req.At); item != nil {
			choice = &Choice{Item: *item, FallbackUsed: true}
		}
	}

	if choice == nil {
		s.logger.Debug().
			Str("station_id", req.StationID).
			Int("hour", req.Hour).
			Str("type", string(req.Type)).
			Msg("no content available")
		return nil, nil
	}

	state.Observe(choice.Item, req.At)
	return choice, nil
}

func (s *Selector) pickPrimary(ctx context.Context, req Request, state *HourState) (*Choice, error) {
	switch req.Type {
	case models.TypeMusic:
		return s.pickMusic(ctx, req, state)
	case models.TypeAd:
		return s.pickAd(ctx, req, state)
	case models.TypePSA, models.TypeLiner, models.TypeStationID, models.TypeNews,
		models.TypeInterstitial, models.TypePromo, models.TypeBed:
		items, err := s.catalog.ActiveByType(ctx, req.StationID, req.Type)
		if err != nil {
			return nil, err
		}
		if item := s.pickLeastRecent(items, state, req.At); item != nil {
			return &Choice{Item: *item}, nil
		}
		return nil, nil
	case models.TypeVoiceTrack:
		// Voice tracks are filled by slot linking, never by catalog
		// selection.
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
	}
}

// pickMusic ranks eligible tracks by least-recently-played and skips any
// artist inside the separation window unless the candidate is a new
// release or allows back-to-back play.
func (s *Selector) pickMusic(ctx context.Context, req Request, state *HourState) (*Choice, error) {
	items, err := s.catalog.EligibleMusic(ctx, req.StationID, req.Daypart, req.MinBPM, req.MaxBPM)
	if err != nil {
		return nil, err
	}

	for _, item := range s.rank(items, state, req.At) {
		if s.violatesSeparation(item, state, req.At) && !item.NewRelease && !item.AllowBackToBack {
			continue
		}
		return &Choice{Item: item}, nil
	}

	return nil, nil
}

// pickAd walks the waterfall: campaign ads in priority order capped per
// campaign per hour, then uncampaigned ads, then promos, then PSAs. Picks
// below the ad tiers report FallbackUsed.
func (s *Selector) pickAd(ctx context.Context, req Request, state *HourState) (*Choice, error) {
	ads, err := s.catalog.ActiveByType(ctx, req.StationID, models.TypeAd)
	if err != nil {
		return nil, err
	}

	byCampaign := make(map[string][]models.ContentItem)
	var loose []models.ContentItem
	for _, ad := range ads {
		if ad.CampaignID == nil || *ad.CampaignID == "" {
			loose = append(loose, ad)
			continue
		}
		byCampaign[*ad.CampaignID] = append(byCampaign[*ad.CampaignID], ad)
	}

	campaigns, err := s.catalog.ActiveCampaigns(ctx, req.StationID, req.AirDate)
	if err != nil {
		return nil, err
	}

	for _, camp := range campaigns {
		maxPlays := camp.MaxPlaysPerHour
		if maxPlays <= 0 {
			maxPlays = 2
		}
		if state.CampaignPlays(camp.ID) >= maxPlays {
			continue
		}
		if item := s.pickLeastRecent(byCampaign[camp.ID], state, req.At); item != nil {
			return &Choice{Item: *item}, nil
		}
	}

	if item := s.pickLeastRecent(loose, state, req.At); item != nil {
		return &Choice{Item: *item}, nil
	}

	promos, err := s.catalog.ActiveByType(ctx, req.StationID, models.TypePromo)
	if err != nil {
		return nil, err
	}
	if item := s.pickLeastRecent(promos, state, req.At); item != nil {
		return &Choice{Item: *item, FallbackUsed: true}, nil
	}

	psas, err := s.catalog.ActiveByType(ctx, req.StationID, models.TypePSA)
	if err != nil {
		return nil, err
	}
	if item := s.pickLeastRecent(psas, state, req.At); item != nil {
		return &Choice{Item: *item, FallbackUsed: true}, nil
	}

	return nil, nil
}

func (s *Selector) pickLeastRecent(items []models.ContentItem, state *HourState, at time.Time) *models.ContentItem {
	ranked := s.rank(items, state, at)
	if len(ranked) == 0 {
		return nil
	}
	return &ranked[0]
}

// rank orders items least-recently-played first. Seeded jitter breaks
// exact ties; item id is the final tie-break so ordering is total.
func (s *Selector) rank(items []models.ContentItem, state *HourState, at time.Time) []models.ContentItem {
	type scored struct {
		item  models.ContentItem
		score float64
	}

	ranked := make([]scored, 0, len(items))
	for _, item := range items {
		score := neverPlayedScore
		if last := state.effectiveLastPlayed(item); last != nil {
			score = at.Sub(*last).Seconds()
		}
		score += state.rng.Float64() * 0.1
		ranked = append(ranked, scored{item: item, score: score})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].item.ID < ranked[j].item.ID
	})

	out := make([]models.ContentItem, len(ranked))
	for i, sc := range ranked {
		out[i] = sc.item
	}
	return out
}

func (s *Selector) violatesSeparation(item models.ContentItem, state *HourState, at time.Time) bool {
	if item.Artist == "" {
		return false
	}
	last, ok := state.artistLast[strings.ToLower(item.Artist)]
	if !ok {
		return false
	}
	return at.Sub(last) < s.artistSeparation
}
