/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package analysis derives talk-over ramp estimates for catalog audio.
// Voice-track slot previews use these so talent knows how much intro and
// outro space the surrounding songs give them.
package analysis

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_traffic/internal/cache"
	"github.com/friendsincode/muninn_traffic/internal/catalog"
)

// Estimator answers ramp queries from the catalog, with a Redis-backed
// cache in front since slot rebuilds ask about the same songs repeatedly.
type Estimator struct {
	catalog *catalog.Accessor
	cache   *cache.Cache
	logger  zerolog.Logger
}

// New wires an estimator. cache may be nil; every query then hits the
// catalog directly.
func New(cat *catalog.Accessor, c *cache.Cache, logger zerolog.Logger) *Estimator {
	return &Estimator{
		catalog: cat,
		cache:   c,
		logger:  logger.With().Str("component", "analysis").Logger(),
	}
}

// RampEstimates returns the intro and outro talk-over windows in seconds
// for a file. A measured intro ramp from the library import wins; missing
// measurements fall back to duration heuristics. The outro window is always
// heuristic: the importers never measure one.
func (e *Estimator) RampEstimates(ctx context.Context, stationID, fileRef string) (float64, float64, error) {
	if e.cache != nil {
		if ramp, ok := e.cache.GetRamp(ctx, stationID, fileRef); ok {
			return ramp.RampInSec, ramp.RampOutSec, nil
		}
	}

	item, err := e.catalog.FindByFileRef(ctx, stationID, fileRef)
	if err != nil {
		return 0, 0, err
	}

	rampIn, rampOut := estimate(float64(item.DurationSec), item.RampInSec)

	if e.cache != nil {
		if err := e.cache.SetRamp(ctx, stationID, fileRef, cache.CachedRamp{
			RampInSec:  rampIn,
			RampOutSec: rampOut,
		}); err != nil {
			e.logger.Debug().Err(err).Str("file_ref", fileRef).Msg("ramp cache write failed")
		}
	}

	return rampIn, rampOut, nil
}

// estimate computes the ramp windows. The intro defaults to a tenth of the
// song capped at 15s; the outro starts at most 10s before the end but never
// inside the intro's first 5s of clearance.
func estimate(durationSec, measuredIn float64) (rampIn, rampOut float64) {
	rampIn = measuredIn
	if rampIn <= 0 {
		rampIn = math.Min(15, durationSec*0.1)
	}

	outroStart := math.Max(durationSec-10, rampIn+5)
	rampOut = durationSec - outroStart
	if rampOut < 0 {
		rampOut = 0
	}
	return rampIn, rampOut
}
