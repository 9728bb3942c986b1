/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package clock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_traffic/internal/models"
	"github.com/friendsincode/muninn_traffic/internal/selector"
	"github.com/friendsincode/muninn_traffic/internal/telemetry"
)

// ErrInvalidTemplate flags a template that fails structural validation.
// Validation runs before any resolution or persistence happens.
var ErrInvalidTemplate = errors.New("clock: invalid template")

// Resolver turns one hour's clock template into a timed element sequence.
//
// Resolution runs in two passes. Pass one walks the template's slots in
// position order, expands each by its count, and assigns every occurrence a
// desired time: an explicit offset or anchor when the slot has one,
// otherwise a monotonically advancing plan built from the estimated
// durations. Pass two places content against a running cursor: a hard
// start snaps the cursor to its desired time and zeroes the drift, while
// flexible elements chase `desired - drift` without ever moving the cursor
// backward. Drift is how far the hour is running ahead of its plan
// (negative when behind), so short content pulls later elements earlier
// and long content pushes them later, keeping the hour contiguous either
// way.
type Resolver struct {
	picker          ContentPicker
	logger          zerolog.Logger
	placeholderFill bool
}

// NewResolver constructs a resolver. When placeholderFill is set, an
// element whose selection comes up empty is kept as a placeholder holding
// its planned time instead of being omitted.
func NewResolver(picker ContentPicker, placeholderFill bool, logger zerolog.Logger) *Resolver {
	return &Resolver{
		picker:          picker,
		logger:          logger.With().Str("component", "clock").Logger(),
		placeholderFill: placeholderFill,
	}
}

// ValidateTemplate rejects a malformed template: unknown element types,
// missing counts, out-of-range offsets or windows.
func ValidateTemplate(tpl *models.ClockTemplate) error {
	if tpl == nil {
		return fmt.Errorf("%w: nil template", ErrInvalidTemplate)
	}
	if tpl.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidTemplate)
	}
	if tpl.StartHour < 0 || tpl.StartHour > 23 {
		return fmt.Errorf("%w: start_hour %d out of range", ErrInvalidTemplate, tpl.StartHour)
	}
	if tpl.EndHour < 0 || tpl.EndHour > 24 {
		return fmt.Errorf("%w: end_hour %d out of range", ErrInvalidTemplate, tpl.EndHour)
	}
	if len(tpl.Slots) == 0 {
		return fmt.Errorf("%w: at least one slot required", ErrInvalidTemplate)
	}

	for i, slot := range tpl.Slots {
		if !slot.Type.Valid() {
			return fmt.Errorf("%w: slot %d: unknown type %q", ErrInvalidTemplate, i, slot.Type)
		}
		if slot.Count < 1 {
			return fmt.Errorf("%w: slot %d: count must be at least 1", ErrInvalidTemplate, i)
		}
		if slot.FallbackType != "" && !slot.FallbackType.Valid() {
			return fmt.Errorf("%w: slot %d: unknown fallback type %q", ErrInvalidTemplate, i, slot.FallbackType)
		}
		if slot.ScheduledOffsetSec != nil {
			if off := *slot.ScheduledOffsetSec; off < 0 || off >= secondsPerHour {
				return fmt.Errorf("%w: slot %d: offset %d out of range", ErrInvalidTemplate, i, off)
			}
		}
		if slot.FixedDurationSec != nil && *slot.FixedDurationSec <= 0 {
			return fmt.Errorf("%w: slot %d: fixed duration must be positive", ErrInvalidTemplate, i)
		}
		switch slot.Anchor {
		case models.AnchorNone, models.AnchorTop, models.AnchorBottom:
		default:
			return fmt.Errorf("%w: slot %d: unknown anchor %q", ErrInvalidTemplate, i, slot.Anchor)
		}
	}

	return nil
}

// unit is one expanded slot occurrence with its pass-one desired time.
type unit struct {
	slot       models.ClockSlot
	desiredSec int
	nominalSec int
	hardStart  bool
}

func expandUnits(tpl *models.ClockTemplate) []unit {
	slots := make([]models.ClockSlot, len(tpl.Slots))
	copy(slots, tpl.Slots)
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Position < slots[j].Position
	})

	units := make([]unit, 0, len(slots))
	desired := 0
	for _, slot := range slots {
		count := slot.Count
		if count < 1 {
			count = 1
		}
		nominal := EstimatedDuration(slot.Type)
		if slot.FixedDurationSec != nil {
			nominal = *slot.FixedDurationSec
		}

		for n := 0; n < count; n++ {
			u := unit{
				slot:       slot,
				nominalSec: nominal,
				hardStart:  slot.HardStart || slot.Anchor != models.AnchorNone,
			}
			switch {
			case slot.Anchor == models.AnchorTop:
				u.desiredSec = anchorTopSec + n*nominal
			case slot.Anchor == models.AnchorBottom:
				u.desiredSec = anchorBottomSec + n*nominal
			case slot.ScheduledOffsetSec != nil:
				u.desiredSec = *slot.ScheduledOffsetSec + n*nominal
			default:
				u.desiredSec = desired
			}
			if end := u.desiredSec + nominal; end > desired {
				desired = end
			}
			units = append(units, u)
		}
	}

	return units
}

// ResolveHour expands and times one hour. Selection that comes up empty
// never fails the hour; it is surfaced as an advisory and the element is
// omitted (or held as a placeholder, per configuration).
func (r *Resolver) ResolveHour(ctx context.Context, req HourRequest) (*HourResolution, error) {
	if err := ValidateTemplate(req.Template); err != nil {
		return nil, err
	}

	state := selector.NewHourState(req.Seed, req.Recent)
	daypart := models.DaypartForHour(req.Hour)
	units := expandUnits(req.Template)

	res := &HourResolution{Hour: req.Hour}
	cursor := 0
	drift := 0

	for _, u := range units {
		if u.hardStart {
			if u.desiredSec < cursor && len(res.Elements) > 0 {
				res.Advisories = append(res.Advisories, models.Advisory{
					Hour:   req.Hour,
					Code:   models.AdvisoryOverlap,
					Detail: fmt.Sprintf("hard start at %ds overlaps content running to %ds", u.desiredSec, cursor),
				})
			}
			cursor = u.desiredSec
			drift = 0
		} else {
			target := u.desiredSec - drift
			if target < cursor {
				target = cursor
			}
			cursor = target
		}

		// Voice-track slots mark breaks; slot linking fills them later.
		if u.slot.Type == models.TypeVoiceTrack {
			elem := models.LogElement{
				Type:                 models.TypeVoiceTrack,
				Title:                "Voice Track Break",
				DurationSec:          u.nominalSec,
				StartSec:             cursor,
				EndSec:               cursor + u.nominalSec,
				ScheduledSec:         u.desiredSec,
				ScheduledDurationSec: u.nominalSec,
				HardStart:            u.hardStart,
				Placeholder:          true,
			}
			res.Elements = append(res.Elements, elem)
			cursor = elem.EndSec
			drift = u.desiredSec + u.nominalSec - cursor
			continue
		}

		choice, err := r.picker.Pick(ctx, selector.Request{
			StationID:    req.StationID,
			AirDate:      req.AirDate,
			Hour:         req.Hour,
			At:           req.HourStart.Add(time.Duration(cursor) * time.Second),
			Type:         u.slot.Type,
			FallbackType: u.slot.FallbackType,
			Daypart:      daypart,
			MinBPM:       req.MinBPM,
			MaxBPM:       req.MaxBPM,
		}, state)
		if err != nil {
			return nil, err
		}

		if choice == nil {
			telemetry.ElementsOmitted.WithLabelValues(string(u.slot.Type)).Inc()
			res.Advisories = append(res.Advisories, models.Advisory{
				Hour:   req.Hour,
				Code:   models.AdvisoryNoContent,
				Detail: fmt.Sprintf("no %s content available at %ds", u.slot.Type, cursor),
			})
			if !r.placeholderFill {
				// Omitted entirely: no time consumed, drift untouched.
				continue
			}
			elem := models.LogElement{
				Type:                 u.slot.Type,
				Title:                "Placeholder",
				DurationSec:          u.nominalSec,
				StartSec:             cursor,
				EndSec:               cursor + u.nominalSec,
				ScheduledSec:         u.desiredSec,
				ScheduledDurationSec: u.nominalSec,
				HardStart:            u.hardStart,
				Placeholder:          true,
			}
			res.Advisories = append(res.Advisories, models.Advisory{
				Hour:   req.Hour,
				Code:   models.AdvisoryPlaceholder,
				Detail: fmt.Sprintf("placeholder holding %ds for %s at %ds", u.nominalSec, u.slot.Type, cursor),
			})
			res.Elements = append(res.Elements, elem)
			cursor = elem.EndSec
			drift = u.desiredSec + u.nominalSec - cursor
			continue
		}

		dur := choice.Item.DurationSec
		if u.slot.FixedDurationSec != nil {
			dur = *u.slot.FixedDurationSec
		} else if dur <= 0 {
			dur = u.nominalSec
		}

		elem := models.LogElement{
			Type:                 choice.Item.Type,
			Title:                choice.Item.Title,
			Artist:               choice.Item.Artist,
			DurationSec:          dur,
			StartSec:             cursor,
			EndSec:               cursor + dur,
			ScheduledSec:         u.desiredSec,
			ScheduledDurationSec: u.nominalSec,
			HardStart:            u.hardStart,
			FileRef:              choice.Item.FileRef,
			AutomationID:         choice.Item.AutomationID,
			ContentItemID:        choice.Item.ID,
			FallbackUsed:         choice.FallbackUsed,
		}
		res.Elements = append(res.Elements, elem)
		telemetry.ElementsResolved.WithLabelValues(string(elem.Type)).Inc()

		if choice.FallbackUsed && u.slot.Type == models.TypeAd {
			res.Advisories = append(res.Advisories, models.Advisory{
				Hour:   req.Hour,
				Code:   models.AdvisoryOversell,
				Detail: fmt.Sprintf("ad slot at %ds filled with %s %q", elem.StartSec, choice.Item.Type, choice.Item.Title),
			})
		}

		cursor = elem.EndSec
		drift = u.desiredSec + u.nominalSec - cursor
	}

	total := 0
	for _, elem := range res.Elements {
		total += elem.DurationSec
	}
	res.TotalDurationSec = total

	if cursor > secondsPerHour {
		res.Advisories = append(res.Advisories, models.Advisory{
			Hour:   req.Hour,
			Code:   models.AdvisoryOverrun,
			Detail: fmt.Sprintf("hour content runs to %ds", cursor),
		})
	}

	r.logger.Debug().
		Int("hour", req.Hour).
		Int("elements", len(res.Elements)).
		Int("total_sec", total).
		Int("advisories", len(res.Advisories)).
		Msg("hour resolved")

	return res, nil
}

// Retime recomputes timing from fromIdx onward after a structural edit,
// replaying the cursor-and-drift walk over the stored scheduled times and
// hard-start pins. Elements before fromIdx keep their timing; the walk
// rebuilds its drift from the element just before the edit point.
func Retime(hour int, elements []models.LogElement, fromIdx int) []models.Advisory {
	if fromIdx < 0 {
		fromIdx = 0
	}
	if fromIdx > len(elements) {
		fromIdx = len(elements)
	}

	cursor := 0
	drift := 0
	if fromIdx > 0 {
		prev := elements[fromIdx-1]
		cursor = prev.EndSec
		nominal := prev.ScheduledDurationSec
		if nominal <= 0 {
			nominal = prev.DurationSec
		}
		drift = prev.ScheduledSec + nominal - prev.EndSec
	}

	var advisories []models.Advisory
	for i := fromIdx; i < len(elements); i++ {
		elem := &elements[i]
		if elem.HardStart {
			if elem.ScheduledSec < cursor && i > 0 {
				advisories = append(advisories, models.Advisory{
					Hour:   hour,
					Code:   models.AdvisoryOverlap,
					Detail: fmt.Sprintf("hard start at %ds overlaps content running to %ds", elem.ScheduledSec, cursor),
				})
			}
			cursor = elem.ScheduledSec
			drift = 0
		} else {
			target := elem.ScheduledSec - drift
			if target < cursor {
				target = cursor
			}
			cursor = target
		}

		elem.StartSec = cursor
		elem.EndSec = cursor + elem.DurationSec
		cursor = elem.EndSec

		nominal := elem.ScheduledDurationSec
		if nominal <= 0 {
			nominal = elem.DurationSec
		}
		drift = elem.ScheduledSec + nominal - elem.EndSec
	}

	if cursor > secondsPerHour {
		advisories = append(advisories, models.Advisory{
			Hour:   hour,
			Code:   models.AdvisoryOverrun,
			Detail: fmt.Sprintf("hour content runs to %ds", cursor),
		})
	}

	return advisories
}
