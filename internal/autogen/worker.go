/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package autogen

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/dailylog"
	"github.com/friendsincode/muninn_traffic/internal/models"
	"github.com/friendsincode/muninn_traffic/internal/telemetry"
)

// LeaderGate decides whether this instance may run singleton work.
type LeaderGate interface {
	IsLeader() bool
}

// SoleInstance passes the gate unconditionally. Used when no Redis is
// configured and the deployment is a single process.
type SoleInstance struct{}

func (SoleInstance) IsLeader() bool { return true }

// Generator is the slice of the daily log service the worker drives.
type Generator interface {
	ByStationDate(ctx context.Context, stationID, airDate string) (*models.DailyLog, error)
	Generate(ctx context.Context, stationID, airDate string, opts dailylog.GenerateOptions) (*models.DailyLog, error)
}

// Worker generates upcoming daily logs overnight so traffic staff start
// their day from a full log rather than an empty one. Each station fires
// once per local day at the configured hour; days that already have a
// log are never touched, which also makes re-runs after a restart or a
// leadership handoff harmless.
type Worker struct {
	db     *gorm.DB
	logs   Generator
	gate   LeaderGate
	hour   int
	days   int
	logger zerolog.Logger

	mu      sync.Mutex
	lastRun map[string]string // station id -> local date of the last attempt
}

// New constructs the worker. A nil gate runs ungated.
func New(db *gorm.DB, logs Generator, gate LeaderGate, hour, daysAhead int, logger zerolog.Logger) *Worker {
	if gate == nil {
		gate = SoleInstance{}
	}
	if hour < 0 || hour > 23 {
		hour = 22
	}
	if daysAhead < 1 {
		daysAhead = 1
	}
	return &Worker{
		db:      db,
		logs:    logs,
		gate:    gate,
		hour:    hour,
		days:    daysAhead,
		logger:  logger.With().Str("component", "autogen").Logger(),
		lastRun: make(map[string]string),
	}
}

// Run executes the worker loop until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	w.logger.Info().Int("hour", w.hour).Int("days_ahead", w.days).Msg("auto-generation worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("auto-generation worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx, time.Now())
		}
	}
}

func (w *Worker) tick(ctx context.Context, now time.Time) {
	if !w.gate.IsLeader() {
		return
	}

	var stations []models.Station
	if err := w.db.WithContext(ctx).Select("id", "timezone").Find(&stations).Error; err != nil {
		w.logger.Error().Err(err).Msg("autogen failed to load stations")
		return
	}

	for _, st := range stations {
		localNow := now.In(stationLocation(st.Timezone))
		if localNow.Hour() != w.hour {
			continue
		}
		localDate := localNow.Format("2006-01-02")
		if w.ranOn(st.ID, localDate) {
			continue
		}
		// Mark before running: a failed run waits for the next night
		// instead of retrying every minute for the rest of the hour.
		w.markRun(st.ID, localDate)

		generated, err := w.fillStation(ctx, st.ID, localNow)
		if err != nil {
			telemetry.AutogenRunsTotal.WithLabelValues(telemetry.OutcomeFailure).Inc()
			w.logger.Warn().Err(err).Str("station", st.ID).Msg("nightly generation failed")
			continue
		}
		telemetry.AutogenRunsTotal.WithLabelValues(telemetry.OutcomeSuccess).Inc()
		if generated > 0 {
			w.logger.Info().Str("station", st.ID).Int("generated", generated).Msg("nightly generation complete")
		}
	}
}

// fillStation generates any missing log in the upcoming window.
func (w *Worker) fillStation(ctx context.Context, stationID string, localNow time.Time) (int, error) {
	generated := 0
	for _, date := range upcomingDates(localNow, w.days) {
		_, err := w.logs.ByStationDate(ctx, stationID, date)
		if err == nil {
			continue
		}
		if !errors.Is(err, dailylog.ErrLogNotFound) {
			return generated, err
		}
		if _, err := w.logs.Generate(ctx, stationID, date, dailylog.GenerateOptions{Actor: "autogen"}); err != nil {
			return generated, err
		}
		generated++
		telemetry.AutogenLogsGenerated.Inc()
	}
	return generated, nil
}

func (w *Worker) ranOn(stationID, localDate string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRun[stationID] == localDate
}

func (w *Worker) markRun(stationID, localDate string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastRun[stationID] = localDate
}

// upcomingDates lists the air dates the worker keeps generated:
// tomorrow through daysAhead days out, in station-local time.
func upcomingDates(localNow time.Time, daysAhead int) []string {
	dates := make([]string, 0, daysAhead)
	for i := 1; i <= daysAhead; i++ {
		dates = append(dates, localNow.AddDate(0, 0, i).Format("2006-01-02"))
	}
	return dates
}

func stationLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
