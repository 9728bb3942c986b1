/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/muninn_traffic/internal/catalog"
	"github.com/friendsincode/muninn_traffic/internal/clock"
	"github.com/friendsincode/muninn_traffic/internal/dailylog"
	"github.com/friendsincode/muninn_traffic/internal/selector"
	"github.com/friendsincode/muninn_traffic/internal/voicetrack"
)

var (
	generateStationID string
	generateDate      string
	generateSeed      int64
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a daily broadcast log",
	Long: `Expand the station's clock templates into a full 24-hour broadcast log for
one air date. An unlocked existing log for the day is replaced; a locked log
refuses regeneration.

Examples:
  muninntraffic generate --station <uuid> --date 2026-03-15
  muninntraffic generate --station <uuid> --date 2026-03-15 --seed 42`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&generateStationID, "station", "", "Station ID (required)")
	generateCmd.Flags().StringVar(&generateDate, "date", "", "Air date YYYY-MM-DD (required)")
	generateCmd.Flags().Int64Var(&generateSeed, "seed", 0, "Fixed selection seed (0 = derive from station and date)")
	generateCmd.MarkFlagRequired("station")
	generateCmd.MarkFlagRequired("date")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	// One-shot wiring: no cache, no storage, no event bus.
	cat := catalog.New(database, nil, logger)
	clocks := clock.NewService(database, nil, logger)
	sel := selector.New(cat, time.Duration(cfg.GenArtistSepMin)*time.Minute, logger)
	resolver := clock.NewResolver(sel, cfg.GenPlaceholder, logger)
	vt := voicetrack.New(database, nil, nil, logger)
	logs := dailylog.New(database, cfg, clocks, resolver, cat, vt, nil, logger)

	daily, err := logs.Generate(context.Background(), generateStationID, generateDate, dailylog.GenerateOptions{
		Seed: generateSeed,
	})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	var elements int
	for _, hour := range daily.Hours {
		elements += len(hour.Elements)
	}

	fmt.Printf("Generated log %s\n", daily.ID)
	fmt.Printf("  Station:  %s\n", daily.StationID)
	fmt.Printf("  Air date: %s\n", daily.AirDate)
	fmt.Printf("  Elements: %d\n", elements)
	fmt.Printf("  Revision: %d\n", daily.RevisionNumber)

	if len(daily.Conflicts) > 0 {
		fmt.Printf("\nAdvisories:\n")
		for _, adv := range daily.Conflicts {
			fmt.Printf("  - hour %02d [%s] %s\n", adv.Hour, adv.Code, adv.Detail)
		}
	}
	if len(daily.Oversell) > 0 {
		fmt.Printf("\nOversell:\n")
		for _, adv := range daily.Oversell {
			fmt.Printf("  - hour %02d %s\n", adv.Hour, adv.Detail)
		}
	}

	return nil
}
