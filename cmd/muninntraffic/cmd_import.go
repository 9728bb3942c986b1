/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/muninn_traffic/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import data from legacy traffic systems",
}

var importLegacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Import from a legacy traffic database",
	Long: `Import content items, ad campaigns, and voice tracks from a legacy traffic
system's PostgreSQL database. Records already present (matched by file
reference) are skipped, so the import can be re-run safely.

Examples:
  muninntraffic import legacy --dsn "postgres://..." --station <uuid> --dry-run
  muninntraffic import legacy --dsn "postgres://..." --station <uuid>`,
	RunE: runImportLegacy,
}

var (
	legacyDSN             string
	legacyStationID       string
	legacySkipContent     bool
	legacySkipCampaigns   bool
	legacySkipVoiceTracks bool
	legacyDryRun          bool
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importLegacyCmd)

	importLegacyCmd.Flags().StringVar(&legacyDSN, "dsn", "", "Legacy database connection string (required)")
	importLegacyCmd.Flags().StringVar(&legacyStationID, "station", "", "Target station ID (required)")
	importLegacyCmd.Flags().BoolVar(&legacySkipContent, "skip-content", false, "Skip content item import")
	importLegacyCmd.Flags().BoolVar(&legacySkipCampaigns, "skip-campaigns", false, "Skip campaign import")
	importLegacyCmd.Flags().BoolVar(&legacySkipVoiceTracks, "skip-voicetracks", false, "Skip voice track import")
	importLegacyCmd.Flags().BoolVar(&legacyDryRun, "dry-run", false, "Convert everything but write nothing")
	importLegacyCmd.MarkFlagRequired("dsn")
	importLegacyCmd.MarkFlagRequired("station")
}

func runImportLegacy(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().
		Str("station_id", legacyStationID).
		Bool("dry_run", legacyDryRun).
		Msg("starting legacy import")

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	imp := importer.New(database, nil, logger)

	progressCallback := func(p importer.Progress) {
		if p.Total > 0 {
			fmt.Printf("\r%-60s", fmt.Sprintf("%s [%d/%d] %s", p.Phase, p.Current, p.Total, p.Message))
		} else {
			fmt.Printf("\r%-60s", fmt.Sprintf("%s %s", p.Phase, p.Message))
		}
	}

	stats, err := imp.Run(context.Background(), importer.Options{
		DSN:             legacyDSN,
		TargetStationID: legacyStationID,
		DryRun:          legacyDryRun,
		SkipContent:     legacySkipContent,
		SkipCampaigns:   legacySkipCampaigns,
		SkipVoiceTracks: legacySkipVoiceTracks,
	}, progressCallback)
	if err != nil {
		fmt.Println()
		return fmt.Errorf("import failed: %w", err)
	}

	mode := "Import complete"
	if stats.DryRun {
		mode = "Dry run complete"
	}
	fmt.Printf("\n\n%s:\n", mode)
	fmt.Printf("  Content:      %d\n", stats.ContentImported)
	fmt.Printf("  Campaigns:    %d\n", stats.CampaignsImported)
	fmt.Printf("  Voice tracks: %d\n", stats.VoiceTracksImported)

	if len(stats.Skipped) > 0 {
		fmt.Printf("\nSkipped:\n")
		for reason, count := range stats.Skipped {
			fmt.Printf("  - %s: %d\n", reason, count)
		}
	}

	if len(stats.Warnings) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, warning := range stats.Warnings {
			fmt.Printf("  - %s\n", warning)
		}
	}

	return nil
}
