/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/muninn_traffic/internal/integrity"
)

var checkRepair bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Scan the database for consistency problems",
	Long: `Run the integrity scan: broken voice-track links, slots left behind by
regenerated logs, unplayable catalog entries, orphan play history, and
campaigns with impossible flight windows.

With --repair every repairable finding is fixed in place. Without it the
scan only reports.

Examples:
  muninntraffic check
  muninntraffic check --repair`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().BoolVar(&checkRepair, "repair", false, "Fix repairable findings")
}

func runCheck(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	svc := integrity.NewService(database, logger)
	ctx := context.Background()

	report, err := svc.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	if report.Total == 0 {
		fmt.Println("No findings. Database is consistent.")
		return nil
	}

	fmt.Printf("Found %d finding(s)\n", report.Total)
	for ft, count := range report.ByType {
		fmt.Printf("  %-28s %d\n", ft, count)
	}
	fmt.Println()
	for _, f := range report.Findings {
		fmt.Printf("  [%s] %s (%s)\n", f.Severity, f.Summary, f.ResourceID)
	}

	if !checkRepair {
		fmt.Println("\nRun again with --repair to fix repairable findings.")
		return nil
	}

	fmt.Println()
	repaired, skipped := 0, 0
	for _, f := range report.Findings {
		if !f.Repairable {
			skipped++
			continue
		}
		result, err := svc.Repair(ctx, integrity.RepairInput{Type: f.Type, ResourceID: f.ResourceID})
		if err != nil {
			return fmt.Errorf("repair %s: %w", f.ID, err)
		}
		if result.Changed {
			repaired++
			fmt.Printf("  repaired %s: %s\n", f.ResourceID, result.Message)
		} else {
			skipped++
		}
	}
	fmt.Printf("\nRepaired %d finding(s), skipped %d.\n", repaired, skipped)

	return nil
}
