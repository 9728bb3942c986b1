/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/friendsincode/muninn_traffic/internal/clock"
)

var clocksCmd = &cobra.Command{
	Use:   "clocks",
	Short: "Manage clock templates",
	Long:  "Import and export hourly clock templates as YAML",
}

var clocksImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import clock templates from a YAML file",
	Long: `Import clock templates for a station from YAML. Every template in the file
is validated before anything is written; templates are matched to existing
ones by name, so re-importing updates in place.

Example:
  muninntraffic clocks import --station <uuid> --file clocks.yaml`,
	RunE: runClocksImport,
}

var clocksExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a station's clock templates as YAML",
	RunE:  runClocksExport,
}

var (
	clocksStationID  string
	clocksImportFile string
	clocksExportOut  string
)

func init() {
	rootCmd.AddCommand(clocksCmd)
	clocksCmd.AddCommand(clocksImportCmd)
	clocksCmd.AddCommand(clocksExportCmd)

	clocksImportCmd.Flags().StringVar(&clocksStationID, "station", "", "Station ID (required)")
	clocksImportCmd.Flags().StringVar(&clocksImportFile, "file", "", "Path to clock template YAML (required)")
	clocksImportCmd.MarkFlagRequired("station")
	clocksImportCmd.MarkFlagRequired("file")

	clocksExportCmd.Flags().StringVar(&clocksStationID, "station", "", "Station ID (required)")
	clocksExportCmd.Flags().StringVar(&clocksExportOut, "out", "", "Output path (default: stdout)")
	clocksExportCmd.MarkFlagRequired("station")
}

func runClocksImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	f, err := os.Open(clocksImportFile)
	if err != nil {
		return fmt.Errorf("open template file: %w", err)
	}
	defer f.Close()

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	svc := clock.NewService(database, nil, logger)
	count, err := svc.ImportYAML(context.Background(), clocksStationID, f)
	if err != nil {
		return fmt.Errorf("import templates: %w", err)
	}

	fmt.Printf("Imported %d template(s) for station %s\n", count, clocksStationID)
	return nil
}

func runClocksExport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	out := os.Stdout
	if clocksExportOut != "" {
		f, err := os.Create(clocksExportOut)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	svc := clock.NewService(database, nil, logger)
	if err := svc.ExportYAML(context.Background(), clocksStationID, out); err != nil {
		return fmt.Errorf("export templates: %w", err)
	}

	if clocksExportOut != "" {
		fmt.Printf("Exported templates to %s\n", clocksExportOut)
	}
	return nil
}
