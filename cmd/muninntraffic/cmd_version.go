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

	"github.com/friendsincode/muninn_traffic/internal/version"
)

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Check GitHub for a newer release")
}

func runVersion(cmd *cobra.Command, args []string) error {
	fmt.Printf("muninntraffic %s\n", version.Version)

	if !versionCheck {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	info, err := version.CheckLatest(ctx)
	if err != nil {
		return fmt.Errorf("check releases: %w", err)
	}

	if info.UpdateAvailable {
		fmt.Printf("Update available: %s -> %s\n", info.CurrentVersion, info.LatestVersion)
		fmt.Printf("  %s\n", info.ReleaseURL)
		if info.ReleaseNotes != "" {
			fmt.Printf("  %s\n", info.ReleaseNotes)
		}
	} else {
		fmt.Println("Up to date.")
	}
	return nil
}
