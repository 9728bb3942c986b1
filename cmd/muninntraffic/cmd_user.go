/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/friendsincode/muninn_traffic/internal/auth"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account",
	Long: `Create a user account. There is no self-registration; this is how the
first admin account gets bootstrapped on a fresh install.

Example:
  muninntraffic user create --email admin@example.com --password secret --role admin`,
	RunE: runUserCreate,
}

var (
	userEmail    string
	userPassword string
	userRole     string
)

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)

	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "Login email (required)")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "Password (required)")
	userCreateCmd.Flags().StringVar(&userRole, "role", string(models.RoleTraffic), "Role: admin, traffic, or talent")
	userCreateCmd.MarkFlagRequired("email")
	userCreateCmd.MarkFlagRequired("password")
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	role := models.RoleName(userRole)
	switch role {
	case models.RoleAdmin, models.RoleTraffic, models.RoleTalent:
	default:
		return fmt.Errorf("unknown role %q (want admin, traffic, or talent)", userRole)
	}

	hash, err := auth.HashPassword(userPassword, 0)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	user := &models.User{
		ID:       uuid.NewString(),
		Email:    userEmail,
		Password: hash,
		Role:     role,
	}
	if err := database.Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("Created %s user %s (%s)\n", user.Role, user.Email, user.ID)
	return nil
}
