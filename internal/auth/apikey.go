/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/models"
)

// API key constants
const (
	APIKeyPrefix      = "mt_"
	APIKeyRandomBytes = 24 // 192 bits of entropy

	// DefaultAPIKeyTTL is used when a key is created without an explicit
	// expiry. Playout integrations tend to be configured once and
	// forgotten, so the default is deliberately long.
	DefaultAPIKeyTTL = 365 * 24 * time.Hour
)

// ErrAPIKeyNotFound is returned when an API key doesn't exist.
var ErrAPIKeyNotFound = errors.New("api key not found")

// ErrAPIKeyExpired is returned when an API key has expired.
var ErrAPIKeyExpired = errors.New("api key expired")

// ErrAPIKeyRevoked is returned when an API key has been revoked.
var ErrAPIKeyRevoked = errors.New("api key revoked")

// GenerateAPIKey creates a new station-scoped API key carrying the given
// role. Returns the plaintext key (shown to the caller exactly once) and
// the model to store. Keys never reference a user account: the automation
// system authenticating as-played callbacks must not hold interactive
// credentials.
func GenerateAPIKey(stationID, name string, role models.RoleName, expiresIn time.Duration) (string, *models.APIKey, error) {
	switch role {
	case models.RoleAdmin, models.RoleTraffic, models.RoleTalent:
	default:
		return "", nil, fmt.Errorf("unknown role %q", role)
	}
	if expiresIn <= 0 {
		expiresIn = DefaultAPIKeyTTL
	}

	randomBytes := make([]byte, APIKeyRandomBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", nil, err
	}

	plaintextKey := APIKeyPrefix + hex.EncodeToString(randomBytes)

	// Only the hash is stored; the prefix is kept for display so keys
	// stay identifiable after the plaintext is gone.
	hash := sha256.Sum256([]byte(plaintextKey))

	apiKey := &models.APIKey{
		ID:        uuid.NewString(),
		StationID: stationID,
		Name:      name,
		Role:      role,
		KeyHash:   hex.EncodeToString(hash[:]),
		KeyPrefix: plaintextKey[:11], // "mt_" + first 8 hex chars
		ExpiresAt: time.Now().Add(expiresIn),
	}

	return plaintextKey, apiKey, nil
}

// ValidateAPIKey validates an API key and returns claims if valid. The
// claims carry the key's own id as the principal, so audit entries name
// the key rather than a person. Also updates the LastUsedAt timestamp.
func ValidateAPIKey(db *gorm.DB, plaintextKey string) (*Claims, error) {
	hash := sha256.Sum256([]byte(plaintextKey))
	keyHash := hex.EncodeToString(hash[:])

	var apiKey models.APIKey
	result := db.Where("key_hash = ?", keyHash).First(&apiKey)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrAPIKeyNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}

	if apiKey.IsRevoked() {
		return nil, ErrAPIKeyRevoked
	}
	if apiKey.IsExpired() {
		return nil, ErrAPIKeyExpired
	}

	// Fire and forget; a stale LastUsedAt is not worth failing a request.
	now := time.Now()
	go db.Model(&apiKey).Update("last_used_at", now)

	return &Claims{
		UserID:    apiKey.ID,
		Roles:     []string{string(apiKey.Role)},
		StationID: apiKey.StationID,
	}, nil
}

// RevokeAPIKey revokes an API key. Keys are station property, so revocation
// is scoped to the station rather than an owning user.
func RevokeAPIKey(db *gorm.DB, keyID, stationID string) error {
	result := db.Model(&models.APIKey{}).
		Where("id = ? AND station_id = ?", keyID, stationID).
		Update("revoked_at", time.Now())

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}

// ListAPIKeys returns all API keys for a station (without the hash).
func ListAPIKeys(db *gorm.DB, stationID string) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := db.Where("station_id = ?", stationID).
		Order("created_at DESC").
		Find(&keys).Error

	return keys, err
}

// DeleteAPIKey permanently deletes an API key. Use RevokeAPIKey for soft delete.
func DeleteAPIKey(db *gorm.DB, keyID, stationID string) error {
	result := db.Where("id = ? AND station_id = ?", keyID, stationID).
		Delete(&models.APIKey{})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}
