/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/auth"
	"github.com/friendsincode/muninn_traffic/internal/events"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

func (a *API) handleStationsList(w http.ResponseWriter, r *http.Request) {
	var stations []models.Station
	if err := a.db.WithContext(r.Context()).Order("name ASC").Find(&stations).Error; err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stations)
}

func (a *API) handleStationsCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Callsign    string `json:"callsign"`
		Description string `json:"description"`
		Timezone    string `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		writeError(w, http.StatusBadRequest, "unknown_timezone")
		return
	}

	station := models.Station{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Callsign:    req.Callsign,
		Description: req.Description,
		Timezone:    req.Timezone,
	}
	if err := a.db.WithContext(r.Context()).Create(&station).Error; err != nil {
		a.serviceError(w, r, err)
		return
	}

	a.publishEvent(r, events.EventStationCreated, events.Payload{
		"station_id": station.ID,
		"name":       station.Name,
	})
	a.logger.Info().Str("station_id", station.ID).Str("name", station.Name).Msg("station created")

	writeJSON(w, http.StatusCreated, station)
}

func (a *API) handleStationsGet(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")

	var station models.Station
	err := a.db.WithContext(r.Context()).First(&station, "id = ?", stationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, station)
}

func (a *API) handleStationsUpdate(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")

	var station models.Station
	err := a.db.WithContext(r.Context()).First(&station, "id = ?", stationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.serviceError(w, r, err)
		return
	}

	var req struct {
		Name        *string `json:"name,omitempty"`
		Callsign    *string `json:"callsign,omitempty"`
		Description *string `json:"description,omitempty"`
		Timezone    *string `json:"timezone,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	updates := make(map[string]any)
	if req.Name != nil {
		if *req.Name == "" {
			writeError(w, http.StatusBadRequest, "name_required")
			return
		}
		updates["name"] = *req.Name
	}
	if req.Callsign != nil {
		updates["callsign"] = *req.Callsign
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil {
			writeError(w, http.StatusBadRequest, "unknown_timezone")
			return
		}
		updates["timezone"] = *req.Timezone
	}

	if len(updates) > 0 {
		if err := a.db.WithContext(r.Context()).Model(&station).Updates(updates).Error; err != nil {
			a.serviceError(w, r, err)
			return
		}
		a.publishEvent(r, events.EventStationUpdated, events.Payload{
			"station_id": station.ID,
		})
	}

	a.db.WithContext(r.Context()).First(&station, "id = ?", stationID)
	writeJSON(w, http.StatusOK, station)
}

func (a *API) handleAPIKeysList(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")

	keys, err := auth.ListAPIKeys(a.db.WithContext(r.Context()), stationID)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"api_keys": keys})
}

func (a *API) handleAPIKeysCreate(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")

	var req struct {
		Name          string `json:"name"`
		Role          string `json:"role"`
		ExpiresInDays int    `json:"expires_in_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}

	plaintext, key, err := auth.GenerateAPIKey(stationID, req.Name,
		models.RoleName(req.Role), time.Duration(req.ExpiresInDays)*24*time.Hour)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}
	if err := a.db.WithContext(r.Context()).Create(key).Error; err != nil {
		a.serviceError(w, r, err)
		return
	}

	a.logger.Info().
		Str("station_id", stationID).
		Str("key_id", key.ID).
		Str("role", string(key.Role)).
		Msg("api key created")

	// The plaintext key is returned exactly once.
	writeJSON(w, http.StatusCreated, map[string]any{
		"api_key": key,
		"key":     plaintext,
	})
}

func (a *API) handleAPIKeyRevoke(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")
	keyID := chi.URLParam(r, "keyID")

	if err := auth.RevokeAPIKey(a.db.WithContext(r.Context()), keyID, stationID); err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.logger.Info().Str("station_id", stationID).Str("key_id", keyID).Msg("api key revoked")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAPIKeyDelete(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")
	keyID := chi.URLParam(r, "keyID")

	if err := auth.DeleteAPIKey(a.db.WithContext(r.Context()), keyID, stationID); err != nil {
		a.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
