/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/muninn_traffic/internal/auth"
	"github.com/friendsincode/muninn_traffic/internal/events"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

func (a *API) handleSlotsList(w http.ResponseWriter, r *http.Request) {
	logID := chi.URLParam(r, "logID")

	if _, err := a.logs.Get(r.Context(), logID); err != nil {
		a.serviceError(w, r, err)
		return
	}

	slots, err := a.vt.ListSlots(r.Context(), logID)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots, "count": len(slots)})
}

func (a *API) handleSlotFindFallback(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	name := r.URL.Query().Get("name")
	date := r.URL.Query().Get("date")
	if stationID == "" || name == "" || date == "" {
		writeError(w, http.StatusBadRequest, "station_id_name_and_date_required")
		return
	}

	maxDaysBack := 0
	if raw := r.URL.Query().Get("max_days_back"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_max_days_back")
			return
		}
		maxDaysBack = n
	}

	match, err := a.vt.Find(r.Context(), stationID, name, date, maxDaysBack)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"voice_track":   match.VoiceTrack,
		"is_fallback":   match.IsFallback,
		"fallback_days": match.FallbackDays,
	})
}

func (a *API) handleSlotAssign(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "slotID")

	var req struct {
		TalentID string `json:"talent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.TalentID == "" {
		writeError(w, http.StatusBadRequest, "talent_id_required")
		return
	}

	if err := a.vt.AssignTalent(r.Context(), slotID, req.TalentID); err != nil {
		a.serviceError(w, r, err)
		return
	}

	a.publishEvent(r, events.EventSlotAssigned, events.Payload{
		"slot_id":   slotID,
		"talent_id": req.TalentID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"slot_id":   slotID,
		"talent_id": req.TalentID,
		"status":    models.SlotAssigned,
	})
}

func (a *API) handleSlotLink(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "slotID")

	var req struct {
		VoiceTrackID string `json:"voice_track_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.VoiceTrackID == "" {
		writeError(w, http.StatusBadRequest, "voice_track_id_required")
		return
	}

	if err := a.vt.Link(r.Context(), slotID, req.VoiceTrackID, a.actorID(r)); err != nil {
		a.serviceError(w, r, err)
		return
	}

	a.publishEvent(r, events.EventSlotLinked, events.Payload{
		"slot_id":        slotID,
		"voice_track_id": req.VoiceTrackID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"slot_id":        slotID,
		"voice_track_id": req.VoiceTrackID,
		"status":         models.SlotLinked,
	})
}

func (a *API) handleVoiceTracksList(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	if stationID == "" {
		writeError(w, http.StatusBadRequest, "station_id_required")
		return
	}

	q := a.db.WithContext(r.Context()).Where("station_id = ?", stationID)
	if name := r.URL.Query().Get("name"); name != "" {
		q = q.Where("standardized_name = ?", name)
	}
	if date := r.URL.Query().Get("date"); date != "" {
		q = q.Where("recorded_date = ?", date)
	}

	var tracks []models.VoiceTrack
	if err := q.Order("recorded_date DESC, final DESC, take DESC").Find(&tracks).Error; err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voice_tracks": tracks, "count": len(tracks)})
}

func (a *API) handleVoiceTrackCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StationID        string `json:"station_id"`
		StandardizedName string `json:"standardized_name"`
		RecordedDate     string `json:"recorded_date"`
		Take             int    `json:"take,omitempty"`
		Final            bool   `json:"final,omitempty"`
		FileRef          string `json:"file_ref,omitempty"`
		AutomationID     *int64 `json:"automation_id,omitempty"`
		DurationSec      int    `json:"duration_sec,omitempty"`
		TalentID         string `json:"talent_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.StationID == "" || req.StandardizedName == "" {
		writeError(w, http.StatusBadRequest, "station_id_and_name_required")
		return
	}
	if _, err := time.Parse("2006-01-02", req.RecordedDate); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_recorded_date")
		return
	}

	vt := models.NewVoiceTrack(req.StationID, req.StandardizedName, req.RecordedDate)
	if req.Take > 0 {
		vt.Take = req.Take
	}
	vt.Final = req.Final
	vt.FileRef = req.FileRef
	vt.AutomationID = req.AutomationID
	vt.DurationSec = req.DurationSec

	// Talent record for themselves; traffic and admin may record on behalf.
	claims, _ := auth.ClaimsFromContext(r.Context())
	switch {
	case claims != nil && !claims.HasRole(string(models.RoleAdmin)) && !claims.HasRole(string(models.RoleTraffic)):
		uid := claims.UserID
		vt.TalentID = &uid
	case req.TalentID != "":
		vt.TalentID = &req.TalentID
	}

	if err := a.db.WithContext(r.Context()).Create(vt).Error; err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, vt)
}
