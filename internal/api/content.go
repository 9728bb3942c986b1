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

	"github.com/friendsincode/muninn_traffic/internal/events"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

type contentRequest struct {
	StationID       string  `json:"station_id"`
	Type            string  `json:"type"`
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	DurationSec     int     `json:"duration_sec"`
	FileRef         string  `json:"file_ref"`
	AutomationID    *int64  `json:"automation_id,omitempty"`
	Daypart         string  `json:"daypart,omitempty"`
	BPM             float64 `json:"bpm,omitempty"`
	RampInSec       float64 `json:"ramp_in_sec,omitempty"`
	NewRelease      bool    `json:"new_release,omitempty"`
	AllowBackToBack bool    `json:"allow_back_to_back,omitempty"`
	CampaignID      *string `json:"campaign_id,omitempty"`
}

func (a *API) handleContentList(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	if stationID == "" {
		writeError(w, http.StatusBadRequest, "station_id_required")
		return
	}

	q := a.db.WithContext(r.Context()).Where("station_id = ?", stationID)
	if t := r.URL.Query().Get("type"); t != "" {
		if !models.ContentType(t).Valid() {
			writeError(w, http.StatusBadRequest, "unknown_type")
			return
		}
		q = q.Where("type = ?", t)
	}
	if r.URL.Query().Get("active") == "true" {
		q = q.Where("active = ?", true)
	}

	var items []models.ContentItem
	if err := q.Order("title ASC").Find(&items).Error; err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (a *API) handleContentCreate(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.StationID == "" {
		writeError(w, http.StatusBadRequest, "station_id_required")
		return
	}
	if !models.ContentType(req.Type).Valid() {
		writeError(w, http.StatusBadRequest, "unknown_type")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title_required")
		return
	}
	if req.DurationSec <= 0 {
		writeError(w, http.StatusBadRequest, "duration_required")
		return
	}

	item := models.ContentItem{
		ID:              uuid.NewString(),
		StationID:       req.StationID,
		Type:            models.ContentType(req.Type),
		Title:           req.Title,
		Artist:          req.Artist,
		DurationSec:     req.DurationSec,
		FileRef:         req.FileRef,
		AutomationID:    req.AutomationID,
		Daypart:         models.Daypart(req.Daypart),
		BPM:             req.BPM,
		RampInSec:       req.RampInSec,
		NewRelease:      req.NewRelease,
		AllowBackToBack: req.AllowBackToBack,
		CampaignID:      req.CampaignID,
		Active:          true,
	}
	if err := a.db.WithContext(r.Context()).Create(&item).Error; err != nil {
		a.serviceError(w, r, err)
		return
	}

	a.publishEvent(r, events.EventContentUpdated, events.Payload{
		"station_id": item.StationID,
		"content_id": item.ID,
	})
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handleContentGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "contentID")

	var item models.ContentItem
	err := a.db.WithContext(r.Context()).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleContentUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "contentID")

	var item models.ContentItem
	err := a.db.WithContext(r.Context()).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.serviceError(w, r, err)
		return
	}

	var req struct {
		Title           *string  `json:"title,omitempty"`
		Artist          *string  `json:"artist,omitempty"`
		DurationSec     *int     `json:"duration_sec,omitempty"`
		FileRef         *string  `json:"file_ref,omitempty"`
		AutomationID    *int64   `json:"automation_id,omitempty"`
		Daypart         *string  `json:"daypart,omitempty"`
		BPM             *float64 `json:"bpm,omitempty"`
		RampInSec       *float64 `json:"ramp_in_sec,omitempty"`
		NewRelease      *bool    `json:"new_release,omitempty"`
		AllowBackToBack *bool    `json:"allow_back_to_back,omitempty"`
		Active          *bool    `json:"active,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	updates := make(map[string]any)
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Artist != nil {
		updates["artist"] = *req.Artist
	}
	if req.DurationSec != nil {
		if *req.DurationSec <= 0 {
			writeError(w, http.StatusBadRequest, "duration_required")
			return
		}
		updates["duration_sec"] = *req.DurationSec
	}
	if req.FileRef != nil {
		updates["file_ref"] = *req.FileRef
	}
	if req.AutomationID != nil {
		updates["automation_id"] = *req.AutomationID
	}
	if req.Daypart != nil {
		updates["daypart"] = *req.Daypart
	}
	if req.BPM != nil {
		updates["bpm"] = *req.BPM
	}
	if req.RampInSec != nil {
		updates["ramp_in_sec"] = *req.RampInSec
	}
	if req.NewRelease != nil {
		updates["new_release"] = *req.NewRelease
	}
	if req.AllowBackToBack != nil {
		updates["allow_back_to_back"] = *req.AllowBackToBack
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	if len(updates) > 0 {
		if err := a.db.WithContext(r.Context()).Model(&item).Updates(updates).Error; err != nil {
			a.serviceError(w, r, err)
			return
		}
		a.publishEvent(r, events.EventContentUpdated, events.Payload{
			"station_id": item.StationID,
			"content_id": item.ID,
		})
	}

	a.db.WithContext(r.Context()).First(&item, "id = ?", id)
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleContentDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "contentID")

	var item models.ContentItem
	err := a.db.WithContext(r.Context()).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.serviceError(w, r, err)
		return
	}

	if err := a.db.WithContext(r.Context()).Delete(&item).Error; err != nil {
		a.serviceError(w, r, err)
		return
	}

	a.publishEvent(r, events.EventContentDeleted, events.Payload{
		"station_id": item.StationID,
		"content_id": item.ID,
	})
	w.WriteHeader(http.StatusNoContent)
}

type campaignRequest struct {
	StationID       string `json:"station_id"`
	Name            string `json:"name"`
	Advertiser      string `json:"advertiser"`
	Priority        int    `json:"priority"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	MaxPlaysPerHour int    `json:"max_plays_per_hour"`
}

func (a *API) handleCampaignsList(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	if stationID == "" {
		writeError(w, http.StatusBadRequest, "station_id_required")
		return
	}

	var campaigns []models.Campaign
	err := a.db.WithContext(r.Context()).
		Where("station_id = ?", stationID).
		Order("priority DESC, name ASC").
		Find(&campaigns).Error
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"campaigns": campaigns, "count": len(campaigns)})
}

func (a *API) handleCampaignsCreate(w http.ResponseWriter, r *http.Request) {
	var req campaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.StationID == "" {
		writeError(w, http.StatusBadRequest, "station_id_required")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_date")
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_date")
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end_before_start")
		return
	}
	if req.MaxPlaysPerHour <= 0 {
		req.MaxPlaysPerHour = 2
	}

	campaign := models.Campaign{
		ID:              uuid.NewString(),
		StationID:       req.StationID,
		Name:            req.Name,
		Advertiser:      req.Advertiser,
		Priority:        req.Priority,
		StartDate:       start,
		EndDate:         end,
		MaxPlaysPerHour: req.MaxPlaysPerHour,
		Active:          true,
	}
	if err := a.db.WithContext(r.Context()).Create(&campaign).Error; err != nil {
		a.serviceError(w, r, err)
		return
	}

	a.publishEvent(r, events.EventCampaignUpdated, events.Payload{
		"station_id":  campaign.StationID,
		"campaign_id": campaign.ID,
	})
	writeJSON(w, http.StatusCreated, campaign)
}

func (a *API) handleCampaignsGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "campaignID")

	var campaign models.Campaign
	err := a.db.WithContext(r.Context()).First(&campaign, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (a *API) handleCampaignsUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "campaignID")

	var campaign models.Campaign
	err := a.db.WithContext(r.Context()).First(&campaign, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.serviceError(w, r, err)
		return
	}

	var req struct {
		Name            *string `json:"name,omitempty"`
		Advertiser      *string `json:"advertiser,omitempty"`
		Priority        *int    `json:"priority,omitempty"`
		StartDate       *string `json:"start_date,omitempty"`
		EndDate         *string `json:"end_date,omitempty"`
		MaxPlaysPerHour *int    `json:"max_plays_per_hour,omitempty"`
		Active          *bool   `json:"active,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	updates := make(map[string]any)
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Advertiser != nil {
		updates["advertiser"] = *req.Advertiser
	}
	if req.Priority != nil {
		updates["priority"] = *req.Priority
	}
	if req.StartDate != nil {
		start, err := time.Parse("2006-01-02", *req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_date")
			return
		}
		updates["start_date"] = start
	}
	if req.EndDate != nil {
		end, err := time.Parse("2006-01-02", *req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_date")
			return
		}
		updates["end_date"] = end
	}
	if req.MaxPlaysPerHour != nil {
		if *req.MaxPlaysPerHour <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_max_plays_per_hour")
			return
		}
		updates["max_plays_per_hour"] = *req.MaxPlaysPerHour
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	if len(updates) > 0 {
		if err := a.db.WithContext(r.Context()).Model(&campaign).Updates(updates).Error; err != nil {
			a.serviceError(w, r, err)
			return
		}
		a.publishEvent(r, events.EventCampaignUpdated, events.Payload{
			"station_id":  campaign.StationID,
			"campaign_id": campaign.ID,
		})
	}

	a.db.WithContext(r.Context()).First(&campaign, "id = ?", id)
	writeJSON(w, http.StatusOK, campaign)
}
