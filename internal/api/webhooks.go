/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/muninn_traffic/internal/models"
	"github.com/friendsincode/muninn_traffic/internal/webhooks"
)

// WebhookAPI handles webhook management endpoints. Role gating happens at
// the mount site in Routes.
type WebhookAPI struct {
	*API
	webhookSvc *webhooks.Service
}

// NewWebhookAPI creates a new webhook API handler.
func NewWebhookAPI(api *API, webhookSvc *webhooks.Service) *WebhookAPI {
	return &WebhookAPI{
		API:        api,
		webhookSvc: webhookSvc,
	}
}

// RegisterRoutes registers webhook API routes.
func (w *WebhookAPI) RegisterRoutes(r chi.Router) {
	r.Route("/webhooks", func(r chi.Router) {
		r.Get("/", w.handleList)
		r.Post("/", w.handleCreate)
		r.Get("/{id}", w.handleGet)
		r.Put("/{id}", w.handleUpdate)
		r.Delete("/{id}", w.handleDelete)
		r.Post("/{id}/test", w.handleTest)
		r.Get("/{id}/logs", w.handleLogs)
	})
}

// handleList returns all webhook targets for a station.
func (w *WebhookAPI) handleList(rw http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	if stationID == "" {
		writeError(rw, http.StatusBadRequest, "station_id_required")
		return
	}

	var targets []models.WebhookTarget
	if err := w.db.WithContext(r.Context()).Where("station_id = ?", stationID).Order("created_at DESC").Find(&targets).Error; err != nil {
		writeError(rw, http.StatusInternalServerError, "failed_to_fetch_webhooks")
		return
	}

	writeJSON(rw, http.StatusOK, map[string]any{
		"webhooks": targets,
	})
}

// handleCreate creates a new webhook target.
func (w *WebhookAPI) handleCreate(rw http.ResponseWriter, r *http.Request) {
	var req struct {
		StationID string `json:"station_id"`
		URL       string `json:"url"`
		Events    string `json:"events"` // comma-separated: log_generated,log_published
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(rw, http.StatusBadRequest, "invalid_json")
		return
	}

	if req.StationID == "" {
		writeError(rw, http.StatusBadRequest, "station_id_required")
		return
	}

	if req.URL == "" {
		writeError(rw, http.StatusBadRequest, "url_required")
		return
	}

	target := models.NewWebhookTarget(req.StationID, req.URL, req.Events)

	if err := w.db.WithContext(r.Context()).Create(target).Error; err != nil {
		writeError(rw, http.StatusInternalServerError, "failed_to_create_webhook")
		return
	}

	writeJSON(rw, http.StatusCreated, map[string]any{
		"webhook": target,
		"secret":  target.Secret, // Return secret only on create
	})
}

// handleGet returns a specific webhook target.
func (w *WebhookAPI) handleGet(rw http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var target models.WebhookTarget
	if err := w.db.WithContext(r.Context()).First(&target, "id = ?", id).Error; err != nil {
		writeError(rw, http.StatusNotFound, "not_found")
		return
	}

	writeJSON(rw, http.StatusOK, map[string]any{
		"webhook": target,
	})
}

// handleUpdate updates a webhook target.
func (w *WebhookAPI) handleUpdate(rw http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var target models.WebhookTarget
	if err := w.db.WithContext(r.Context()).First(&target, "id = ?", id).Error; err != nil {
		writeError(rw, http.StatusNotFound, "not_found")
		return
	}

	var req struct {
		URL    *string `json:"url,omitempty"`
		Events *string `json:"events,omitempty"`
		Active *bool   `json:"active,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(rw, http.StatusBadRequest, "invalid_json")
		return
	}

	updates := make(map[string]any)
	if req.URL != nil {
		updates["url"] = *req.URL
	}
	if req.Events != nil {
		updates["events"] = *req.Events
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	if len(updates) > 0 {
		if err := w.db.WithContext(r.Context()).Model(&target).Updates(updates).Error; err != nil {
			writeError(rw, http.StatusInternalServerError, "failed_to_update_webhook")
			return
		}
	}

	w.db.WithContext(r.Context()).First(&target, "id = ?", id)

	writeJSON(rw, http.StatusOK, map[string]any{
		"webhook": target,
	})
}

// handleDelete deletes a webhook target and its delivery logs.
func (w *WebhookAPI) handleDelete(rw http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var target models.WebhookTarget
	if err := w.db.WithContext(r.Context()).First(&target, "id = ?", id).Error; err != nil {
		writeError(rw, http.StatusNotFound, "not_found")
		return
	}

	w.db.WithContext(r.Context()).Where("target_id = ?", id).Delete(&models.WebhookLog{})

	if err := w.db.WithContext(r.Context()).Delete(&target).Error; err != nil {
		writeError(rw, http.StatusInternalServerError, "failed_to_delete_webhook")
		return
	}

	writeJSON(rw, http.StatusOK, map[string]any{
		"message": "webhook deleted",
	})
}

// handleTest sends a signed test event to the target.
func (w *WebhookAPI) handleTest(rw http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var target models.WebhookTarget
	if err := w.db.WithContext(r.Context()).First(&target, "id = ?", id).Error; err != nil {
		writeError(rw, http.StatusNotFound, "not_found")
		return
	}

	if err := w.webhookSvc.TestWebhook(r.Context(), &target); err != nil {
		writeJSON(rw, http.StatusOK, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	writeJSON(rw, http.StatusOK, map[string]any{
		"success": true,
		"message": "test webhook sent successfully",
	})
}

// handleLogs returns recent delivery attempts for the target.
func (w *WebhookAPI) handleLogs(rw http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var target models.WebhookTarget
	if err := w.db.WithContext(r.Context()).First(&target, "id = ?", id).Error; err != nil {
		writeError(rw, http.StatusNotFound, "not_found")
		return
	}

	var logs []models.WebhookLog
	if err := w.db.WithContext(r.Context()).Where("target_id = ?", id).Order("created_at DESC").Limit(100).Find(&logs).Error; err != nil {
		writeError(rw, http.StatusInternalServerError, "failed_to_fetch_logs")
		return
	}

	writeJSON(rw, http.StatusOK, map[string]any{
		"logs": logs,
	})
}
