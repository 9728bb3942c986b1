/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/muninn_traffic/internal/events"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

func (a *API) handleClocksList(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	if stationID == "" {
		writeError(w, http.StatusBadRequest, "station_id_required")
		return
	}

	templates, err := a.clocks.ListByStation(r.Context(), stationID)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates, "count": len(templates)})
}

func (a *API) handleClocksCreate(w http.ResponseWriter, r *http.Request) {
	var tpl models.ClockTemplate
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if tpl.StationID == "" {
		writeError(w, http.StatusBadRequest, "station_id_required")
		return
	}
	tpl.ID = ""
	tpl.Station = nil

	if err := a.clocks.Create(r.Context(), &tpl); err != nil {
		a.serviceError(w, r, err)
		return
	}

	a.recordAudit(r, models.AuditActionClockCreate, "clock_template", tpl.ID, tpl.StationID, map[string]any{
		"name": tpl.Name,
	})
	a.publishEvent(r, events.EventClockUpdated, events.Payload{
		"station_id": tpl.StationID,
		"clock_id":   tpl.ID,
	})
	writeJSON(w, http.StatusCreated, tpl)
}

func (a *API) handleClocksGet(w http.ResponseWriter, r *http.Request) {
	tpl, err := a.clocks.Get(r.Context(), chi.URLParam(r, "clockID"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (a *API) handleClocksUpdate(w http.ResponseWriter, r *http.Request) {
	existing, err := a.clocks.Get(r.Context(), chi.URLParam(r, "clockID"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}

	// Station ownership is immutable; the body supplies the new definition.
	var req struct {
		Name      string               `json:"name"`
		StartHour int                  `json:"start_hour"`
		EndHour   int                  `json:"end_hour"`
		Slots     models.ClockSlotList `json:"slots"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	tpl := models.ClockTemplate{
		ID:        existing.ID,
		StationID: existing.StationID,
		Name:      req.Name,
		StartHour: req.StartHour,
		EndHour:   req.EndHour,
		Slots:     req.Slots,
	}
	if err := a.clocks.Update(r.Context(), &tpl); err != nil {
		a.serviceError(w, r, err)
		return
	}

	a.recordAudit(r, models.AuditActionClockUpdate, "clock_template", tpl.ID, tpl.StationID, map[string]any{
		"name": tpl.Name,
	})
	a.publishEvent(r, events.EventClockUpdated, events.Payload{
		"station_id": tpl.StationID,
		"clock_id":   tpl.ID,
	})

	updated, err := a.clocks.Get(r.Context(), tpl.ID)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleClocksDelete(w http.ResponseWriter, r *http.Request) {
	tpl, err := a.clocks.Get(r.Context(), chi.URLParam(r, "clockID"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}

	if err := a.clocks.Delete(r.Context(), tpl.StationID, tpl.ID); err != nil {
		a.serviceError(w, r, err)
		return
	}

	a.recordAudit(r, models.AuditActionClockDelete, "clock_template", tpl.ID, tpl.StationID, map[string]any{
		"name": tpl.Name,
	})
	a.publishEvent(r, events.EventClockDeleted, events.Payload{
		"station_id": tpl.StationID,
		"clock_id":   tpl.ID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleClocksImport(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	if stationID == "" {
		writeError(w, http.StatusBadRequest, "station_id_required")
		return
	}

	count, err := a.clocks.ImportYAML(r.Context(), stationID, r.Body)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}

	a.recordAudit(r, models.AuditActionClockCreate, "clock_template", "", stationID, map[string]any{
		"imported": count,
		"source":   "yaml",
	})
	a.publishEvent(r, events.EventClockUpdated, events.Payload{
		"station_id": stationID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"imported": count})
}

func (a *API) handleClocksExport(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	if stationID == "" {
		writeError(w, http.StatusBadRequest, "station_id_required")
		return
	}

	// Buffer the document so failures can still produce an error status.
	var buf bytes.Buffer
	if err := a.clocks.ExportYAML(r.Context(), stationID, &buf); err != nil {
		a.serviceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
