/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/muninn_traffic/internal/auth"
	"github.com/friendsincode/muninn_traffic/internal/dailylog"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

func (a *API) handleLogByStationDate(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	date := r.URL.Query().Get("date")
	if stationID == "" || date == "" {
		writeError(w, http.StatusBadRequest, "station_id_and_date_required")
		return
	}

	log, err := a.logs.ByStationDate(r.Context(), stationID, date)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (a *API) handleLogGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StationID string `json:"station_id"`
		Date      string `json:"date"`
		Seed      int64  `json:"seed,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.StationID == "" || req.Date == "" {
		writeError(w, http.StatusBadRequest, "station_id_and_date_required")
		return
	}

	log, err := a.logs.Generate(r.Context(), req.StationID, req.Date, dailylog.GenerateOptions{
		Seed:  req.Seed,
		Actor: a.actorID(r),
	})
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, log)
}

func (a *API) handleAsPlayed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StationID string                   `json:"station_id"`
		Entries   []dailylog.AsPlayedEntry `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.StationID == "" {
		writeError(w, http.StatusBadRequest, "station_id_required")
		return
	}
	if len(req.Entries) == 0 {
		writeError(w, http.StatusBadRequest, "entries_required")
		return
	}

	// Station-scoped API keys may only report for their own station.
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims.StationID != "" && claims.StationID != req.StationID {
		writeError(w, http.StatusForbidden, "station_mismatch")
		return
	}

	matched, err := a.logs.RecordAsPlayed(r.Context(), req.StationID, req.Entries)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"received": len(req.Entries),
		"matched":  matched,
	})
}

func (a *API) handleLogGet(w http.ResponseWriter, r *http.Request) {
	log, err := a.logs.Get(r.Context(), chi.URLParam(r, "logID"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (a *API) handleLogStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.stats.LogStats(r.Context(), chi.URLParam(r, "logID"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleLogExport serves the log as a download: ?format=txt for the
// printable board copy (the default), ?format=csv for spreadsheets.
func (a *API) handleLogExport(w http.ResponseWriter, r *http.Request) {
	format := dailylog.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = dailylog.FormatText
	}

	res, err := a.logs.Export(r.Context(), chi.URLParam(r, "logID"), format)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func (a *API) handleRevisionsList(w http.ResponseWriter, r *http.Request) {
	logID := chi.URLParam(r, "logID")

	// Surface 404 for unknown logs rather than an empty history.
	if _, err := a.logs.Get(r.Context(), logID); err != nil {
		a.serviceError(w, r, err)
		return
	}

	revs, err := a.logs.Revisions(r.Context(), logID)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revisions": revs, "count": len(revs)})
}

func (a *API) handleRevisionGet(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_version")
		return
	}

	rev, err := a.logs.Revision(r.Context(), chi.URLParam(r, "logID"), version)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (a *API) handleElementInsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hour    int               `json:"hour"`
		Index   int               `json:"index"`
		Element models.LogElement `json:"element"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	log, err := a.logs.InsertElement(r.Context(), chi.URLParam(r, "logID"), req.Hour, req.Index, req.Element, a.actorID(r))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (a *API) handleElementRemove(w http.ResponseWriter, r *http.Request) {
	hour, err := strconv.Atoi(chi.URLParam(r, "hour"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_hour")
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_index")
		return
	}

	log, err := a.logs.RemoveElement(r.Context(), chi.URLParam(r, "logID"), hour, index, a.actorID(r))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (a *API) handleElementMove(w http.ResponseWriter, r *http.Request) {
	hour, err := strconv.Atoi(chi.URLParam(r, "hour"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_hour")
		return
	}

	var req struct {
		FromIndex int `json:"from_index"`
		ToIndex   int `json:"to_index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	log, err := a.logs.MoveElement(r.Context(), chi.URLParam(r, "logID"), hour, req.FromIndex, req.ToIndex, a.actorID(r))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (a *API) handleHourReorder(w http.ResponseWriter, r *http.Request) {
	hour, err := strconv.Atoi(chi.URLParam(r, "hour"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_hour")
		return
	}

	var req struct {
		Order []int `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	log, err := a.logs.ReorderHour(r.Context(), chi.URLParam(r, "logID"), hour, req.Order, a.actorID(r))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (a *API) handleLogLock(w http.ResponseWriter, r *http.Request) {
	logID := chi.URLParam(r, "logID")
	if err := a.logs.Lock(r.Context(), logID, a.actorID(r)); err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"log_id": logID, "locked": true})
}

func (a *API) handleLogUnlock(w http.ResponseWriter, r *http.Request) {
	logID := chi.URLParam(r, "logID")
	if err := a.logs.Unlock(r.Context(), logID, a.actorID(r)); err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"log_id": logID, "locked": false})
}

func (a *API) handleLogRevert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Version int `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Version <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_version")
		return
	}

	log, err := a.logs.Revert(r.Context(), chi.URLParam(r, "logID"), req.Version, a.actorID(r))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (a *API) handlePublishDay(w http.ResponseWriter, r *http.Request) {
	if a.publisher == nil {
		writeError(w, http.StatusServiceUnavailable, "publisher_not_configured")
		return
	}

	result, err := a.publisher.PublishDay(r.Context(), chi.URLParam(r, "logID"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"published":   true,
		"entry_count": len(result.Entries),
		"dropped":     result.Dropped,
	})
}

func (a *API) handlePublishHour(w http.ResponseWriter, r *http.Request) {
	if a.publisher == nil {
		writeError(w, http.StatusServiceUnavailable, "publisher_not_configured")
		return
	}

	hour, err := strconv.Atoi(chi.URLParam(r, "hour"))
	if err != nil || hour < 0 || hour > 23 {
		writeError(w, http.StatusBadRequest, "invalid_hour")
		return
	}

	result, err := a.publisher.PublishHour(r.Context(), chi.URLParam(r, "logID"), hour)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"published":   true,
		"hour":        hour,
		"entry_count": len(result.Entries),
		"dropped":     result.Dropped,
	})
}
