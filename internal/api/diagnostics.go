/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/muninn_traffic/internal/integrity"
	"github.com/friendsincode/muninn_traffic/internal/logbuffer"
	"github.com/friendsincode/muninn_traffic/internal/models"
)

// handleLogBuffer exposes the in-memory log ring for operational digging:
// why an hour came out the way it did, which fallback fired, what the
// playout client saw.
func (a *API) handleLogBuffer(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_not_available")
		return
	}

	params := logbuffer.QueryParams{
		Level:      r.URL.Query().Get("level"),
		Component:  r.URL.Query().Get("component"),
		StationID:  r.URL.Query().Get("station_id"),
		AirDate:    r.URL.Query().Get("air_date"),
		Search:     r.URL.Query().Get("search"),
		Descending: true,
	}

	if since := r.URL.Query().Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			params.Since = t
		}
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			params.Limit = n
		}
	} else {
		params.Limit = 500
	}

	if order := r.URL.Query().Get("order"); order == "asc" {
		params.Descending = false
	}

	entries := a.logBuffer.Query(params)

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleIntegrityScan runs the full consistency scan and returns the
// report. Scans are read-only; nothing is repaired here.
func (a *API) handleIntegrityScan(w http.ResponseWriter, r *http.Request) {
	if a.integrity == nil {
		writeError(w, http.StatusServiceUnavailable, "integrity_not_available")
		return
	}

	report, err := a.integrity.Scan(r.Context())
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleIntegrityRepair applies the fix for one finding.
func (a *API) handleIntegrityRepair(w http.ResponseWriter, r *http.Request) {
	if a.integrity == nil {
		writeError(w, http.StatusServiceUnavailable, "integrity_not_available")
		return
	}

	var input integrity.RepairInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if input.Type == "" || input.ResourceID == "" {
		writeError(w, http.StatusBadRequest, "type_and_resource_id_required")
		return
	}

	result, err := a.integrity.Repair(r.Context(), input)
	if err != nil {
		if errors.Is(err, integrity.ErrUnsupportedFinding) {
			writeError(w, http.StatusBadRequest, "unsupported_finding_type")
			return
		}
		a.serviceError(w, r, err)
		return
	}

	if result.Changed {
		a.recordAudit(r, models.AuditActionIntegrityRepair, "integrity_finding", input.ResourceID, "", map[string]any{
			"finding_type": string(input.Type),
			"message":      result.Message,
		})
	}
	writeJSON(w, http.StatusOK, result)
}
