/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"testing"

	"github.com/friendsincode/muninn_traffic/internal/models"
)

func TestContentCRUD(t *testing.T) {
	a, db := newTestAPI(t)
	router := testRouter(a)
	stationID := seedStation(t, db, "Content FM")
	token := tokenFor(t, createUser(t, db, "traffic@example.com", "pw", models.RoleTraffic))

	rr := doRequest(t, router, http.MethodPost, "/api/v1/content", token, map[string]any{
		"station_id":   stationID,
		"type":         "music",
		"title":        "Night Drive",
		"artist":       "The Modulators",
		"duration_sec": 215,
		"file_ref":     "music/night_drive.wav",
		"bpm":          118.5,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rr.Code, rr.Body.String())
	}
	var item models.ContentItem
	decodeJSON(t, rr, &item)
	if item.ID == "" || item.Type != models.TypeMusic || !item.Active {
		t.Fatalf("unexpected item: %+v", item)
	}

	rr = doRequest(t, router, http.MethodGet, "/api/v1/content?station_id="+stationID+"&type=music", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list = %d: %s", rr.Code, rr.Body.String())
	}
	var list struct {
		Items []models.ContentItem `json:"items"`
		Count int                  `json:"count"`
	}
	decodeJSON(t, rr, &list)
	if list.Count != 1 {
		t.Errorf("list count = %d, want 1", list.Count)
	}

	rr = doRequest(t, router, http.MethodPatch, "/api/v1/content/"+item.ID, token, map[string]any{
		"artist":       "The Modulators feat. MC Drift",
		"duration_sec": 230,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", rr.Code, rr.Body.String())
	}
	var updated models.ContentItem
	decodeJSON(t, rr, &updated)
	if updated.DurationSec != 230 || updated.Artist != "The Modulators feat. MC Drift" {
		t.Errorf("update not applied: %+v", updated)
	}

	rr = doRequest(t, router, http.MethodDelete, "/api/v1/content/"+item.ID, token, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete = %d: %s", rr.Code, rr.Body.String())
	}
	rr = doRequest(t, router, http.MethodGet, "/api/v1/content/"+item.ID, token, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rr.Code)
	}
}

func TestContentCreateValidation(t *testing.T) {
	a, db := newTestAPI(t)
	router := testRouter(a)
	stationID := seedStation(t, db, "Content FM")
	token := tokenFor(t, createUser(t, db, "traffic@example.com", "pw", models.RoleTraffic))

	cases := []struct {
		name string
		body map[string]any
		code string
	}{
		{"missing station", map[string]any{"type": "music", "title": "x", "duration_sec": 10}, "station_id_required"},
		{"unknown type", map[string]any{"station_id": stationID, "type": "vinyl", "title": "x", "duration_sec": 10}, "unknown_type"},
		{"missing title", map[string]any{"station_id": stationID, "type": "music", "duration_sec": 10}, "title_required"},
		{"zero duration", map[string]any{"station_id": stationID, "type": "music", "title": "x"}, "duration_required"},
	}
	for _, tc := range cases {
		rr := doRequest(t, router, http.MethodPost, "/api/v1/content", token, tc.body)
		if rr.Code != http.StatusBadRequest || errorCode(t, rr) != tc.code {
			t.Errorf("%s = %d %s, want 400 %s", tc.name, rr.Code, rr.Body.String(), tc.code)
		}
	}

	rr := doRequest(t, router, http.MethodGet, "/api/v1/content?station_id="+stationID+"&type=vinyl", token, nil)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "unknown_type" {
		t.Errorf("list bad type = %d, want 400 unknown_type", rr.Code)
	}
}

func TestCampaignLifecycle(t *testing.T) {
	a, db := newTestAPI(t)
	router := testRouter(a)
	stationID := seedStation(t, db, "Ad FM")
	token := tokenFor(t, createUser(t, db, "traffic@example.com", "pw", models.RoleTraffic))

	rr := doRequest(t, router, http.MethodPost, "/api/v1/campaigns", token, map[string]any{
		"station_id": stationID,
		"name":       "Spring Sale",
		"advertiser": "Car World",
		"priority":   10,
		"start_date": "2024-03-01",
		"end_date":   "2024-03-31",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rr.Code, rr.Body.String())
	}
	var campaign models.Campaign
	decodeJSON(t, rr, &campaign)
	if campaign.ID == "" || campaign.MaxPlaysPerHour != 2 {
		t.Fatalf("unexpected campaign: %+v", campaign)
	}

	rr = doRequest(t, router, http.MethodPost, "/api/v1/campaigns", token, map[string]any{
		"station_id": stationID,
		"name":       "Backwards",
		"start_date": "2024-03-31",
		"end_date":   "2024-03-01",
	})
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "end_before_start" {
		t.Errorf("inverted flight = %d %s, want 400 end_before_start", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, router, http.MethodPatch, "/api/v1/campaigns/"+campaign.ID, token, map[string]any{
		"priority": 50,
		"end_date": "2024-04-15",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", rr.Code, rr.Body.String())
	}
	var updated models.Campaign
	decodeJSON(t, rr, &updated)
	if updated.Priority != 50 {
		t.Errorf("priority = %d, want 50", updated.Priority)
	}

	rr = doRequest(t, router, http.MethodGet, "/api/v1/campaigns?station_id="+stationID, token, nil)
	var list struct {
		Campaigns []models.Campaign `json:"campaigns"`
		Count     int               `json:"count"`
	}
	decodeJSON(t, rr, &list)
	if list.Count != 1 {
		t.Errorf("campaign count = %d, want 1", list.Count)
	}
}
