package api

import (
	"net/http"
	"testing"

	"github.com/friendsincode/muninn_traffic/internal/models"
)

func TestStationLifecycle(t *testing.T) {
	a, db := newTestAPI(t)
	r := testRouter(a)
	admin := tokenFor(t, createUser(t, db, "admin@example.com", "pw", models.RoleAdmin))

	rr := doRequest(t, r, "POST", "/api/v1/stations", admin, map[string]string{
		"name":     "Test FM",
		"callsign": "TEST",
		"timezone": "Europe/Amsterdam",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var station models.Station
	decodeJSON(t, rr, &station)
	if station.ID == "" || station.Name != "Test FM" || station.Timezone != "Europe/Amsterdam" {
		t.Fatalf("unexpected station %+v", station)
	}

	rr = doRequest(t, r, "GET", "/api/v1/stations/"+station.ID, admin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}

	rr = doRequest(t, r, "PATCH", "/api/v1/stations/"+station.ID, admin, map[string]string{
		"description": "test bed",
		"timezone":    "UTC",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", rr.Code, rr.Body.String())
	}
	decodeJSON(t, rr, &station)
	if station.Description != "test bed" || station.Timezone != "UTC" {
		t.Errorf("update not applied: %+v", station)
	}

	rr = doRequest(t, r, "GET", "/api/v1/stations", admin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var stations []models.Station
	decodeJSON(t, rr, &stations)
	if len(stations) != 1 {
		t.Errorf("list returned %d stations, want 1", len(stations))
	}
}

func TestStationCreateRejectsUnknownTimezone(t *testing.T) {
	a, db := newTestAPI(t)
	r := testRouter(a)
	admin := tokenFor(t, createUser(t, db, "admin@example.com", "pw", models.RoleAdmin))

	rr := doRequest(t, r, "POST", "/api/v1/stations", admin, map[string]string{
		"name":     "Bad TZ",
		"timezone": "Mars/Olympus_Mons",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	a, db := newTestAPI(t)
	r := testRouter(a)
	admin := tokenFor(t, createUser(t, db, "admin@example.com", "pw", models.RoleAdmin))

	station := models.Station{ID: "st-1", Name: "Test FM", Timezone: "UTC"}
	if err := db.Create(&station).Error; err != nil {
		t.Fatalf("seed station: %v", err)
	}
	base := "/api/v1/stations/" + station.ID + "/apikeys"

	rr := doRequest(t, r, "POST", base, admin, map[string]any{
		"name": "automation", "role": "traffic", "expires_in_days": 30,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var created struct {
		APIKey models.APIKey `json:"api_key"`
		Key    string        `json:"key"`
	}
	decodeJSON(t, rr, &created)
	if created.Key == "" {
		t.Fatal("expected the plaintext key in the create response")
	}
	if created.APIKey.StationID != station.ID {
		t.Errorf("key station = %q, want %q", created.APIKey.StationID, station.ID)
	}

	rr = doRequest(t, r, "POST", base, admin, map[string]any{"name": "bad", "role": "superuser"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown role status = %d, want 400", rr.Code)
	}

	rr = doRequest(t, r, "GET", base, admin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var listed struct {
		APIKeys []models.APIKey `json:"api_keys"`
	}
	decodeJSON(t, rr, &listed)
	if len(listed.APIKeys) != 1 {
		t.Fatalf("listed %d keys, want 1", len(listed.APIKeys))
	}

	rr = doRequest(t, r, "POST", base+"/"+created.APIKey.ID+"/revoke", admin, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("revoke status = %d", rr.Code)
	}

	var key models.APIKey
	if err := db.First(&key, "id = ?", created.APIKey.ID).Error; err != nil {
		t.Fatalf("reload key: %v", err)
	}
	if key.RevokedAt == nil {
		t.Error("expected RevokedAt to be set after revoke")
	}

	rr = doRequest(t, r, "DELETE", base+"/"+created.APIKey.ID, admin, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}

	rr = doRequest(t, r, "DELETE", base+"/"+created.APIKey.ID, admin, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("double delete status = %d, want 404", rr.Code)
	}
}
