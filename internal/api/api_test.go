/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/analytics"
	"github.com/friendsincode/muninn_traffic/internal/audit"
	"github.com/friendsincode/muninn_traffic/internal/auth"
	"github.com/friendsincode/muninn_traffic/internal/catalog"
	"github.com/friendsincode/muninn_traffic/internal/clock"
	"github.com/friendsincode/muninn_traffic/internal/config"
	"github.com/friendsincode/muninn_traffic/internal/dailylog"
	"github.com/friendsincode/muninn_traffic/internal/models"
	"github.com/friendsincode/muninn_traffic/internal/selector"
	"github.com/friendsincode/muninn_traffic/internal/voicetrack"
)

var testJWTSecret = []byte("test-signing-key")

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Station{},
		&models.ContentItem{},
		&models.Campaign{},
		&models.PlayHistory{},
		&models.ClockTemplate{},
		&models.DailyLog{},
		&models.LogRevision{},
		&models.VoiceTrack{},
		&models.VoiceTrackSlot{},
		&models.APIKey{},
		&models.AuditLog{},
		&models.WebhookTarget{},
		&models.WebhookLog{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return db
}

// newTestAPI wires the API over a fresh database with the real service
// stack. Publisher, bus, and log buffer stay nil; their routes answer 503.
func newTestAPI(t *testing.T) (*API, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)

	cat := catalog.New(db, nil, zerolog.Nop())
	clocks := clock.NewService(db, nil, zerolog.Nop())
	sel := selector.New(cat, 0, zerolog.Nop())
	resolver := clock.NewResolver(sel, false, zerolog.Nop())
	cfg := &config.Config{GenArtistSepMin: 120}
	vtMgr := voicetrack.New(db, nil, nil, zerolog.Nop())
	logs := dailylog.New(db, cfg, clocks, resolver, cat, vtMgr, nil, zerolog.Nop())
	stats := analytics.NewService(db, zerolog.Nop())
	auditSvc := audit.NewService(db, nil, zerolog.Nop())

	a := New(db, testJWTSecret, logs, clocks, vtMgr, nil, stats, auditSvc, nil, nil, zerolog.Nop())
	return a, db
}

func testRouter(a *API) http.Handler {
	r := chi.NewRouter()
	a.Routes(r)
	return r
}

func createUser(t *testing.T, db *gorm.DB, email, password string, role models.RoleName) *models.User {
	t.Helper()
	hash, err := auth.HashPassword(password, 4) // min cost keeps the test fast
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := &models.User{
		ID:       uuid.NewString(),
		Email:    email,
		Password: hash,
		Role:     role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func tokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := auth.Issue(testJWTSecret, auth.Claims{
		UserID: user.ID,
		Roles:  []string{string(user.Role)},
	}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func doRequest(t *testing.T, h http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func TestHealthIsPublic(t *testing.T) {
	a, _ := newTestAPI(t)
	r := testRouter(a)

	rr := doRequest(t, r, "GET", "/api/v1/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rr.Code)
	}
}

func TestLoginIssuesToken(t *testing.T) {
	a, db := newTestAPI(t)
	r := testRouter(a)
	user := createUser(t, db, "traffic@example.com", "secret123", models.RoleTraffic)

	rr := doRequest(t, r, "POST", "/api/v1/auth/login", "", map[string]string{
		"email":    "traffic@example.com",
		"password": "secret123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Token  string   `json:"token"`
		UserID string   `json:"user_id"`
		Roles  []string `json:"roles"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Token == "" {
		t.Fatal("expected a token")
	}
	if resp.UserID != user.ID {
		t.Errorf("user_id = %q, want %q", resp.UserID, user.ID)
	}
	if len(resp.Roles) != 1 || resp.Roles[0] != "traffic" {
		t.Errorf("roles = %v, want [traffic]", resp.Roles)
	}

	// The issued token must open authenticated routes.
	rr = doRequest(t, r, "GET", "/api/v1/stations", resp.Token, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("stations with issued token = %d, want 200", rr.Code)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	a, db := newTestAPI(t)
	r := testRouter(a)
	createUser(t, db, "traffic@example.com", "secret123", models.RoleTraffic)

	rr := doRequest(t, r, "POST", "/api/v1/auth/login", "", map[string]string{
		"email":    "traffic@example.com",
		"password": "wrong",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("login status = %d, want 401", rr.Code)
	}
}

func TestAuthenticatedRoutesRejectAnonymous(t *testing.T) {
	a, _ := newTestAPI(t)
	r := testRouter(a)

	for _, target := range []string{
		"/api/v1/stations",
		"/api/v1/logs?station_id=x&date=2024-03-15",
		"/api/v1/clocks?station_id=x",
	} {
		rr := doRequest(t, r, "GET", target, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want 401", target, rr.Code)
		}
	}
}

func TestRoleGates(t *testing.T) {
	a, db := newTestAPI(t)
	r := testRouter(a)

	talent := tokenFor(t, createUser(t, db, "talent@example.com", "pw", models.RoleTalent))
	traffic := tokenFor(t, createUser(t, db, "traffic@example.com", "pw", models.RoleTraffic))

	// Station creation is admin only.
	rr := doRequest(t, r, "POST", "/api/v1/stations", traffic, map[string]string{"name": "KTST"})
	if rr.Code != http.StatusForbidden {
		t.Errorf("station create as traffic = %d, want 403", rr.Code)
	}

	// Generation requires traffic or admin.
	rr = doRequest(t, r, "POST", "/api/v1/logs/generate", talent, map[string]string{
		"station_id": uuid.NewString(), "date": "2024-03-15",
	})
	if rr.Code != http.StatusForbidden {
		t.Errorf("generate as talent = %d, want 403", rr.Code)
	}

	// Audit listing is admin only.
	rr = doRequest(t, r, "GET", "/api/v1/audit", traffic, nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("audit as traffic = %d, want 403", rr.Code)
	}
}
