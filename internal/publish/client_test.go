package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewHTTPPlayoutClientValidation(t *testing.T) {
	if _, err := NewHTTPPlayoutClient("", "key", time.Second); err == nil {
		t.Error("expected error for empty base URL")
	}

	c, err := NewHTTPPlayoutClient("playout.example.com/api/", "key", 0)
	if err != nil {
		t.Fatalf("NewHTTPPlayoutClient() error = %v", err)
	}
	if c.baseURL != "https://playout.example.com/api" {
		t.Errorf("baseURL = %q, want scheme added and trailing slash trimmed", c.baseURL)
	}
	if c.client.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s default", c.client.Timeout)
	}
}

func TestHTTPClientReplaceDayRoundTrip(t *testing.T) {
	var gotPath, gotMethod, gotKey string
	var gotPayload schedulePayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotKey = r.Header.Get("X-API-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client, err := NewHTTPPlayoutClient(server.URL, "secret", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPPlayoutClient() error = %v", err)
	}

	entries := []WireEntry{{
		Start:   time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC),
		MediaID: 42,
		Kind:    "music",
	}}
	ok, err := client.ReplaceDay(context.Background(), "2024-03-15", entries)
	if err != nil {
		t.Fatalf("ReplaceDay() error = %v", err)
	}
	if !ok {
		t.Error("ReplaceDay() ok = false, want true")
	}

	if gotMethod != http.MethodPut || gotPath != "/schedule/2024-03-15" {
		t.Errorf("request = %s %s, want PUT /schedule/2024-03-15", gotMethod, gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("X-API-Key = %q, want secret", gotKey)
	}
	if len(gotPayload.Entries) != 1 || gotPayload.Entries[0].MediaID != 42 {
		t.Errorf("payload entries = %+v, want one entry with media 42", gotPayload.Entries)
	}
}

func TestHTTPClientReplaceHourPath(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client, err := NewHTTPPlayoutClient(server.URL, "", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPPlayoutClient() error = %v", err)
	}

	if _, err := client.ReplaceHour(context.Background(), "2024-03-15", 9, nil); err != nil {
		t.Fatalf("ReplaceHour() error = %v", err)
	}
	if gotPath != "/schedule/2024-03-15/9" {
		t.Errorf("path = %q, want /schedule/2024-03-15/9", gotPath)
	}
}

func TestHTTPClientServerErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "schedule store offline", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewHTTPPlayoutClient(server.URL, "", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPPlayoutClient() error = %v", err)
	}

	ok, err := client.ReplaceDay(context.Background(), "2024-03-15", nil)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if ok {
		t.Error("ok = true on server error")
	}
}

func TestHTTPClientRejectionIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false}`))
	}))
	defer server.Close()

	client, err := NewHTTPPlayoutClient(server.URL, "", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPPlayoutClient() error = %v", err)
	}

	ok, err := client.ReplaceDay(context.Background(), "2024-03-15", nil)
	if err != nil {
		t.Fatalf("ReplaceDay() error = %v, rejection should not be a transport error", err)
	}
	if ok {
		t.Error("ok = true, want false for explicit rejection")
	}
}
