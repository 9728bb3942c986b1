/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// PlayoutClient replaces schedule content in the downstream automation
// system. Both calls are full replacements for their window: the automation
// side discards whatever it held for that day or hour and takes the new
// entries. The bool is the automation system's own accept/reject verdict.
type PlayoutClient interface {
	ReplaceDay(ctx context.Context, date string, entries []WireEntry) (bool, error)
	ReplaceHour(ctx context.Context, date string, hour int, entries []WireEntry) (bool, error)
}

// HTTPPlayoutClient speaks the automation system's JSON schedule API.
type HTTPPlayoutClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPPlayoutClient validates and normalizes the base URL up front so a
// typo in config fails at startup, not on the first publish.
func NewHTTPPlayoutClient(baseURL, apiKey string, timeout time.Duration) (*HTTPPlayoutClient, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("publish: playout base URL is required")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("publish: invalid playout base URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPPlayoutClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

type schedulePayload struct {
	Entries []WireEntry `json:"entries"`
}

type scheduleResponse struct {
	OK bool `json:"ok"`
}

// ReplaceDay swaps out the automation schedule for a whole calendar date.
func (c *HTTPPlayoutClient) ReplaceDay(ctx context.Context, date string, entries []WireEntry) (bool, error) {
	return c.replace(ctx, fmt.Sprintf("%s/schedule/%s", c.baseURL, date), entries)
}

// ReplaceHour swaps out a single hour window within a date.
func (c *HTTPPlayoutClient) ReplaceHour(ctx context.Context, date string, hour int, entries []WireEntry) (bool, error) {
	return c.replace(ctx, fmt.Sprintf("%s/schedule/%s/%d", c.baseURL, date, hour), entries)
}

func (c *HTTPPlayoutClient) replace(ctx context.Context, endpoint string, entries []WireEntry) (bool, error) {
	// Marshal the empty slice as an explicit empty array, not null.
	if entries == nil {
		entries = []WireEntry{}
	}
	body, err := json.Marshal(schedulePayload{Entries: entries})
	if err != nil {
		return false, fmt.Errorf("marshal schedule: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("playout request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("playout returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out scheduleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode playout response: %w", err)
	}
	return out.OK, nil
}
