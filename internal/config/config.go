/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment     string
	HTTPBind        string
	HTTPPort        int
	BaseURL         string // Public base URL (e.g., http://traffic.example.com:8080)
	DBBackend       DatabaseBackend
	DBDSN           string
	AudioRoot       string // Filesystem root for voice-track audio assets
	JWTSigningKey   string
	MetricsBind     string
	MaxUploadSizeMB int // Optional multipart upload limit override for voice-track uploads (MB)

	// S3 Object Storage configuration
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3PublicBaseURL   string // Optional CDN/CloudFront URL
	S3UsePathStyle    bool   // Required for MinIO

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	InstanceID    string

	// Playout system configuration
	PlayoutBaseURL string        // Base URL of the automation system's schedule API
	PlayoutAPIKey  string        // Bearer token for the automation system
	PlayoutTimeout time.Duration // Per-call delivery timeout

	// Log generation policy
	GenPlaceholder     bool  // Insert a dead-air placeholder when selection comes up empty
	GenArtistSepMin    int   // Artist separation lookback window in minutes
	GenMaxFallbackDays int   // How far back voice-track fallback may reach
	GenBreakOffsets    []int // Default break offsets (seconds) when a template has no breaks

	// Nightly auto-generation
	AutogenEnabled   bool // Generate upcoming logs automatically for every station
	AutogenHour      int  // Station-local hour at which the nightly run fires
	AutogenDaysAhead int  // How many days ahead of air date to keep generated

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:     getEnvAny([]string{"MUNINN_ENV", "MT_ENV"}, "development"),
		HTTPBind:        getEnvAny([]string{"MUNINN_HTTP_BIND", "MT_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:        getEnvIntAny([]string{"MUNINN_HTTP_PORT", "MT_HTTP_PORT"}, 8080),
		BaseURL:         getEnvAny([]string{"MUNINN_BASE_URL", "MT_BASE_URL"}, ""),
		DBBackend:       DatabaseBackend(getEnvAny([]string{"MUNINN_DB_BACKEND", "MT_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:           getEnvAny([]string{"MUNINN_DB_DSN", "MT_DB_DSN"}, ""),
		AudioRoot:       getEnvAny([]string{"MUNINN_AUDIO_ROOT", "MT_AUDIO_ROOT"}, "./audio"),
		JWTSigningKey:   getEnvAny([]string{"MUNINN_JWT_SIGNING_KEY", "MT_JWT_SIGNING_KEY"}, ""),
		MetricsBind:     getEnvAny([]string{"MUNINN_METRICS_BIND", "MT_METRICS_BIND"}, "127.0.0.1:9000"),
		MaxUploadSizeMB: getEnvIntAny([]string{"MUNINN_MAX_UPLOAD_SIZE_MB", "MT_MAX_UPLOAD_SIZE_MB"}, 0),

		// S3 Object Storage configuration
		S3AccessKeyID:     getEnvAny([]string{"MUNINN_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"MUNINN_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"MUNINN_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"MUNINN_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"MUNINN_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3PublicBaseURL:   getEnvAny([]string{"MUNINN_S3_PUBLIC_BASE_URL", "S3_PUBLIC_BASE_URL"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"MUNINN_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		// Tracing configuration
		TracingEnabled:    getEnvBoolAny([]string{"MUNINN_TRACING_ENABLED", "MT_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"MUNINN_OTLP_ENDPOINT", "MT_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"MUNINN_TRACING_SAMPLE_RATE", "MT_TRACING_SAMPLE_RATE"}, 1.0),

		// Multi-instance configuration
		RedisAddr:     getEnvAny([]string{"MUNINN_REDIS_ADDR", "MT_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"MUNINN_REDIS_PASSWORD", "MT_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"MUNINN_REDIS_DB", "MT_REDIS_DB"}, 0),
		NATSURL:       getEnvAny([]string{"MUNINN_NATS_URL", "MT_NATS_URL"}, ""),
		InstanceID:    getEnvAny([]string{"MUNINN_INSTANCE_ID", "MT_INSTANCE_ID"}, ""),

		// Playout system configuration
		PlayoutBaseURL: getEnvAny([]string{"MUNINN_PLAYOUT_BASE_URL", "PLAYOUT_BASE_URL"}, ""),
		PlayoutAPIKey:  getEnvAny([]string{"MUNINN_PLAYOUT_API_KEY", "PLAYOUT_API_KEY"}, ""),
		PlayoutTimeout: time.Duration(getEnvIntAny([]string{"MUNINN_PLAYOUT_TIMEOUT_SECONDS", "PLAYOUT_TIMEOUT_SECONDS"}, 30)) * time.Second,

		// Log generation policy
		GenPlaceholder:     getEnvBoolAny([]string{"MUNINN_GENERATION_PLACEHOLDER", "MT_GENERATION_PLACEHOLDER"}, false),
		GenArtistSepMin:    getEnvIntAny([]string{"MUNINN_GENERATION_ARTIST_SEP_MINUTES", "MT_GENERATION_ARTIST_SEP_MINUTES"}, 120),
		GenMaxFallbackDays: getEnvIntAny([]string{"MUNINN_GENERATION_MAX_FALLBACK_DAYS", "MT_GENERATION_MAX_FALLBACK_DAYS"}, 28),
		GenBreakOffsets:    getEnvIntListAny([]string{"MUNINN_GENERATION_BREAK_OFFSETS", "MT_GENERATION_BREAK_OFFSETS"}, []int{900, 1800, 2700}),

		// Nightly auto-generation
		AutogenEnabled:   getEnvBoolAny([]string{"MUNINN_AUTOGEN_ENABLED", "MT_AUTOGEN_ENABLED"}, false),
		AutogenHour:      getEnvIntAny([]string{"MUNINN_AUTOGEN_HOUR", "MT_AUTOGEN_HOUR"}, 22),
		AutogenDaysAhead: getEnvIntAny([]string{"MUNINN_AUTOGEN_DAYS_AHEAD", "MT_AUTOGEN_DAYS_AHEAD"}, 1),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("MUNINN_DB_DSN or MT_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("MUNINN_JWT_SIGNING_KEY or MT_JWT_SIGNING_KEY must be provided")
	}

	if cfg.PlayoutTimeout <= 0 {
		return nil, fmt.Errorf("MUNINN_PLAYOUT_TIMEOUT_SECONDS must be positive")
	}

	if cfg.GenMaxFallbackDays < 0 {
		return nil, fmt.Errorf("MUNINN_GENERATION_MAX_FALLBACK_DAYS must not be negative")
	}

	for _, off := range cfg.GenBreakOffsets {
		if off < 0 || off >= 3600 {
			return nil, fmt.Errorf("MUNINN_GENERATION_BREAK_OFFSETS entries must be within [0,3600), got %d", off)
		}
	}

	if cfg.AutogenHour < 0 || cfg.AutogenHour > 23 {
		return nil, fmt.Errorf("MUNINN_AUTOGEN_HOUR must be within 0-23")
	}
	if cfg.AutogenEnabled && cfg.AutogenDaysAhead < 1 {
		return nil, fmt.Errorf("MUNINN_AUTOGEN_DAYS_AHEAD must be at least 1")
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.PlayoutBaseURL == "" {
			return nil, fmt.Errorf("MUNINN_PLAYOUT_BASE_URL or PLAYOUT_BASE_URL must be set in production")
		}
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":         "use MUNINN_ENV (or MT_ENV)",
		"JWT_SIGNING_KEY":     "use MUNINN_JWT_SIGNING_KEY (or MT_JWT_SIGNING_KEY)",
		"TRACING_ENABLED":     "use MUNINN_TRACING_ENABLED (or MT_TRACING_ENABLED)",
		"OTLP_ENDPOINT":       "use MUNINN_OTLP_ENDPOINT (or MT_OTLP_ENDPOINT)",
		"TRACING_SAMPLE_RATE": "use MUNINN_TRACING_SAMPLE_RATE (or MT_TRACING_SAMPLE_RATE)",
		"NATS_URL":            "use MUNINN_NATS_URL (or MT_NATS_URL)",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// MaxUploadSizeBytes returns the configured upload limit in bytes.
// A value of 0 means "not configured" and callers should use endpoint defaults.
func (c *Config) MaxUploadSizeBytes() int64 {
	if c == nil || c.MaxUploadSizeMB <= 0 {
		return 0
	}
	return int64(c.MaxUploadSizeMB) * 1024 * 1024
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvIntListAny parses the first set comma-separated integer list from keys, or def.
// An entry that fails to parse invalidates the whole list.
func getEnvIntListAny(keys []string, def []int) []int {
	for _, k := range keys {
		v := os.Getenv(k)
		if v == "" {
			continue
		}
		parts := strings.Split(v, ",")
		out := make([]int, 0, len(parts))
		ok := true
		for _, p := range parts {
			parsed, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				ok = false
				break
			}
			out = append(out, parsed)
		}
		if ok && len(out) > 0 {
			return out
		}
	}
	return def
}
