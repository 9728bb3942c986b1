package config

import "testing"

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("MUNINN_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("MUNINN_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("MUNINN_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN == "" {
		t.Fatal("expected DB DSN to be set")
	}
	if cfg.JWTSigningKey != "supersecret" {
		t.Fatalf("unexpected jwt signing key: %q", cfg.JWTSigningKey)
	}
	if len(cfg.GenBreakOffsets) != 3 || cfg.GenBreakOffsets[0] != 900 {
		t.Fatalf("unexpected default break offsets: %v", cfg.GenBreakOffsets)
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("MUNINN_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("MUNINN_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("JWT_SIGNING_KEY", "legacy")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}

func TestLoadParsesBreakOffsets(t *testing.T) {
	t.Setenv("MUNINN_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("MUNINN_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("MUNINN_GENERATION_BREAK_OFFSETS", "600, 1500, 2400, 3300")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	want := []int{600, 1500, 2400, 3300}
	if len(cfg.GenBreakOffsets) != len(want) {
		t.Fatalf("unexpected break offsets: %v", cfg.GenBreakOffsets)
	}
	for i, off := range want {
		if cfg.GenBreakOffsets[i] != off {
			t.Errorf("offset[%d]=%d, want %d", i, cfg.GenBreakOffsets[i], off)
		}
	}
}

func TestLoadRejectsOutOfRangeBreakOffsets(t *testing.T) {
	t.Setenv("MUNINN_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("MUNINN_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("MUNINN_GENERATION_BREAK_OFFSETS", "900,4000")

	if _, err := Load(); err == nil {
		t.Fatal("expected config load to fail for an offset past the hour")
	}
}

func TestLoadRejectsBadAutogenWindow(t *testing.T) {
	t.Setenv("MUNINN_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("MUNINN_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("MUNINN_AUTOGEN_HOUR", "24")

	if _, err := Load(); err == nil {
		t.Fatal("expected config load to fail for an autogen hour past 23")
	}

	t.Setenv("MUNINN_AUTOGEN_HOUR", "22")
	t.Setenv("MUNINN_AUTOGEN_ENABLED", "true")
	t.Setenv("MUNINN_AUTOGEN_DAYS_AHEAD", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected config load to fail when autogen is on with zero days ahead")
	}
}

func TestLoadProductionRequiresPlayoutBaseURL(t *testing.T) {
	t.Setenv("MUNINN_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("MUNINN_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("MUNINN_ENV", "production")
	t.Setenv("MUNINN_PLAYOUT_BASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail without a playout base URL")
	}

	t.Setenv("MUNINN_PLAYOUT_BASE_URL", "http://automation.internal:9700")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config load with playout URL to succeed: %v", err)
	}
}
