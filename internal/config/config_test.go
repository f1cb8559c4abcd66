package config

import (
	"strings"
	"testing"
	"time"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromLookupDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Server.DefaultThreshold != 0.6 {
		t.Fatalf("unexpected threshold %v", cfg.Server.DefaultThreshold)
	}
	if cfg.FaceAPI.BaseURL != "http://localhost:5000/api" {
		t.Fatalf("unexpected base url %q", cfg.FaceAPI.BaseURL)
	}
	if cfg.FaceAPI.ConnectTimeout != 30*time.Second || cfg.FaceAPI.ResponseTimeout != 60*time.Second {
		t.Fatalf("unexpected timeouts %v / %v", cfg.FaceAPI.ConnectTimeout, cfg.FaceAPI.ResponseTimeout)
	}
	if cfg.FaceAPI.MaxConns != 10 {
		t.Fatalf("unexpected max conns %d", cfg.FaceAPI.MaxConns)
	}
	if cfg.FaceAPI.MaxBodyBytes != 16<<20 {
		t.Fatalf("unexpected max body %d", cfg.FaceAPI.MaxBodyBytes)
	}
	if cfg.Auth.Enabled() || cfg.Database.Enabled() || cfg.Redis.Enabled() || cfg.Health.Enabled() {
		t.Fatal("optional integrations should be disabled by default")
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Fatalf("unexpected origins %v", cfg.Server.AllowedOrigins)
	}
}

func TestFromLookupOverrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"FACE_API_BASE_URL":         "http://face-backend:8000/api/",
		"FACE_API_RESPONSE_TIMEOUT": "90",
		"FACE_API_IDLE_TIMEOUT":     "500ms",
		"DEFAULT_THRESHOLD":         "0.75",
		"CORS_ALLOWED_ORIGINS":      "http://a.test, http://b.test",
		"REDIS_ADDR":                "redis:6379",
		"LOG_MODE":                  "debug",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.FaceAPI.BaseURL != "http://face-backend:8000/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.FaceAPI.BaseURL)
	}
	if cfg.FaceAPI.ResponseTimeout != 90*time.Second {
		t.Fatalf("unexpected response timeout %v", cfg.FaceAPI.ResponseTimeout)
	}
	if cfg.FaceAPI.IdleTimeout != 500*time.Millisecond {
		t.Fatalf("unexpected idle timeout %v", cfg.FaceAPI.IdleTimeout)
	}
	if cfg.Server.DefaultThreshold != 0.75 {
		t.Fatalf("unexpected threshold %v", cfg.Server.DefaultThreshold)
	}
	if got := cfg.Server.AllowedOrigins; len(got) != 2 || got[1] != "http://b.test" {
		t.Fatalf("unexpected origins %v", got)
	}
	if !cfg.Redis.Enabled() {
		t.Fatal("expected redis to be enabled")
	}
	if cfg.Server.Mode != "debug" {
		t.Fatalf("unexpected mode %q", cfg.Server.Mode)
	}
}

func TestFromLookupRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"FACE_API_MAX_CONNS":       {"FACE_API_MAX_CONNS": "many"},
		"DEFAULT_THRESHOLD":        {"DEFAULT_THRESHOLD": "1.5"},
		"DEFAULT_THRESHOLD is NaN": {"DEFAULT_THRESHOLD": "NaN"},
		"FACE_API_BASE_URL":        {"FACE_API_BASE_URL": "localhost:5000"},
		"SHUTDOWN_TIMEOUT":         {"SHUTDOWN_TIMEOUT": "soon"},
		"MAX_UPLOAD_BYTES":         {"MAX_UPLOAD_BYTES": "0"},
	}

	for key, env := range cases {
		t.Run(key, func(t *testing.T) {
			_, err := FromLookup(lookupFrom(env))
			if err == nil {
				t.Fatal("expected error")
			}
			variable := strings.Fields(key)[0]
			if !strings.Contains(err.Error(), variable) {
				t.Fatalf("expected error to name %s, got %v", variable, err)
			}
		})
	}
}
