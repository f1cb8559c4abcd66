package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-gateway/internal/config"
	"github.com/example/face-gateway/internal/faceapi"
)

func testConfig(baseURL string) config.FaceAPIConfig {
	return config.FaceAPIConfig{
		BaseURL:         baseURL,
		ConnectTimeout:  time.Second,
		ResponseTimeout: 2 * time.Second,
		MaxConns:        2,
		IdleTimeout:     time.Second,
		MaxBodyBytes:    1 << 20,
	}
}

func writeImage(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "face.jpg")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	return path
}

func TestRegisterSendsEncodedFile(t *testing.T) {
	var received faceapi.RegisterRequest
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/face/register" || r.Method != http.MethodPost {
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get(faceapi.RequestIDHeader) == "" {
			t.Error("expected a request id header")
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"Face registered","data":{"face_id":11}}`))
	}))
	defer backend.Close()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(),
		[]string{"register", "-name", "alice", "-image", writeImage(t, "jpeg-bytes")},
		testConfig(backend.URL+"/api"), zap.NewNop(), &stdout, &stderr)

	if code != 0 {
		t.Fatalf("expected exit 0, got %d (%s)", code, stderr.String())
	}
	if received.Name != "alice" || received.Image != faceapi.EncodeImage([]byte("jpeg-bytes")) {
		t.Fatalf("unexpected forwarded request %+v", received)
	}
	if !strings.Contains(stdout.String(), `"face_id": 11`) {
		t.Fatalf("unexpected output %s", stdout.String())
	}
}

func TestURLFlagOverridesConfig(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/other/face/list" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success":true,"message":"ok","data":{"total_faces":0,"faces":[]}}`))
	}))
	defer backend.Close()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-url", backend.URL + "/other", "list"},
		testConfig("http://unused.invalid/api"), zap.NewNop(), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (%s)", code, stderr.String())
	}
}

func TestUnsuccessfulOutcomeExitsNonZero(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"Face not found"}`))
	}))
	defer backend.Close()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"delete", "-id", "9"},
		testConfig(backend.URL+"/api"), zap.NewNop(), &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stdout.String(), "Face not found") {
		t.Fatalf("expected the backend reply on stdout, got %s", stdout.String())
	}
}

func TestUsageErrors(t *testing.T) {
	cases := [][]string{
		nil,
		{"unknown"},
		{"register", "-name", "alice"},
		{"compare", "-image1", "a.jpg"},
		{"delete"},
	}
	for _, args := range cases {
		var stdout, stderr bytes.Buffer
		code := run(context.Background(), args, testConfig("http://localhost:5000/api"), zap.NewNop(), &stdout, &stderr)
		if code != 2 {
			t.Errorf("args %v: expected exit 2, got %d", args, code)
		}
		if !strings.Contains(stderr.String(), "usage: facectl") {
			t.Errorf("args %v: expected usage text, got %q", args, stderr.String())
		}
	}
}

func TestMissingImageFileFails(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(),
		[]string{"recognize", "-image", filepath.Join(t.TempDir(), "missing.jpg")},
		testConfig("http://localhost:5000/api"), zap.NewNop(), &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
}
