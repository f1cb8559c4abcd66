package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/face-gateway/internal/faceapi"
)

func TestRequestIDGeneratesAndPropagates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())

	var fromContext string
	r.GET("/ping", func(c *gin.Context) {
		fromContext = faceapi.RequestIDFrom(c.Request.Context())
		c.Status(http.StatusOK)
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/ping", nil))

	header := resp.Header().Get(faceapi.RequestIDHeader)
	if header == "" {
		t.Fatal("expected a generated request id header")
	}
	if fromContext != header {
		t.Fatalf("context id %q differs from header %q", fromContext, header)
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(faceapi.RequestIDHeader, "caller-id")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if got := resp.Header().Get(faceapi.RequestIDHeader); got != "caller-id" {
		t.Fatalf("expected caller id to be reused, got %q", got)
	}
}

func TestRecoveryReturnsJSON500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.ErrorLevel)
	r := gin.New()
	r.Use(Recovery(zap.New(core)))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"success":false`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatal("expected the panic to be logged")
	}
}

func TestLoggerLevelsByStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	r := gin.New()
	r.Use(RequestID(), Logger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	for _, path := range []string{"/ok", "/bad", "/fail"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(entries))
	}
	wantLevels := []string{"info", "warn", "error"}
	for i, entry := range entries {
		if entry.Level.String() != wantLevels[i] {
			t.Errorf("entry %d: level %s, want %s", i, entry.Level, wantLevels[i])
		}
		if id, _ := entry.ContextMap()["request_id"].(string); id == "" {
			t.Errorf("entry %d: missing request id", i)
		}
	}
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("wildcard", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS([]string{"*"}))
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", "http://anywhere.test")
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Fatalf("unexpected allow origin %q", got)
		}
	})

	t.Run("listed origin and preflight", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS([]string{"http://app.test"}))
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodOptions, "/x", nil)
		req.Header.Set("Origin", "http://app.test")
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", resp.Code)
		}
		if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "http://app.test" {
			t.Fatalf("unexpected allow origin %q", got)
		}

		req = httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", "http://evil.test")
		resp = httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Fatalf("expected no allow origin, got %q", got)
		}
	})
}
