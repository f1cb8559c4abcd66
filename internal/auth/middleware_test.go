package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func newRouter(secret, audience string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", JWTMiddleware(secret, audience), func(c *gin.Context) {
		subject, _ := GetSubject(c.Request.Context())
		c.String(http.StatusOK, subject)
	})
	return r
}

func sign(t *testing.T, claims jwt.RegisteredClaims, secret string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestJWTMiddleware(t *testing.T) {
	valid := jwt.RegisteredClaims{
		Subject:   "client-1",
		Audience:  jwt.ClaimStrings{"face-gateway"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	noSubject := valid
	noSubject.Subject = ""

	cases := []struct {
		name     string
		audience string
		header   string
		want     int
	}{
		{name: "valid", header: "Bearer " + sign(t, valid, testSecret), want: http.StatusOK},
		{name: "valid audience", audience: "face-gateway", header: "Bearer " + sign(t, valid, testSecret), want: http.StatusOK},
		{name: "wrong audience", audience: "other", header: "Bearer " + sign(t, valid, testSecret), want: http.StatusUnauthorized},
		{name: "missing header", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + sign(t, valid, "other"), want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + sign(t, expired, testSecret), want: http.StatusUnauthorized},
		{name: "no subject", header: "Bearer " + sign(t, noSubject, testSecret), want: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newRouter(testSecret, tc.audience)
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != tc.want {
				t.Fatalf("expected status %d, got %d (%s)", tc.want, resp.Code, resp.Body.String())
			}
			if tc.want == http.StatusOK && resp.Body.String() != "client-1" {
				t.Fatalf("unexpected subject %q", resp.Body.String())
			}
		})
	}
}

func TestJWTMiddlewareWithoutSecret(t *testing.T) {
	router := newRouter("", "")
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.RegisteredClaims{Subject: "x"}, testSecret))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}
