package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-gate/internal/config"
	"github.com/iliyamo/campus-gate/internal/service"
)

const testSecret = "test-secret"

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

// serve runs handler behind mw and returns the recorded response.
func serve(t *testing.T, header string, h echo.HandlerFunc, mw ...echo.MiddlewareFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(e.Logger)
	e.POST("/lobby/reset", h, mw...)
	req := httptest.NewRequest(http.MethodPost, "/lobby/reset", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func whoami(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"user_id": AuthenticatedUserID(c), "role": c.Get(ContextRole)})
}

func TestJWTAuth(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	t.Run("numeric subject", func(t *testing.T) {
		tok := signed(t, jwt.MapClaims{"sub": 42, "role": "guard", "exp": exp})
		rec := serve(t, "Bearer "+tok, whoami, JWTAuth(testSecret))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"user_id":"42","role":"GUARD"}`, rec.Body.String())
	})

	t.Run("missing header", func(t *testing.T) {
		rec := serve(t, "", whoami, JWTAuth(testSecret))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "g-1"}).SignedString([]byte("other"))
		require.NoError(t, err)
		rec := serve(t, "Bearer "+tok, whoami, JWTAuth(testSecret))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired", func(t *testing.T) {
		tok := signed(t, jwt.MapClaims{"sub": "g-1", "exp": time.Now().Add(-time.Minute).Unix()})
		rec := serve(t, "Bearer "+tok, whoami, JWTAuth(testSecret))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("no subject", func(t *testing.T) {
		tok := signed(t, jwt.MapClaims{"role": "guard"})
		rec := serve(t, "Bearer "+tok, whoami, JWTAuth(testSecret))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireRole(t *testing.T) {
	guard := signed(t, jwt.MapClaims{"sub": "g-1", "role": "Guard"})
	visitor := signed(t, jwt.MapClaims{"sub": "v-1", "role": "VISITOR"})
	mw := []echo.MiddlewareFunc{JWTAuth(testSecret), RequireRole("GUARD", "CSO", "ADMIN")}

	assert.Equal(t, http.StatusOK, serve(t, "Bearer "+guard, whoami, mw...).Code)
	assert.Equal(t, http.StatusForbidden, serve(t, "Bearer "+visitor, whoami, mw...).Code)
	assert.Equal(t, http.StatusForbidden, serve(t, "", whoami, RequireRole("GUARD")).Code)
}

func TestErrorHandler(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		body string
	}{
		{
			"validation",
			service.NewValidationError(service.FieldError{Field: "new_count", Message: "must be 0 or greater"}),
			http.StatusBadRequest,
			`{"error":"validation failed","fields":{"new_count":"must be 0 or greater"}}`,
		},
		{"not found", service.ErrLobbyNotFound, http.StatusNotFound, `{"error":"lobby not found"}`},
		{
			"infrastructure",
			&service.InfrastructureError{Op: "reset lobby", Err: errors.New("dial tcp 10.0.0.5:3306: i/o timeout")},
			http.StatusInternalServerError,
			`{"error":"storage unavailable, please retry"}`,
		},
		{"http error", echo.NewHTTPError(http.StatusBadRequest, "invalid request body"), http.StatusBadRequest, `{"error":"invalid request body"}`},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, `{"error":"Internal Server Error"}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := serve(t, "", func(echo.Context) error { return c.err })
			assert.Equal(t, c.code, rec.Code)
			assert.JSONEq(t, c.body, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "3306")
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(e.Logger)
	e.POST("/lobby/reset", whoami)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lobby/reset", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestResponseCacheWithoutRedis(t *testing.T) {
	rc := NewResponseCache(config.CacheConfig{Enabled: true, TTL: 3 * time.Second, StaleWhileRevalidate: 10 * time.Second, Prefix: "cache"}, nil)
	assert.Equal(t, "public, max-age=3, stale-while-revalidate=10", rc.CacheControl())

	e := echo.New()
	calls := 0
	e.GET("/lobby/status", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"success": true})
	}, rc.Middleware())
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lobby/status", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, rc.CacheControl(), rec.Header().Get(echo.HeaderCacheControl))
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}
	assert.Equal(t, 2, calls)
	assert.NoError(t, rc.Purge(context.Background(), "/lobby/status"))
}

func TestCacheControlWithoutStaleWindow(t *testing.T) {
	rc := NewResponseCache(config.CacheConfig{TTL: 5 * time.Second}, nil)
	assert.Equal(t, "public, max-age=5", rc.CacheControl())
}

func TestCachePayload(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"success":true}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, got)
	assert.Equal(t, `{"success":true}`, string(body))

	_, _, _, ok = decodePayload(bs[:5])
	assert.False(t, ok)
}

func TestTokenBucketWithoutRedis(t *testing.T) {
	mw := NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(t, "", whoami, mw).Code)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/lobby/reset", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.1.2.3")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/lobby/reset")

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip"}
	assert.Equal(t, "rl:ip:10.1.2.3", buildRateKey(cfg, c))

	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:user:anon", buildRateKey(cfg, c))
	c.Set(ContextUserID, "g-1")
	assert.Equal(t, "rl:user:g-1", buildRateKey(cfg, c))

	cfg.KeyStrategy = "ip_user_route"
	assert.Equal(t, "rl:ip:10.1.2.3:user:g-1:route:POST /lobby/reset", buildRateKey(cfg, c))
}
