package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

const secret = "test-secret"

func protected(t *testing.T, mws ...echo.MiddlewareFunc) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"user": Username(c), "role": Role(c), "id": userID(c)})
	}, mws...)
	return e
}

func get(e *echo.Echo, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := protected(t, JWTAuth(secret))
	tok, err := utils.NewAccessToken(secret, 7, "ayse", "USER", 5)
	require.NoError(t, err)

	rec := get(e, "Bearer "+tok.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":"ayse","role":"USER","id":"7"}`, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(e, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(e, "Bearer garbage").Code)

	forged, err := utils.NewAccessToken("other", 7, "ayse", "ADMIN", 5)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(e, "Bearer "+forged.Token).Code)

	expired, err := utils.NewAccessToken(secret, 7, "ayse", "USER", -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(e, "Bearer "+expired.Token).Code)
}

func TestRequireRole(t *testing.T) {
	e := protected(t, JWTAuth(secret), RequireRole("ADMIN"))
	user, _ := utils.NewAccessToken(secret, 1, "ayse", "USER", 5)
	admin, _ := utils.NewAccessToken(secret, 2, "root", "ADMIN", 5)

	assert.Equal(t, http.StatusForbidden, get(e, "Bearer "+user.Token).Code)
	assert.Equal(t, http.StatusOK, get(e, "Bearer "+admin.Token).Code)
}

func TestDisabledMiddlewarePassThrough(t *testing.T) {
	e := protected(t,
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, zaptest.NewLogger(t)),
		NewRedisCache(config.CacheConfig{Enabled: true}, nil),
	)
	rec := get(e, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/tickets", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/tickets")
	c.Set(KeyUserID, "42")

	cases := map[string]string{
		"ip":         "rl:ip:10.0.0.1",
		"user":       "rl:user:42",
		"user_route": "rl:user:42:route:POST /v1/tickets",
		"":           "rl:ip:10.0.0.1:user:42:route:POST /v1/tickets",
	}
	for strategy, want := range cases {
		got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
		assert.Equal(t, want, got, strategy)
	}
}

func TestCachePayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": []string{"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`[1,2]`))
	require.NoError(t, err)

	status, gotHdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
	assert.Equal(t, `[1,2]`, string(body))

	_, _, _, ok = decodePayload(bs[:6])
	assert.False(t, ok)
}
