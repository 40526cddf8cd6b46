package kit_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"RocketShoes/pkg/kit"
)

func TestGetenv(t *testing.T) {
	t.Setenv("KIT_STR", "x")
	t.Setenv("KIT_INT", "42")
	t.Setenv("KIT_BAD_INT", "4x")
	t.Setenv("KIT_DUR", "90s")
	t.Setenv("KIT_NEG_DUR", "-1s")

	assert.Equal(t, "x", kit.Getenv("KIT_STR", "d"))
	assert.Equal(t, "d", kit.Getenv("KIT_UNSET", "d"))
	assert.Equal(t, 42, kit.GetenvInt("KIT_INT", 1))
	assert.Equal(t, 1, kit.GetenvInt("KIT_BAD_INT", 1))
	assert.Equal(t, 90*time.Second, kit.GetenvDuration("KIT_DUR", time.Hour))
	assert.Equal(t, time.Hour, kit.GetenvDuration("KIT_NEG_DUR", time.Hour))
}

func TestDecodeJSON(t *testing.T) {
	cases := map[string]bool{
		`{"amount":2}`:              true,
		`{"amount":2} {}`:           false,
		`{"amount":2,"extra":true}`: false,
		`not json`:                  false,
	}

	for body, ok := range cases {
		var v struct {
			Amount int `json:"amount"`
		}
		r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
		err := kit.DecodeJSON(httptest.NewRecorder(), r, &v)
		if ok {
			assert.NoError(t, err, body)
			assert.Equal(t, 2, v.Amount)
		} else {
			assert.Error(t, err, body)
		}
	}
}

func TestIPRateLimiter(t *testing.T) {
	l := kit.NewIPRateLimiter(2, time.Minute)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	var last *httptest.ResponseRecorder
	codes := make([]int, 0, 4)
	for _, ip := range []string{"1.1.1.1", "1.1.1.1", "1.1.1.1", "2.2.2.2"} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			last = rec
		}
	}

	assert.Equal(t, []int{200, 200, http.StatusTooManyRequests, 200}, codes)
	if assert.NotNil(t, last) {
		assert.NotEmpty(t, last.Header().Get("Retry-After"))
	}
}

func TestIPRateLimiter_ForwardedFor(t *testing.T) {
	serve := func(l *kit.RateLimiter, xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		l.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, req)
		return rec.Code
	}

	direct := kit.NewIPRateLimiter(1, time.Minute)
	assert.Equal(t, http.StatusOK, serve(direct, "3.3.3.3"))
	assert.Equal(t, http.StatusTooManyRequests, serve(direct, "4.4.4.4"), "spoofed header must not reset the limit")

	proxied := kit.NewIPRateLimiter(1, time.Minute)
	proxied.TrustForwarded = true
	assert.Equal(t, http.StatusOK, serve(proxied, "3.3.3.3, 10.0.0.1"))
	assert.Equal(t, http.StatusOK, serve(proxied, "4.4.4.4"))
	assert.Equal(t, http.StatusTooManyRequests, serve(proxied, "3.3.3.3"))
}

func TestMetricsAuth(t *testing.T) {
	h := kit.MetricsAuth("tok")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	for auth, want := range map[string]int{
		"":           http.StatusForbidden,
		"Bearer no":  http.StatusForbidden,
		"Basic tok":  http.StatusForbidden,
		"Bearer tok": http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		req.Header.Set("Authorization", auth)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, auth)
	}

	rec := httptest.NewRecorder()
	kit.MetricsAuth("")(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
