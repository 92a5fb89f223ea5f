package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheet0dust/The-Nothing-Club/internal/config"
	"github.com/cheet0dust/The-Nothing-Club/internal/middleware"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         86400,
		},
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expected   string
	}{
		{
			name:       "remote_addr_only",
			remoteAddr: "203.0.113.5:41712",
			expected:   "203.0.113.5",
		},
		{
			name:       "x_forwarded_for_first_hop_wins",
			remoteAddr: "10.0.0.1:41712",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"},
			expected:   "203.0.113.5",
		},
		{
			name:       "x_real_ip_fallback",
			remoteAddr: "10.0.0.1:41712",
			headers:    map[string]string{"X-Real-IP": "198.51.100.7"},
			expected:   "198.51.100.7",
		},
		{
			name:       "forwarded_for_beats_real_ip",
			remoteAddr: "10.0.0.1:41712",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.5",
				"X-Real-IP":       "198.51.100.7",
			},
			expected: "203.0.113.5",
		},
		{
			name:       "ipv6_remote_addr",
			remoteAddr: "[2001:db8::1]:41712",
			expected:   "2001:db8::1",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tt.expected, middleware.ClientIP(req))
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	stack := middleware.NewStack(testConfig(), testLogger(), nil)
	handler := stack.SecurityHeaders(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")
	// No HSTS on plain HTTP.
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestCORS(t *testing.T) {
	t.Parallel()

	t.Run("wildcard_origin", func(t *testing.T) {
		t.Parallel()

		stack := middleware.NewStack(testConfig(), testLogger(), nil)
		handler := stack.CORS(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		req.Header.Set("Origin", "https://example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("preflight_short_circuits", func(t *testing.T) {
		t.Parallel()

		stack := middleware.NewStack(testConfig(), testLogger(), nil)
		called := false
		handler := stack.CORS(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			called = true
		}))

		req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
		req.Header.Set("Origin", "https://example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.False(t, called)
		assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("disallowed_origin_gets_no_header", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.Security.AllowedOrigins = []string{"https://trusted.example"}
		stack := middleware.NewStack(cfg, testLogger(), nil)
		handler := stack.CORS(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestContentType(t *testing.T) {
	t.Parallel()

	stack := middleware.NewStack(testConfig(), testLogger(), nil)
	handler := stack.ContentType(okHandler())

	t.Run("json_post_allowed", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
		req.Header.Set("Content-Type", "application/json")
		req.ContentLength = 20
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("form_post_rejected", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.ContentLength = 20
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("get_unchecked", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	stack := middleware.NewStack(testConfig(), testLogger(), nil)
	handler := stack.Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "server_error")
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	stack := middleware.NewStack(testConfig(), testLogger(), nil)
	handler := stack.RequestLogger(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestChainOrder(t *testing.T) {
	t.Parallel()

	stack := middleware.NewStack(testConfig(), testLogger(), nil)

	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := stack.Chain(okHandler(), mw("first"), mw("second"), mw("third"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second", "third"}, order)
}
