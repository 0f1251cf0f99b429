package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/config"
	"github.com/straye-as/pipeline-api/internal/http/middleware"
	"github.com/straye-as/pipeline-api/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestSecurityHeaders(t *testing.T) {
	h := middleware.SecurityHeaders(okHandler)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
}

func TestCORS(t *testing.T) {
	baseConfig := func(origins ...string) *config.CORSConfig {
		return &config.CORSConfig{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type", "X-User-ID"},
		}
	}
	preflight := func(h http.Handler, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/deals", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	t.Run("explicit origins", func(t *testing.T) {
		h := middleware.CORS(baseConfig("https://app.example.com"), "production", zap.NewNop())(okHandler)

		assert.Equal(t, "https://app.example.com", preflight(h, "https://app.example.com").Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, preflight(h, "https://evil.example.com").Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("development allows any origin", func(t *testing.T) {
		h := middleware.CORS(baseConfig(), "development", zap.NewNop())(okHandler)
		assert.Equal(t, "http://localhost:3000", preflight(h, "http://localhost:3000").Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("production without origins denies", func(t *testing.T) {
		h := middleware.CORS(baseConfig(), "production", zap.NewNop())(okHandler)
		assert.Empty(t, preflight(h, "https://app.example.com").Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRateLimiter(t *testing.T) {
	newLimiter := func(cfg config.RateLimitConfig) *middleware.RateLimiter {
		return middleware.NewRateLimiter(&cfg, zap.NewNop())
	}
	send := func(h http.Handler, remote string, ctx context.Context) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil).WithContext(ctx)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	t.Run("disabled passes everything", func(t *testing.T) {
		h := newLimiter(config.RateLimitConfig{Enabled: false, RequestsPerMinute: 1}).LimitByIP(okHandler)
		for i := 0; i < 20; i++ {
			assert.Equal(t, http.StatusOK, send(h, "10.0.0.1:1234", context.Background()))
		}
	})

	t.Run("limits per ip", func(t *testing.T) {
		h := newLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}).LimitByIP(okHandler)

		assert.Equal(t, http.StatusOK, send(h, "10.0.0.1:1234", context.Background()))
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.1:1234", context.Background()))
		assert.Equal(t, http.StatusTooManyRequests, send(h, "10.0.0.1:1234", context.Background()))
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.2:1234", context.Background()))
	})

	t.Run("whitelisted ip and path", func(t *testing.T) {
		rl := newLimiter(config.RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 1,
			WhitelistIPs:      []string{"127.0.0.1"},
			WhitelistPaths:    []string{"/health"},
		})
		h := rl.LimitByIP(okHandler)
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, send(h, "127.0.0.1:1234", context.Background()))
		}

		for i := 0; i < 5; i++ {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.RemoteAddr = "10.9.9.9:1"
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("limits per actor", func(t *testing.T) {
		h := newLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMinuteActor: 1}).LimitByActor(okHandler)
		alice := auth.WithActor(context.Background(), &auth.Actor{UserID: 1})
		bob := auth.WithActor(context.Background(), &auth.Actor{UserID: 2})

		assert.Equal(t, http.StatusOK, send(h, "10.0.0.1:1", alice))
		assert.Equal(t, http.StatusTooManyRequests, send(h, "10.0.0.2:1", alice))
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.1:1", bob))
	})
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(middleware.Logging(zap.New(core), pipelineMetrics))
	r.Get("/deals/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("issues a request id and records the route", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/deals/5", nil))

		requestID := w.Header().Get("X-Request-ID")
		_, err := uuid.Parse(requestID)
		require.NoError(t, err)

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, requestID, fields["request_id"])
		assert.Equal(t, "/deals/{id}", fields["route"])
		assert.EqualValues(t, http.StatusTeapot, fields["status_code"])

		assert.Equal(t, 1.0, promtestutil.ToFloat64(pipelineMetrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/deals/{id}", "418")))
	})

	t.Run("keeps an incoming request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/deals/6", nil)
		req.Header.Set("X-Request-ID", "upstream-id")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "upstream-id", w.Header().Get("X-Request-ID"))
		logs.TakeAll()
	})
}

func TestRecoverer(t *testing.T) {
	h := middleware.Recoverer(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
