package auth

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/straye-as/pipeline-api/internal/config"
	"go.uber.org/zap"
)

const (
	// HeaderUserID carries the id of the acting user, set by the gateway
	HeaderUserID = "X-User-ID"
	HeaderAPIKey = "X-API-Key"
)

// Middleware resolves the acting user of each request
type Middleware struct {
	apiKey string
	logger *zap.Logger
}

func NewMiddleware(cfg *config.Config, logger *zap.Logger) *Middleware {
	return &Middleware{
		apiKey: cfg.APIKey.Value,
		logger: logger,
	}
}

// Authenticate requires a positive integer X-User-ID header. When an API key
// is configured the request must also present it.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viaKey := false
		if m.apiKey != "" {
			if !m.validateAPIKey(r.Header.Get(HeaderAPIKey)) {
				m.logger.Warn("invalid API key attempt",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr))
				http.Error(w, "Unauthorized: invalid API key", http.StatusUnauthorized)
				return
			}
			viaKey = true
		}

		raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if raw == "" {
			http.Error(w, "Unauthorized: missing "+HeaderUserID+" header", http.StatusUnauthorized)
			return
		}
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			m.logger.Debug("rejected malformed actor header",
				zap.String("path", r.URL.Path),
				zap.String("value", raw))
			http.Error(w, "Unauthorized: invalid "+HeaderUserID+" header", http.StatusUnauthorized)
			return
		}

		ctx := WithActor(r.Context(), &Actor{UserID: userID, ViaAPIKey: viaKey})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) validateAPIKey(key string) bool {
	if key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) == 1
}
