package api

import (
	"context"
	"net/http"

	"github.com/y0f/rankwatch/internal/httputil"
)

// Auth requires an API key holding every one of perms.
func (h *Handler) Auth(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			apiKey, ok := h.cfg.LookupAPIKey(key)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			for _, perm := range perms {
				if !apiKey.HasPermission(perm) {
					writeError(w, http.StatusForbidden, "forbidden")
					return
				}
			}

			ctx := context.WithValue(r.Context(), httputil.CtxKeyAPIKey, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CronAuth guards the scheduler trigger endpoints with the shared bearer
// secret. Requests are rejected before any work starts.
func (h *Handler) CronAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.cfg.CronSecretConfigured() {
			h.logger.Error("cron trigger rejected: secret not configured", "path", r.URL.Path)
			writeError(w, http.StatusInternalServerError, "cron secret not configured")
			return
		}
		if !h.cfg.MatchCronSecret(httputil.BearerToken(r)) {
			h.logger.Warn("cron trigger rejected: bad token", "path", r.URL.Path,
				"remote", httputil.ExtractIP(r, h.cfg.TrustedNets()))
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
