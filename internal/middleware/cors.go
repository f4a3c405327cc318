package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/realtime-relay/backend/pkg/utils"
)

const (
	allowMethods  = "GET, POST, OPTIONS"
	allowHeaders  = "Content-Type, Authorization, X-Request-Id"
	exposeHeaders = "X-Request-Id"
	maxAge        = "3600"
)

// CORS rejects requests whose Origin header is set and not in allowed.
// Requests without an Origin (curl, server-to-server) pass through.
func CORS(allowed []string, log zerolog.Logger) func(http.Handler) http.Handler {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := origins[origin]; !ok {
				log.Warn().
					Str("origin", origin).
					Str("path", r.URL.Path).
					Msg("origin rejected")
				utils.RespondError(w, http.StatusForbidden, "origin not allowed")
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Expose-Headers", exposeHeaders)
			h.Set("Access-Control-Max-Age", maxAge)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
