package api

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// setCORS writes the CORS headers of the read-only API.
func setCORS(set func(key, value string)) {
	set("Access-Control-Allow-Origin", "*")
	set("Access-Control-Allow-Methods", "GET, OPTIONS")
	set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, Origin")
	set("Access-Control-Max-Age", "86400")
}

func corsMiddleware(ctx huma.Context, next func(huma.Context)) {
	setCORS(ctx.SetHeader)
	next(ctx)
}

// preflight answers OPTIONS on the mux. huma never routes OPTIONS to an
// operation, so its middleware does not see these requests.
func preflight(w http.ResponseWriter, _ *http.Request) {
	setCORS(w.Header().Set)
	w.WriteHeader(http.StatusNoContent)
}

// logRequest logs every completed request. Errors log at warn or error;
// health probes and event stream connections log at debug.
func (s *Server) logRequest(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	next(ctx)

	path := ctx.URL().Path
	status := ctx.Status()
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	case path == "/api/health" || path == "/api/events":
		level = slog.LevelDebug
	}

	attrs := []slog.Attr{
		slog.String("method", ctx.Method()),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}
	s.logger.LogAttrs(ctx.Context(), level, "HTTP request", attrs...)
}

// basicAuth guards operations that declare security. The credentials come
// from the Authorization header or, for EventSource clients that cannot set
// headers, from the base64 "auth" query parameter.
func (s *Server) basicAuth(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if op := ctx.Operation(); op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		encoded := ctx.Query("auth")
		if header := ctx.Header("Authorization"); header != "" {
			var ok bool
			if encoded, ok = strings.CutPrefix(header, "Basic "); !ok {
				s.unauthorized(ctx, "Invalid authentication type")
				return
			}
		}
		if encoded == "" {
			s.unauthorized(ctx, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			s.unauthorized(ctx, "Invalid credentials format", err)
			return
		}
		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok || user != username || pass != password {
			s.unauthorized(ctx, "Invalid credentials")
			return
		}
		next(ctx)
	}
}

func (s *Server) unauthorized(ctx huma.Context, msg string, errs ...error) {
	ctx.SetHeader("WWW-Authenticate", `Basic realm="teecast"`)
	_ = huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
}
