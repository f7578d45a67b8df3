package middleware

import (
	"net/http"
	"time"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/logger"
)

func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		lg := logger.WithCtx(r.Context())
		ev := lg.Info()
		switch {
		case sw.status >= 500:
			ev = lg.Error()
		case sw.status >= 400:
			ev = lg.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", routePattern(r)).
			Int("status", sw.status).
			Int("bytes", sw.bytes).
			Dur("took", time.Since(start)).
			Str("ip", clientIP(r)).
			Msg("http request")
	})
}
