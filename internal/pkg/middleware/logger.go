package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gamma-omg/timewise-go/internal/pkg/router"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// Query parameters that carry credentials during the login round trip.
var redactedParams = []string{"code", "state", "otc", "id_token"}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	if sr.status == 0 {
		sr.status = status
	}
	sr.ResponseWriter.WriteHeader(status)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(b)
}

func Log() router.Middleware {
	return LogWith(slog.Default())
}

// LogWith logs one line per request. Requests without an X-Request-ID header get a
// generated one, echoed back in the response. Login codes and state in the
// query string are masked.
func LogWith(l *slog.Logger) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
				r.Header.Set(RequestIDHeader, reqID)
			}
			w.Header().Set(RequestIDHeader, reqID)

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			l.Info("request handled",
				"request_id", reqID,
				"method", r.Method,
				"url", redactURL(r.URL),
				"status", status,
				"duration", time.Since(start),
				"ip", r.RemoteAddr,
				"agent", r.UserAgent())
		})
	}
}

func redactURL(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Path
	}

	q := u.Query()
	for _, p := range redactedParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
		}
	}

	return u.Path + "?" + q.Encode()
}
