package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gamma-omg/timewise-go/internal/pkg/httpx"
	"github.com/gamma-omg/timewise-go/internal/pkg/router"
)

func Recover() router.Middleware {
	return RecoverWith(slog.Default())
}

// RecoverWith turns a handler panic into a 500 response. http.ErrAbortHandler
// is re-raised so the server can drop the connection.
func RecoverWith(l *slog.Logger) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}

				l.Error("handler panicked",
					"panic", v,
					"request_id", r.Header.Get(RequestIDHeader),
					"method", r.Method,
					"url", redactURL(r.URL),
					"stack", string(debug.Stack()))

				_ = httpx.WriteJSON(w, http.StatusInternalServerError, httpx.ErrorResponse{
					Error: "Internal Server Error",
					Code:  "internal",
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
