package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gamma-omg/timewise-go/internal/pkg/httpx"
	"github.com/gamma-omg/timewise-go/internal/pkg/router"
)

type ctxKey struct{}

var sessionIDKey ctxKey

// SessionValidator checks a raw session token and returns the session id it
// grants.
type SessionValidator interface {
	ValidateSession(raw string) (string, error)
}

type SessionValidatorFunc func(raw string) (string, error)

func (f SessionValidatorFunc) ValidateSession(raw string) (string, error) {
	return f(raw)
}

// Auth accepts requests carrying a session token, either raw or with a Bearer
// prefix, and stores the session id granted by v in the request context.
func Auth(v SessionValidator) router.Middleware {
	return func(next http.Handler) http.Handler {
		return authMiddleware(next, v)
	}
}

func authMiddleware(next http.Handler, v SessionValidator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawToken := strings.TrimSpace(r.Header.Get("Authorization"))
		rawToken = strings.TrimSpace(strings.TrimPrefix(rawToken, "Bearer "))
		if rawToken == "" {
			unauthorized(w)
			return
		}

		sid, err := v.ValidateSession(rawToken)
		if err != nil {
			authError("invalid session token", w, r, err)
			return
		}
		if sid == "" {
			unauthorized(w)
			return
		}

		ctx := WithSessionID(r.Context(), sid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authError(msg string, w http.ResponseWriter, r *http.Request, err error) {
	slog.Warn(msg,
		"error", err,
		"method", r.Method,
		"url", redactURL(r.URL),
		"remote_addr", r.RemoteAddr,
	)
	unauthorized(w)
}

func unauthorized(w http.ResponseWriter) {
	_ = httpx.WriteJSON(w, http.StatusUnauthorized, httpx.ErrorResponse{
		Error: "Unauthorized",
		Code:  "unauthorized",
	})
}

// WithSessionID returns a copy of ctx carrying the session id.
func WithSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sid)
}

func SessionIDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(sessionIDKey).(string)
	return sid
}
