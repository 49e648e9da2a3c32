package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// RequestOption customises a request built by SendRequest.
type RequestOption func(r *http.Request)

// WithBearer sets the Authorization header.
func WithBearer(token string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

// WithHeader sets an arbitrary request header.
func WithHeader(key, val string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, val)
	}
}

// SendRequest encodes body as JSON (nil sends an empty body) and serves the request through h.
func SendRequest(t testing.TB, h http.Handler, method, path string, body any, opts ...RequestOption) *httptest.ResponseRecorder {
	t.Helper()

	var bodyRW strings.Builder
	if body != nil {
		enc := json.NewEncoder(&bodyRW)
		err := enc.Encode(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, path, strings.NewReader(bodyRW.String()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func ParseResponse[T any](t testing.TB, rec *httptest.ResponseRecorder) T {
	t.Helper()

	dec := json.NewDecoder(rec.Body)
	var resp T
	err := dec.Decode(&resp)
	require.NoError(t, err)

	return resp
}

// JSONHandler returns a handler that records the decoded request body into in and
// answers with status and resp.
func JSONHandler[T any](t testing.TB, in *T, status int, resp any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if in != nil {
			if err := json.NewDecoder(r.Body).Decode(in); err != nil {
				t.Errorf("decode request body: %v", err)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if resp != nil {
			_ = json.NewEncoder(w).Encode(resp)
		}
	}
}

func WaitFor(t testing.TB, ctx context.Context, interval time.Duration, condition func() bool) bool {
	t.Helper()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if condition() {
				return true
			}
		}
	}
}
