package rest

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gamma-omg/timewise-go/internal/pkg/httpx"
	"github.com/gamma-omg/timewise-go/internal/pkg/serr"
)

func badRequest(err error) error {
	return serr.NewServiceError(fmt.Errorf("read request json: %w", err), http.StatusBadRequest, "invalid request body").
		WithCode("bad_request")
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, resp any) {
	if err := httpx.WriteJSON(w, status, resp); err != nil {
		slog.Error("failed to write response", "error", err, "url", r.URL.String())
	}
}
