package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gamma-omg/timewise-go/internal/pkg/serr"
)

const maxBodySize = 1 << 20

// ErrorResponse is the body written for every failed request.
type ErrorResponse struct {
	Error string            `json:"error"`
	Code  string            `json:"code,omitempty"`
	Env   map[string]string `json:"details,omitempty"`
}

// ReadJSON decodes the request body into out. An empty body leaves out untouched.
func ReadJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	err := dec.Decode(out)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func WriteJSON(w http.ResponseWriter, status int, resp any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	return enc.Encode(resp)
}

func HandleErr(w http.ResponseWriter, r *http.Request, err error) {
	se, ok := serr.As(err)
	if !ok {
		slog.Error("request error",
			"error", err,
			"method", r.Method,
			"url", r.URL.String(),
			"remote_addr", r.RemoteAddr,
		)

		_ = WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "Internal Server Error",
			Code:  "internal",
		})
		return
	}

	level := slog.LevelWarn
	if se.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request error",
		"error", err,
		"code", se.Code,
		"status", se.StatusCode,
		"method", r.Method,
		"url", r.URL.String(),
		"remote_addr", r.RemoteAddr,
	)

	resp := ErrorResponse{Error: se.Msg, Code: se.Code}
	if len(se.Env) > 0 {
		resp.Env = se.Env
	}
	_ = WriteJSON(w, se.StatusCode, resp)
}
