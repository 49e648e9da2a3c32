// Package otc hands a freshly authenticated session from the browser callback
// to the app through short-lived single-use codes.
package otc

import (
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

var ErrCodeNotFound = errors.New("code not found")

// Entry is what a code redeems to.
type Entry struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

func generateCode() string {
	return base64.RawURLEncoding.EncodeToString([]byte(uuid.New().String()))
}
