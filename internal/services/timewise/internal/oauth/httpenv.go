package oauth

import (
	"fmt"
	"net/http"
	"time"
)

const cookieMaxAge = 10 * time.Minute

// HTTPEnv implements the Env interface using HTTP cookies
type HTTPEnv struct {
	scope string
	w     http.ResponseWriter
	r     *http.Request
}

// NewHTTPEnv creates a new HTTPEnv instance; cookie names are prefixed with scope
func NewHTTPEnv(scope string, w http.ResponseWriter, r *http.Request) *HTTPEnv {
	return &HTTPEnv{scope: scope, w: w, r: r}
}

func (e *HTTPEnv) name(key string) string {
	return fmt.Sprintf("%s-%s", e.scope, key)
}

func (e *HTTPEnv) Save(key, val string) error {
	http.SetCookie(e.w, &http.Cookie{
		Name:     e.name(key),
		Value:    val,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   e.r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (e *HTTPEnv) Load(key string) (string, error) {
	c, err := e.r.Cookie(e.name(key))
	if err != nil {
		return "", err
	}

	return c.Value, nil
}

func (e *HTTPEnv) Delete(key string) error {
	http.SetCookie(e.w, &http.Cookie{
		Name:     e.name(key),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   e.r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
