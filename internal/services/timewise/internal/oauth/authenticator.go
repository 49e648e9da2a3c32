package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

var (
	ErrProviderConflict = errors.New("provider already exists")
	ErrProviderNotFound = errors.New("provider not found")
	ErrAuthFailed       = errors.New("auth failed")
	ErrStateMismatch    = errors.New("oauth state mismatch")

	// ErrProviderTimeout and ErrProviderUnavailable report transport failures
	// talking to the identity provider.
	ErrProviderTimeout     = errors.New("identity provider timeout")
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

const (
	keyState = "state"
	keyNonce = "nonce"
)

// User is the profile returned by an identity provider after a code exchange.
type User struct {
	ID            string
	DisplayName   string
	PictureURL    string
	StatusMessage string
}

// Env persists per login attempt values between the login redirect and the callback.
type Env interface {
	Save(key, val string) error
	Load(key string) (string, error)
	Delete(key string) error
}

type identityProvider interface {
	LoginURL(state, nonce string) (string, error)
	Exchange(ctx context.Context, code, nonce string) (User, error)
}

type Authenticator struct {
	providers map[string]identityProvider
	mu        sync.RWMutex
}

func NewAuthenticator() *Authenticator {
	return &Authenticator{
		providers: make(map[string]identityProvider),
	}
}

func (a *Authenticator) Use(name string, p identityProvider) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.providers[name]; ok {
		return ErrProviderConflict
	}

	a.providers[name] = p
	return nil
}

// LoginURL starts a login attempt: a fresh state and nonce are saved in env
// and embedded into the provider's authorize url.
func (a *Authenticator) LoginURL(env Env, provider string) (string, error) {
	p, err := a.getProvider(provider)
	if err != nil {
		return "", fmt.Errorf("get provider: %w", err)
	}

	state := randString(32)
	nonce := randString(32)
	if err = errors.Join(env.Save(keyState, state), env.Save(keyNonce, nonce)); err != nil {
		return "", fmt.Errorf("save state: %w", err)
	}

	url, err := p.LoginURL(state, nonce)
	if err != nil {
		return "", fmt.Errorf("get login url: %w", err)
	}

	return url, nil
}

// Exchange checks the echoed state against the saved one and only then
// trades the code for the user profile. The saved values are dropped either way.
func (a *Authenticator) Exchange(ctx context.Context, env Env, provider, code, state string) (User, error) {
	p, err := a.getProvider(provider)
	if err != nil {
		return User{}, fmt.Errorf("get provider: %w", err)
	}

	saved, err := env.Load(keyState)
	if err != nil {
		return User{}, fmt.Errorf("%w: load state: %v", ErrStateMismatch, err)
	}

	nonce, err := env.Load(keyNonce)
	if err != nil {
		return User{}, fmt.Errorf("%w: load nonce: %v", ErrStateMismatch, err)
	}

	if err := errors.Join(env.Delete(keyState), env.Delete(keyNonce)); err != nil {
		return User{}, fmt.Errorf("clear state: %w", err)
	}

	if saved == "" || subtle.ConstantTimeCompare([]byte(saved), []byte(state)) != 1 {
		return User{}, ErrStateMismatch
	}

	if code == "" {
		return User{}, fmt.Errorf("%w: missing code", ErrAuthFailed)
	}

	usr, err := p.Exchange(ctx, code, nonce)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			if rerr.Response.StatusCode == http.StatusBadRequest || rerr.Response.StatusCode == http.StatusUnauthorized {
				return User{}, fmt.Errorf("%w: %v", ErrAuthFailed, err)
			}
		}

		return User{}, fmt.Errorf("exchange: %w", err)
	}

	return usr, nil
}

func (a *Authenticator) getProvider(name string) (identityProvider, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	p, ok := a.providers[name]
	if !ok {
		return nil, ErrProviderNotFound
	}

	return p, nil
}

func randString(size int) string {
	b := make([]byte, size)

	// rand.Read never returns an error
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
