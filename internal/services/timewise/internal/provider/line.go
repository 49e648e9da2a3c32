package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/oauth"
	"golang.org/x/oauth2"
)

const (
	LineIssuer     = "https://access.line.me"
	LineAuthURL    = "https://access.line.me/oauth2/v2.1/authorize"
	LineTokenURL   = "https://api.line.me/oauth2/v2.1/token"
	LineProfileURL = "https://api.line.me/v2/profile"

	lineScopeProfile = "profile"

	DefaultTimeout = 15 * time.Second
)

// Line implements the identityProvider interface for LINE Login
type Line struct {
	cfg        *oauth2.Config
	profileURL string
	verifier   *oidc.IDTokenVerifier
	client     *http.Client
	timeout    time.Duration
}

// LineConfig holds the configuration for the LINE Login provider. Empty
// endpoint urls fall back to the public LINE endpoints. Timeout bounds a whole
// code exchange including the profile read.
type LineConfig struct {
	ChannelID     string
	ChannelSecret string
	RedirectURL   string
	AuthURL       string
	TokenURL      string
	ProfileURL    string
	VerifyIDToken bool
	Timeout       time.Duration
	HTTPClient    *http.Client
}

type lineProfile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl"`
	StatusMessage string `json:"statusMessage"`
}

// NewLine creates a LINE provider. With VerifyIDToken set the id token returned by
// the token endpoint is verified against the LINE issuer (ES256) and its nonce checked.
func NewLine(ctx context.Context, cfg LineConfig) (*Line, error) {
	l := &Line{
		cfg: &oauth2.Config{
			ClientID:     cfg.ChannelID,
			ClientSecret: cfg.ChannelSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{lineScopeProfile, oidc.ScopeOpenID},
			Endpoint: oauth2.Endpoint{
				AuthURL:   or(cfg.AuthURL, LineAuthURL),
				TokenURL:  or(cfg.TokenURL, LineTokenURL),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		profileURL: or(cfg.ProfileURL, LineProfileURL),
		client:     cfg.HTTPClient,
		timeout:    cfg.Timeout,
	}
	if l.timeout <= 0 {
		l.timeout = DefaultTimeout
	}
	if l.client == nil {
		l.client = &http.Client{Timeout: l.timeout}
	}

	if cfg.VerifyIDToken {
		p, err := oidc.NewProvider(oidc.ClientContext(ctx, l.client), LineIssuer)
		if err != nil {
			return nil, fmt.Errorf("new oidc provider: %w", err)
		}

		l.verifier = p.Verifier(&oidc.Config{
			ClientID:             cfg.ChannelID,
			SupportedSigningAlgs: []string{oidc.ES256},
		})
	}

	return l, nil
}

// LoginURL generates the LINE authorize url with the given state and nonce
func (l *Line) LoginURL(state, nonce string) (string, error) {
	return l.cfg.AuthCodeURL(state, oidc.Nonce(nonce)), nil
}

// Exchange exchanges the authorization code and reads the user's profile
func (l *Line) Exchange(ctx context.Context, code, nonce string) (oauth.User, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, l.client)

	tok, err := l.cfg.Exchange(ctx, code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return oauth.User{}, err
		}
		return oauth.User{}, transportErr(err)
	}

	var subject string
	if l.verifier != nil {
		raw, ok := tok.Extra("id_token").(string)
		if !ok || raw == "" {
			return oauth.User{}, fmt.Errorf("%w: missing id token", oauth.ErrAuthFailed)
		}

		idTok, err := l.verifier.Verify(ctx, raw)
		if err != nil {
			return oauth.User{}, fmt.Errorf("%w: verify id token: %v", oauth.ErrAuthFailed, err)
		}

		if idTok.Nonce != nonce {
			return oauth.User{}, fmt.Errorf("%w: nonce mismatch", oauth.ErrAuthFailed)
		}
		subject = idTok.Subject
	}

	p, err := l.profile(ctx, tok)
	if err != nil {
		return oauth.User{}, fmt.Errorf("get profile: %w", err)
	}

	if subject != "" && subject != p.UserID {
		return oauth.User{}, fmt.Errorf("%w: profile does not match id token", oauth.ErrAuthFailed)
	}

	return oauth.User{
		ID:            p.UserID,
		DisplayName:   p.DisplayName,
		PictureURL:    p.PictureURL,
		StatusMessage: p.StatusMessage,
	}, nil
}

func (l *Line) profile(ctx context.Context, tok *oauth2.Token) (lineProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.profileURL, nil)
	if err != nil {
		return lineProfile{}, fmt.Errorf("create request: %w", err)
	}
	tok.SetAuthHeader(req)

	resp, err := l.client.Do(req)
	if err != nil {
		return lineProfile{}, transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return lineProfile{}, fmt.Errorf("%w: profile status %d", oauth.ErrAuthFailed, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return lineProfile{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var p lineProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return lineProfile{}, fmt.Errorf("decode profile: %w", err)
	}

	if p.UserID == "" {
		return lineProfile{}, errors.New("profile without user id")
	}

	return p, nil
}

func transportErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return fmt.Errorf("%w: %v", oauth.ErrProviderTimeout, err)
	}
	return fmt.Errorf("%w: %v", oauth.ErrProviderUnavailable, err)
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
