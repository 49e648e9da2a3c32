package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid session token")

// Claims identify the server-side session a token grants access to.
type Claims struct {
	SessionID string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type JwtIssuer struct {
	secret secretProvider
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

type JwtConfig struct {
	Secret secretProvider
	Issuer string
	TTL    time.Duration
}

func NewJWTIssuer(cfg JwtConfig) *JwtIssuer {
	if cfg.Secret == nil || len(cfg.Secret.Get()) == 0 {
		panic("jwt secret is required")
	}

	return &JwtIssuer{
		secret: cfg.Secret,
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    time.Now,
	}
}

// Issue signs an HS256 token whose subject is the session id.
func (ti *JwtIssuer) Issue(sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("empty session id")
	}

	now := ti.now()
	tk, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   sessionID,
		Issuer:    ti.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
	}).SignedString(ti.secret.Get())
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return tk, nil
}

func (ti *JwtIssuer) Validate(raw string) (Claims, error) {
	var rc jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &rc, func(t *jwt.Token) (any, error) {
		return ti.secret.Get(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ti.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if rc.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return Claims{
		SessionID: rc.Subject,
		ID:        rc.ID,
		IssuedAt:  rc.IssuedAt.Time,
		ExpiresAt: rc.ExpiresAt.Time,
	}, nil
}

// ValidateSession returns the session id granted by a valid token.
func (ti *JwtIssuer) ValidateSession(raw string) (string, error) {
	c, err := ti.Validate(raw)
	if err != nil {
		return "", err
	}
	return c.SessionID, nil
}
