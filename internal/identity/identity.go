// Package identity turns a bearer token into the trusted (userID, role) pair
// the session engine runs under.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
)

var (
	ErrTokenRequired = errors.New("token required")
	ErrTokenInvalid  = errors.New("token invalid")
	ErrUnknownRole   = errors.New("unknown role")
)

// Provider supplies the identity for a session. It is consulted once at start.
type Provider interface {
	Identity(ctx context.Context) (model.Identity, error)
}

// Claims defines the JWT payload shared by the client and the hub.
type Claims struct {
	jwt.RegisteredClaims
	UserID string     `json:"user_id"`
	Role   model.Role `json:"role"`
}

// Authority signs and validates HS256 tokens with one shared secret.
type Authority struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewAuthority creates a new Authority.
func NewAuthority(secret string, expiry time.Duration) *Authority {
	return &Authority{secret: []byte(secret), expiry: expiry, now: time.Now}
}

// Issue signs a token for id.
func (a *Authority) Issue(id model.Identity) (string, error) {
	if !validRole(id.Role) {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, id.Role)
	}
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
		},
		UserID: id.UserID,
		Role:   id.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and validates a token, returning its claims.
func (a *Authority) Validate(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrTokenRequired
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	if !validRole(claims.Role) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, claims.Role)
	}
	return claims, nil
}

func validRole(r model.Role) bool {
	switch r {
	case model.RoleStudent, model.RoleProctor, model.RoleAdmin:
		return true
	}
	return false
}

// TokenProvider derives the identity from a pre-issued token.
type TokenProvider struct {
	authority *Authority
	token     string
}

// NewTokenProvider creates a new TokenProvider.
func NewTokenProvider(authority *Authority, token string) *TokenProvider {
	return &TokenProvider{authority: authority, token: token}
}

func (p *TokenProvider) Identity(context.Context) (model.Identity, error) {
	claims, err := p.authority.Validate(p.token)
	if err != nil {
		return model.Identity{}, err
	}
	return model.Identity{UserID: claims.UserID, Role: claims.Role}, nil
}

// StaticProvider returns a fixed identity, for kiosk setups and tests.
type StaticProvider model.Identity

func (p StaticProvider) Identity(context.Context) (model.Identity, error) {
	if p.UserID == "" {
		return model.Identity{}, ErrTokenRequired
	}
	return model.Identity(p), nil
}
