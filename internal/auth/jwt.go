// Package auth verifies who is calling the engine.
//
// Login itself (OAuth, passwords) is owned by the user-management service;
// this package only checks the HS256 access tokens it issues and turns them
// into a model.Actor. It also hashes invitation-token secrets with bcrypt.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/recshare/internal/model"
)

const (
	issuer     = "recshare"
	defaultTTL = 15 * time.Minute
)

// TokenService signs and validates access tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService requires a secret of at least 16 bytes. A zero ttl selects
// the 15 minute default.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// claims carries the role next to the registered claims; the subject is the
// user id.
type claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Generate issues a token for actor valid for the service TTL.
func (s *TokenService) Generate(actor model.Actor) (string, error) {
	return s.GenerateWithDuration(actor, s.ttl)
}

// GenerateWithDuration is Generate with an explicit lifetime. Tests use a
// negative duration to get an already expired token.
func (s *TokenService) GenerateWithDuration(actor model.Actor, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenStr and returns the actor it was issued for. A
// missing or unknown role claim yields model.RoleUser.
func (s *TokenService) Validate(tokenStr string) (model.Actor, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Actor{}, fmt.Errorf("auth: token expired")
		}
		return model.Actor{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return model.Actor{}, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return model.Actor{}, fmt.Errorf("auth: token has no subject")
	}

	role := model.RoleUser
	if model.Role(c.Role) == model.RoleAdmin {
		role = model.RoleAdmin
	}
	return model.Actor{UserID: c.Subject, Role: role}, nil
}
