// Package auth validates and mints the bearer tokens guarding the admin API.
package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds the HMAC secret and expected issuer.
type Config struct {
	Secret string
	Issuer string
}

// Claims is the verified identity attached to a request.
type Claims struct {
	Subject   string
	Scopes    map[string]struct{}
	ExpiresAt time.Time
}

// tokenClaims is the wire form: registered claims plus a space-separated scope list.
type tokenClaims struct {
	Scopes string `json:"scopes"`
	jwt.RegisteredClaims
}

var (
	// ErrMissingToken is returned when the Authorization header is absent.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps parsing and validation failures.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Parse verifies an HS256 token. Tokens without sub or exp are rejected.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	var tc tokenClaims
	_, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	},
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tc.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}

	scopes := make(map[string]struct{})
	for _, s := range strings.Fields(tc.Scopes) {
		scopes[s] = struct{}{}
	}
	return &Claims{Subject: tc.Subject, Scopes: scopes, ExpiresAt: tc.ExpiresAt.Time}, nil
}

// Issue signs an HS256 token for subject with the given scopes.
func Issue(cfg Config, subject string, scopes []string, ttl time.Duration, now time.Time) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errors.New("jwt secret is empty")
	case strings.TrimSpace(subject) == "":
		return "", errors.New("subject is required")
	case ttl <= 0:
		return "", errors.New("ttl must be positive")
	}
	sorted := append([]string(nil), scopes...)
	sort.Strings(sorted)

	tc := tokenClaims{
		Scopes: strings.Join(sorted, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString([]byte(cfg.Secret))
}

// HasScope reports whether the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Scopes[scope]
	return ok
}
