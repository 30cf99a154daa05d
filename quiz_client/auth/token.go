package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("no auth token available")
	ErrTokenExpired = errors.New("auth token is expired")
)

// TokenProvider hands out the current bearer token. The login flow that
// obtains and refreshes it lives outside this module.
type TokenProvider interface {
	Token() (string, error)
}

// StaticToken is a TokenProvider over a fixed token string, e.g. one read
// from the environment at startup.
type StaticToken string

func (s StaticToken) Token() (string, error) {
	if s == "" {
		return "", ErrMissingToken
	}
	return string(s), nil
}

// CheckToken verifies locally that the token is present and not past its exp
// claim. The signature is NOT verified here; that is the server's job. The
// point is to fail fast before any network attempt.
func CheckToken(tokenString string, now time.Time) error {
	if tokenString == "" {
		return ErrMissingToken
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return fmt.Errorf("malformed token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("malformed token: %w", err)
	}
	if exp != nil && now.After(exp.Time) {
		return ErrTokenExpired
	}
	return nil
}

// SubjectOf extracts the sub claim without verifying the signature. Used to
// sanity-check that the caller connects with its own identity.
func SubjectOf(tokenString string) (string, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return "", fmt.Errorf("malformed token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("malformed token: %w", err)
	}
	return sub, nil
}
