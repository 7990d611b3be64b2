// Package auth verifies bearer credentials and carries the resulting
// principal through HTTP requests and realtime connections alike.
package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Principal is the validated identity bound to a request or connection.
// It is derived once and never mutated.
type Principal struct {
	UserID domain.UserID
	Claims map[string]any
}

// TokenValidator verifies a bearer credential and extracts a Principal.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (Principal, error)
}

// HS256Validator validates access tokens signed with a shared HS256 secret.
type HS256Validator struct {
	secret []byte
}

// NewHS256Validator creates a validator for tokens signed with secret.
func NewHS256Validator(secret string) (*HS256Validator, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	return &HS256Validator{secret: []byte(secret)}, nil
}

// Validate verifies signature and expiry and resolves the user id from the
// "sub" claim, falling back to "userId". Every failure wraps ErrUnauthorized.
func (v *HS256Validator) Validate(_ context.Context, tokenString string) (Principal, error) {
	if tokenString == "" {
		return Principal{}, fmt.Errorf("%w: empty token", domain.ErrUnauthorized)
	}

	tok, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	raw, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return Principal{}, fmt.Errorf("%w: unsupported claims", domain.ErrUnauthorized)
	}

	userID, err := userIDFromClaims(raw)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	return Principal{UserID: userID, Claims: map[string]any(raw)}, nil
}

func userIDFromClaims(claims jwt.MapClaims) (domain.UserID, error) {
	for _, key := range []string{"sub", "userId"} {
		switch v := claims[key].(type) {
		case string:
			id, err := strconv.ParseInt(v, 10, 64)
			if err == nil && id > 0 {
				return domain.UserID(id), nil
			}
		case float64:
			if v > 0 {
				return domain.UserID(v), nil
			}
		}
	}
	return 0, fmt.Errorf("no user id claim")
}

// SubjectOf reads the user id from token without verifying it. Local tooling
// uses it to learn who it is signed in as; servers must use a TokenValidator.
func SubjectOf(tokenString string) (domain.UserID, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	userID, err := userIDFromClaims(claims)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return userID, nil
}

// IssueToken signs an access token for userID. Production tokens come from the
// auth service; this exists for local tooling and tests.
func IssueToken(secret string, userID domain.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(int64(userID), 10),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
