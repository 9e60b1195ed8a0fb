// Package authsvc is the external auth-service contract of spec §6a:
// validate(token) -> {valid, user_id, role}. The real service is out of
// scope; this package defines the interface every component depends on and a
// JWT-backed reference implementation for local development and tests.
package authsvc

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"simcore/internal/breaker"
	"simcore/pkg/apierr"
)

// Result is the external auth service's response shape.
type Result struct {
	Valid  bool
	UserID string
	Role   string
}

// Validator is the narrow contract every component depends on.
type Validator interface {
	Validate(ctx context.Context, token string) (Result, error)
	IssueAccessToken(userID, role string, ttl time.Duration) (string, error)
}

// claims is the reference implementation's JWT payload shape.
type claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTValidator is a reference implementation of Validator backed by
// golang-jwt, wrapped in a circuit breaker per spec §7 (auth is one of the
// four collaborators the breaker covers).
type JWTValidator struct {
	secret  []byte
	breaker *breaker.Breaker
}

// NewJWTValidator builds a reference auth client around a shared secret.
func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret), breaker: breaker.New()}
}

func (v *JWTValidator) IssueAccessToken(userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(v.secret)
}

func (v *JWTValidator) Validate(ctx context.Context, token string) (Result, error) {
	var result Result
	err := v.breaker.Call(func() error {
		parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
			return v.secret, nil
		})
		if err != nil {
			return apierr.Wrap(apierr.Authentication, "invalid or expired token", err)
		}
		c, ok := parsed.Claims.(*claims)
		if !ok || !parsed.Valid || c.UserID == "" {
			return apierr.New(apierr.Authentication, "invalid token claims")
		}
		result = Result{Valid: true, UserID: c.UserID, Role: c.Role}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}
