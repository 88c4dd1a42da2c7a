package tokenstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrOpaqueToken is returned by Inspect for tokens that are not JWTs.
var ErrOpaqueToken = errors.New("token is not a JWT")

// now is swapped in tests.
var now = time.Now

// Inspect reads the claims of a JWT without verifying its signature. The
// agent cannot verify tokens; it only needs the subject and expiry.
func Inspect(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpaqueToken, err)
	}
	return claims, nil
}

// Identify describes the token holder for the UI.
func Identify(token, profile string) model.Identity {
	id := model.Identity{Profile: profile}
	claims, err := Inspect(token)
	if err != nil {
		return id
	}
	id.Subject = claims.Subject
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Unix()
		id.ExpiresAt = &exp
	}
	return id
}

// checkExpiry rejects JWTs whose exp claim has passed. Opaque tokens are
// accepted as-is.
func checkExpiry(token string) error {
	claims, err := Inspect(token)
	if err != nil {
		return nil
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(now()) {
		return ErrExpired
	}
	return nil
}

// remainingLifetime returns how long the token stays valid, or 0 when the
// token carries no expiry.
func remainingLifetime(token string) time.Duration {
	claims, err := Inspect(token)
	if err != nil || claims.ExpiresAt == nil {
		return 0
	}
	return claims.ExpiresAt.Sub(now())
}
