// Package token mints actor tokens accepted by a gateway sharing the same
// signing secret. It is meant for development and test environments.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "edi-gateway"

// Claims mirrors the claims the gateway validates.
type Claims struct {
	ActorNumber string   `json:"actor_number"`
	Roles       []string `json:"roles"`
	jwt.RegisteredClaims
}

// Mint signs a token for actorNumber holding roles, valid for ttl.
func Mint(secret, actorNumber string, roles []string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("signing secret is required")
	}
	if actorNumber == "" {
		return "", errors.New("actor number is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := time.Now()
	claims := Claims{
		ActorNumber: actorNumber,
		Roles:       roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorNumber,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Inspect decodes a token without verifying its signature.
func Inspect(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
