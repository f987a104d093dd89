// Package auth issues and verifies the signed tokens actors present to the
// EDI API.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

const issuer = "edi-gateway"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingActor = errors.New("token has no actor number")
)

// Claims identify a market actor and the role names it holds.
type Claims struct {
	ActorNumber string   `json:"actor_number"`
	Roles       []string `json:"roles"`
	jwt.RegisteredClaims
}

// Identity returns the actor identity carried by the claims.
func (c *Claims) Identity() models.ActorIdentity {
	return models.ActorIdentity{ActorNumber: c.ActorNumber, Roles: c.Roles}
}

// TokenManager signs and validates HS256 actor tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate issues a token for actorNumber holding roles.
func (m *TokenManager) Generate(actorNumber string, roles []string) (string, error) {
	if strings.TrimSpace(actorNumber) == "" {
		return "", ErrMissingActor
	}
	now := m.now()
	claims := Claims{
		ActorNumber: actorNumber,
		Roles:       roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorNumber,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenString and returns its claims.
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ActorNumber == "" {
		return nil, ErrMissingActor
	}
	return claims, nil
}
