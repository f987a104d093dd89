package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/telhawk-systems/edi-stack/common/httputil"
	"github.com/telhawk-systems/edi-stack/common/logging"
	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

type contextKey string

const identityKey contextKey = "actor_identity"

// WithIdentity stores the authenticated actor in ctx.
func WithIdentity(ctx context.Context, id models.ActorIdentity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the authenticated actor stored in ctx.
func IdentityFrom(ctx context.Context) (models.ActorIdentity, bool) {
	id, ok := ctx.Value(identityKey).(models.ActorIdentity)
	return id, ok
}

// Middleware authenticates requests with a bearer token.
type Middleware struct {
	tokens *TokenManager
}

func NewMiddleware(tokens *TokenManager) *Middleware {
	return &Middleware{tokens: tokens}
}

// RequireActor rejects requests without a valid bearer token and stores the
// actor identity in the request context.
func (m *Middleware) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			httputil.WriteError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		claims, err := m.tokens.Validate(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, ErrExpiredToken) {
				msg = "token expired"
			}
			httputil.WriteError(w, http.StatusUnauthorized, msg)
			return
		}

		id := claims.Identity()
		ctx := logging.WithActorNumber(WithIdentity(r.Context(), id), id.ActorNumber)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
