// Package middleware provides HTTP middleware for the vault API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/vault_layer/internal/errors"
	"github.com/R3E-Network/vault_layer/pkg/logger"
)

type contextKey string

const principalKey contextKey = "principal"

// Claims are the JWT claims the vault cares about. Principal is the Neo
// address the token was issued for; every vault operation runs as it.
type Claims struct {
	Principal string `json:"principal"`
	jwt.RegisteredClaims
}

// Auth validates bearer tokens and injects the caller principal into the
// request context.
type Auth struct {
	secret    []byte
	log       *logger.Logger
	skipPaths map[string]bool
}

// NewAuth creates an authentication middleware. Tokens are HS256-signed
// with the given secret. Paths in skipPaths bypass authentication.
func NewAuth(secret []byte, log *logger.Logger, skipPaths []string) *Auth {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}
	return &Auth{secret: secret, log: log, skipPaths: skip}
}

// Handler returns the middleware handler.
func (a *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			a.reject(w, r, errors.Unauthorized("missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			a.reject(w, r, errors.Unauthorized("invalid Authorization header format"))
			return
		}

		claims, err := a.validateToken(parts[1])
		if err != nil {
			a.log.WithError(err).Warnf("token validation failed")
			a.reject(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, claims.Principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Unauthorized("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, errors.Unauthorized("invalid token: %v", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.Unauthorized("invalid token claims")
	}
	if claims.Principal == "" {
		return nil, errors.Unauthorized("token has no principal")
	}
	return claims, nil
}

func (a *Auth) reject(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + err.Error() + `"}`))
}

// IssueToken mints a token for a principal. Used by tests and operator
// tooling, not by the request path.
func IssueToken(secret []byte, claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Principal extracts the authenticated caller from the context. Empty when
// the request did not pass through Auth.
func Principal(ctx context.Context) string {
	if p, ok := ctx.Value(principalKey).(string); ok {
		return p
	}
	return ""
}

// WithPrincipal returns a context carrying the given principal. Test helper.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}
