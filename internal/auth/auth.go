package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthenticated is returned when no valid credential is presented.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves a bearer token to a user id. The production identity
// provider lives behind this boundary; the pipeline only ever sees user ids.
type Authenticator interface {
	UserForToken(token string) (string, error)
}

// StaticTokens is a token→user map loaded from configuration. Suitable for
// single-box deployments and tests.
type StaticTokens map[string]string

func (s StaticTokens) UserForToken(token string) (string, error) {
	if uid, ok := s[token]; ok {
		return uid, nil
	}
	return "", ErrUnauthenticated
}

type userIDKey struct{}

// Middleware authenticates end-user requests via Authorization: Bearer and
// injects the user id into the request context.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("Authorization")
			token = strings.TrimPrefix(token, "Bearer ")
			if token == "" {
				http.Error(w, "missing credentials", http.StatusUnauthorized)
				return
			}
			uid, err := a.UserForToken(token)
			if err != nil {
				http.Error(w, "invalid credentials", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey{}, uid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated user id from the context, or "".
func UserID(ctx context.Context) string {
	if uid, ok := ctx.Value(userIDKey{}).(string); ok {
		return uid
	}
	return ""
}
