// Package identity resolves the calling user from request credentials.
package identity

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// PhoneHeaderName carries the caller's phone when header identity is allowed.
const PhoneHeaderName = "X-Phone"

type contextKey int

const userIDKey contextKey = iota

// TokenParser validates a bearer token and returns the phone it was issued to.
type TokenParser interface {
	Parse(raw string) (string, error)
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(auth[7:]), true
}

// Middleware resolves identity from an Authorization bearer token or, when
// allowHeader is set, from the X-Phone header. A bearer token that fails to
// parse is rejected outright; a request with neither passes through anonymous.
func Middleware(tokens TokenParser, allowHeader bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := ""
			if raw, ok := bearerToken(r); ok && tokens != nil {
				phone, err := tokens.Parse(raw)
				if err != nil {
					http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
					return
				}
				userID = phone
			} else if allowHeader {
				userID = strings.TrimSpace(r.Header.Get(PhoneHeaderName))
			}

			if userID != "" {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require answers 401 for requests without a resolved identity.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFromContext(r.Context()) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing caller identity"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
