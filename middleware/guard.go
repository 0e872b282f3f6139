package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/goSession/jwt"
)

// Verifier checks an access token's signature and registered claims.
type Verifier interface {
	ParseAccess(token string) (*jwt.AccessClaims, error)
}

// SessionChecker reports whether the session behind verified claims is still live.
type SessionChecker interface {
	SessionActive(ctx context.Context, claims *jwt.AccessClaims) (bool, error)
}

// Mode selects how much a guard verifies.
type Mode uint8

const (
	// ModeJWTOnly trusts a valid signature until exp.
	ModeJWTOnly Mode = iota
	// ModeStrict also asks the SessionChecker, so a logout is effective immediately.
	ModeStrict
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by a guard.
func ClaimsFromContext(ctx context.Context) (*jwt.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.AccessClaims)
	return claims, ok
}

// Guard rejects requests without a valid bearer token with a 401 JSON envelope.
// ModeStrict with a nil checker fails closed.
func Guard(v Verifier, checker SessionChecker, mode Mode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				unauthorized(w, "Access token required")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "Access token required")
				return
			}

			claims, err := v.ParseAccess(token)
			if err != nil {
				unauthorized(w, "Invalid or expired token")
				return
			}

			if mode == ModeStrict {
				if checker == nil {
					unauthorized(w, "Session expired")
					return
				}
				live, err := checker.SessionActive(r.Context(), claims)
				if err != nil || !live {
					unauthorized(w, "Session expired")
					return
				}
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
}
