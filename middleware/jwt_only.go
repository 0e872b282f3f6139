package middleware

import "net/http"

// RequireJWTOnly is [Guard] in [ModeJWTOnly]: signature and exp only, no store lookup.
func RequireJWTOnly(v Verifier) func(http.Handler) http.Handler {
	return Guard(v, nil, ModeJWTOnly)
}
