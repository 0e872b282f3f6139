package middleware

import "net/http"

func RequireStrict(v Verifier, checker SessionChecker) func(http.Handler) http.Handler {
	return Guard(v, checker, ModeStrict)
}
