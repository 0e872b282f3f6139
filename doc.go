// Package goSession keeps a portal's authenticated session alive on the client side.
//
// A [Manager] owns one token pair. It renews the pair shortly before the access token
// expires, makes every concurrent renewal share a single refresh request, and retries an
// HTTP request exactly once after a 401. Logins can also run over a WebSocket channel
// whose MFA challenge and 10 second timeout are handled by a small state machine.
//
// The building blocks live in their own packages and can be used directly:
//
//   - session: the token store and persisters (memory, Redis, file)
//   - schedule: renewal timing and the single renewal timer
//   - refresh: the single-flight renewal executor
//   - interceptor: the http.RoundTripper that attaches tokens and retries once
//   - authapi: the typed client for /api/auth
//   - wsauth: the WebSocket auth channel
//
// A failed renewal is final: the session is cleared and callers get an error for which
// [IsTerminal] is true. Nothing in this module retries authentication on its own.
package goSession
