// Package devauth is a self-contained implementation of the portal auth API used by
// tests, the load generator and `sessionctl serve-dev`.
//
// It serves the same JSON envelopes and WebSocket events a real deployment does:
// argon2 password hashes, TOTP and backup-code MFA with the three enrolment states,
// Redis sessions keyed by ULID with rotating refresh tokens, and HS256 or Ed25519 access
// tokens. Setters such as [Server.SetFailRefresh] and [Server.SetRefreshDelay] let tests
// force the failure paths a client has to survive.
package devauth
