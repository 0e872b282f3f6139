// Package jwt decodes access-token expiry on the client side and, for the reference
// auth server, issues and verifies signed access tokens.
//
// # Client side
//
// [ExpiresAt] reads the exp claim of a compact JWT without verifying its signature. The
// client never holds the signing key; the server remains the only authority on validity,
// and the decoded expiry is used purely to schedule renewal.
//
// # Server side
//
// [Manager] signs and verifies tokens with Ed25519 (default) or HS256 and strict
// issuer/audience/leeway semantics.
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Import goSession, session, or schedule (no upward imports).
package jwt
