// Package middleware guards HTTP handlers with bearer access tokens.
//
// # Guards
//
//   - [Guard] picks the mode explicitly.
//   - [RequireJWTOnly] verifies signature and expiry only.
//   - [RequireStrict] also checks that the session named by the token's sid is live.
//
// Verified claims are placed in the request context; read them with [ClaimsFromContext].
// Rejections are 401 responses carrying the {"success": false, "message": ...} envelope
// the session client understands.
package middleware
