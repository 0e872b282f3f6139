// Package authapi is the typed HTTP client for the portal auth endpoints
// (/api/auth/login, /refresh, /me and /logout).
//
// Login and refresh requests are marked with interceptor.WithoutAuth so that the
// intercepting transport never decorates or retries them. Every non-success reply is
// returned as *Error.
package authapi
