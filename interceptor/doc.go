// Package interceptor provides the http.RoundTripper every portal API client goes
// through. It attaches the stored access token as a bearer credential and, on a 401,
// waits for a (single-flight) renewal and resends the request once.
package interceptor
