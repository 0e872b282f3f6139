// Package rate implements the reference server's Redis fixed-window counters.
//
// Each window is INCR plus EXPIRE NX in one MULTI, so the first hit sets the TTL and
// later hits never extend it. Keys:
//   - <prefix>login:<identifier>  failed logins per identifier
//   - <prefix>login-ip:<ip>       failed logins per IP
//   - <prefix>refresh:<session>   refreshes per session
package rate
