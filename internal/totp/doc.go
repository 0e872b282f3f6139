// Package totp implements RFC 6238 codes and backup codes for the reference auth server.
package totp
