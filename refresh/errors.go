package refresh

import "errors"

var (
	// ErrNoRefreshToken is returned when the store holds no refresh token to renew with.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrRenewalFailed wraps the cause of a rejected or failed renewal. The store has
	// been cleared when it is returned.
	ErrRenewalFailed = errors.New("session renewal failed")
)
