package goSession

import (
	"errors"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/wsauth"
)

var (
	// ErrNoRefreshToken means there was nothing to renew with; show the login screen.
	ErrNoRefreshToken = refresh.ErrNoRefreshToken
	// ErrRenewalFailed means the server refused the refresh token and the session was cleared.
	ErrRenewalFailed = refresh.ErrRenewalFailed
	// ErrMalformedToken means an access token's expiry could not be decoded.
	ErrMalformedToken = jwt.ErrMalformedToken
	// ErrAuthTimeout means a WebSocket auth attempt got no answer in time.
	ErrAuthTimeout = wsauth.ErrAuthTimeout
	// ErrCancelled means a logout or cancel superseded the operation.
	ErrCancelled = session.ErrCancelled
	// ErrSuperseded means the session was replaced while a renewal was in flight.
	ErrSuperseded = session.ErrSuperseded

	ErrIncompletePair = session.ErrIncompletePair
	ErrPersist        = session.ErrPersist
	ErrEmptyMFACode   = wsauth.ErrEmptyMFACode

	ErrNotAuthenticated = errors.New("not authenticated")
	ErrBuilderUsed      = errors.New("builder already used")
	ErrRedisRequired    = errors.New("redis client required for redis persistence")
	ErrManagerClosed    = errors.New("session manager closed")
)

// Result is the shape UI layers display for an operation outcome.
type Result struct {
	Success bool
	Message string
}

// ResultOf converts an operation error into a [Result]. A nil error is a success.
func ResultOf(err error) Result {
	if err == nil {
		return Result{Success: true}
	}

	var apiErr *authapi.Error
	var srvErr *wsauth.ServerError
	switch {
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return Result{Message: apiErr.Message}
	case errors.As(err, &srvErr) && srvErr.Message != "":
		return Result{Message: srvErr.Message}
	case errors.Is(err, ErrNoRefreshToken), errors.Is(err, ErrNotAuthenticated):
		return Result{Message: "Please sign in."}
	case errors.Is(err, ErrRenewalFailed):
		return Result{Message: "Your session has expired. Please sign in again."}
	case errors.Is(err, ErrAuthTimeout):
		return Result{Message: "Authentication timed out. Please try again."}
	case errors.Is(err, ErrCancelled):
		return Result{Message: "Authentication cancelled."}
	default:
		return Result{Message: err.Error()}
	}
}

// IsTerminal reports whether err ends the session: the caller should route to login
// rather than retry.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrNoRefreshToken) ||
		errors.Is(err, ErrRenewalFailed) ||
		errors.Is(err, ErrNotAuthenticated)
}
