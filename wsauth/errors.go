package wsauth

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthTimeout rejects an attempt that got no server reply within the auth timeout.
	ErrAuthTimeout = errors.New("websocket auth timed out")
	// ErrAuthInProgress rejects a submission while another attempt is outstanding.
	ErrAuthInProgress = errors.New("websocket auth already in progress")
	// ErrNotConnected rejects a submission made before the transport is up.
	ErrNotConnected = errors.New("websocket not connected")
	// ErrDisconnected rejects the outstanding attempt when the transport closes.
	ErrDisconnected = errors.New("websocket disconnected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("websocket channel closed")
	// ErrRejected is the class of every auth:error / auth:mfa-error reply.
	ErrRejected = errors.New("websocket auth rejected")
)

// ServerError carries the message of a rejecting server event.
type ServerError struct {
	Event   string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Event, e.Message)
}

func (e *ServerError) Unwrap() error { return ErrRejected }

// ErrEmptyMFACode is returned by SubmitMFA for a blank code.
var ErrEmptyMFACode = errors.New("mfa code required")
