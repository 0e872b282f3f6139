package goSession

import (
	"io"

	"github.com/MrEthical07/goSession/internal/audit"
)

// Audit event types emitted by a [Manager].
const (
	AuditSessionEstablished = "session_established"
	AuditSessionRenewed     = "session_renewed"
	AuditSessionCleared     = "session_cleared"
	AuditRenewalFailed      = "renewal_failed"
	AuditMFAChallenge       = "mfa_challenge"
	AuditLogout             = "logout"
)

// AuditEvent is one lifecycle record. It never carries token material.
type AuditEvent = audit.Event

// AuditSink receives audit events from the manager's background dispatcher.
type AuditSink = audit.Sink

// NoOpSink discards events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers events in a channel, mostly useful in tests.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes newline-delimited JSON.
type JSONWriterSink = audit.JSONWriterSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}
