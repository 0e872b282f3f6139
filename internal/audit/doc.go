// Package audit delivers session lifecycle events to a caller-supplied sink.
//
// The [Dispatcher] decouples emitters (renewals, logins, logouts) from sink latency with a
// bounded buffer. When DropIfFull is set a full buffer drops the event and counts it;
// otherwise Emit blocks until there is room or the context ends.
//
// Which events exist is decided by the root package. This package must not import it.
package audit
