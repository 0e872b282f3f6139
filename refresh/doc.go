// Package refresh renews a session's token pair.
//
// # Single flight
//
// Every caller of [Executor.Renew] that arrives while a renewal is in flight waits for that
// renewal and receives its outcome; only one request reaches the refresh endpoint. A caller
// whose context is cancelled stops waiting, but the shared renewal runs to completion for
// the others.
//
// # Fail closed
//
// A failed renewal clears the token store and returns [ErrRenewalFailed]. It is never
// retried: the refresh token may already be revoked.
//
// # What this package must NOT do
//
//   - Schedule renewals (package schedule owns the timer).
//   - Write the session other than through session.Store.
package refresh
