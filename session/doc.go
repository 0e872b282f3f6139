// Package session holds the client-side token pair of one portal user and persists it to
// a durable key-value slot.
//
// # Store
//
// [Store] is the only writer of the shared [Session]. [Store.Set] and [Store.Clear] are
// atomic with respect to [Store.Get]; the change callback registered with
// [Store.OnChange] runs inside the same critical section, so no reader observes an access
// token whose renewal schedule has not been updated yet.
//
// # Persistence
//
// A [Persister] is any durable slot that can hold one token pair: [MemoryPersister],
// [RedisPersister] (two keys written in one MULTI), or [FilePersister] (afero file holding
// the versioned blob produced by [Encode]).
//
// # What this package must NOT do
//
//   - Perform network calls other than through a Persister.
//   - Schedule timers or renew tokens (see schedule and refresh).
//   - Import goSession (no upward imports).
package session
