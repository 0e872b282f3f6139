// Package wsauth is the WebSocket path for login and MFA submission.
//
// [Step] is a pure transition function over [Machine]: it takes a tagged [Event] and
// returns the next machine plus the [Effect]s to perform. [Channel] drives it from a
// single goroutine, performing effects (dial, send, timers, token store writes) and
// turning socket frames and timer fires back into events.
//
// Only one auth attempt may be outstanding. It is settled by the server's reply, by the
// auth timeout (ErrAuthTimeout, store untouched), by Cancel (session.ErrCancelled) or by
// the transport closing (ErrDisconnected).
//
// Frames are JSON text messages {"event": "...", "data": {...}} carrying the auth:* events
// of the portal API.
package wsauth
