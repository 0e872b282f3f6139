package wsauth

import (
	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/session"
)

// State is the connection's auth state.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthPending
	StateAuthenticated
	StateAuthFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthPending:
		return "auth_pending"
	case StateAuthenticated:
		return "authenticated"
	case StateAuthFailed:
		return "auth_failed"
	}
	return "unknown"
}

// open reports whether frames can be sent in s.
func (s State) open() bool {
	return s == StateConnected || s == StateAuthPending || s == StateAuthenticated || s == StateAuthFailed
}

// Machine is the pure state of one channel. The zero value is Disconnected with no
// outstanding attempt.
type Machine struct {
	State   State
	Pending uint64
}

// Event is an input to Step.
type Event interface{ isEvent() }

type (
	ConnectRequested struct{}
	DialSucceeded    struct{}
	DialFailed       struct{ Err error }
	TransportClosed  struct{ Err error }

	// LoginRequested submits any client auth frame as attempt Attempt.
	LoginRequested struct {
		Attempt  uint64
		Envelope Envelope
	}
	TimedOut  struct{ Attempt uint64 }
	Cancelled struct{}
	// Abandoned settles Attempt after its caller stopped waiting.
	Abandoned struct {
		Attempt uint64
		Err     error
	}

	AuthSucceeded struct {
		User      authapi.User
		Pair      session.Pair
		SessionID string
	}
	AuthFailed struct {
		Event   string
		Message string
	}
	MFARequired   struct{ Challenge session.MFAChallenge }
	MFASetupReady struct{ Setup MFASetup }
	MFAEnableDone struct{ Enabled MFAEnabled }
	LoggedOut     struct{}
)

func (ConnectRequested) isEvent() {}
func (DialSucceeded) isEvent()    {}
func (DialFailed) isEvent()       {}
func (TransportClosed) isEvent()  {}
func (LoginRequested) isEvent()   {}
func (TimedOut) isEvent()         {}
func (Cancelled) isEvent()        {}
func (Abandoned) isEvent()        {}
func (AuthSucceeded) isEvent()    {}
func (AuthFailed) isEvent()       {}
func (MFARequired) isEvent()      {}
func (MFASetupReady) isEvent()    {}
func (MFAEnableDone) isEvent()    {}
func (LoggedOut) isEvent()        {}

// Effect is a side effect Step asks the driver to perform, in order.
type Effect interface{ isEffect() }

// Outcome is what a resolved attempt returns to its caller.
type Outcome struct {
	Authenticated bool
	User          *authapi.User
	SessionID     string
	Challenge     *session.MFAChallenge
	Setup         *MFASetup
	Enabled       *MFAEnabled
	LoggedOut     bool
}

type (
	Dial          struct{}
	Send          struct{ Envelope Envelope }
	StartTimer    struct{ Attempt uint64 }
	StopTimer     struct{ Attempt uint64 }
	SetTokens     struct{ Pair session.Pair }
	ClearTokens   struct{}
	SetChallenge  struct{ Challenge session.MFAChallenge }
	ConnectFailed struct{ Err error }
	Connected     struct{}
)

// Resolve completes attempt Attempt successfully.
type Resolve struct {
	Attempt uint64
	Outcome Outcome
}

// Reject completes attempt Attempt with Err.
type Reject struct {
	Attempt uint64
	Err     error
}

func (Dial) isEffect()          {}
func (Send) isEffect()          {}
func (StartTimer) isEffect()    {}
func (StopTimer) isEffect()     {}
func (Resolve) isEffect()       {}
func (Reject) isEffect()        {}
func (SetTokens) isEffect()     {}
func (ClearTokens) isEffect()   {}
func (SetChallenge) isEffect()  {}
func (ConnectFailed) isEffect() {}
func (Connected) isEffect()     {}

// Step returns the next machine and the effects to perform. It never blocks and never
// touches I/O.
func Step(m Machine, ev Event) (Machine, []Effect) {
	switch e := ev.(type) {
	case ConnectRequested:
		if m.State != StateDisconnected {
			if m.State.open() {
				return m, []Effect{Connected{}}
			}
			return m, nil
		}
		m.State = StateConnecting
		return m, []Effect{Dial{}}

	case DialSucceeded:
		if m.State != StateConnecting {
			return m, nil
		}
		m.State = StateConnected
		return m, []Effect{Connected{}}

	case DialFailed:
		if m.State != StateConnecting {
			return m, nil
		}
		m.State = StateDisconnected
		return m, []Effect{ConnectFailed{Err: e.Err}}

	case TransportClosed:
		var effects []Effect
		if m.State == StateConnecting {
			effects = append(effects, ConnectFailed{Err: ErrDisconnected})
		}
		m.State = StateDisconnected
		return settle(m, effects, Reject{Err: ErrDisconnected})

	case LoginRequested:
		if !m.State.open() {
			return m, []Effect{Reject{Attempt: e.Attempt, Err: ErrNotConnected}}
		}
		if m.Pending != 0 {
			return m, []Effect{Reject{Attempt: e.Attempt, Err: ErrAuthInProgress}}
		}
		m.State = StateAuthPending
		m.Pending = e.Attempt
		return m, []Effect{Send{Envelope: e.Envelope}, StartTimer{Attempt: e.Attempt}}

	case TimedOut:
		if m.Pending == 0 || e.Attempt != m.Pending {
			return m, nil
		}
		m.State = StateAuthFailed
		return settle(m, nil, Reject{Err: ErrAuthTimeout})

	case Cancelled:
		if m.Pending == 0 {
			return m, nil
		}
		m.State = StateConnected
		return settle(m, nil, Reject{Err: session.ErrCancelled})

	case Abandoned:
		if m.Pending == 0 || e.Attempt != m.Pending {
			return m, nil
		}
		m.State = StateConnected
		return settle(m, nil, Reject{Err: e.Err})

	case AuthSucceeded:
		if m.Pending == 0 {
			return m, nil
		}
		if !e.Pair.Complete() {
			m.State = StateAuthFailed
			return settle(m, nil, Reject{Err: &ServerError{Event: EventSuccess, Message: "token pair missing"}})
		}
		m.State = StateAuthenticated
		user := e.User
		return settle(m, []Effect{SetTokens{Pair: e.Pair}}, Resolve{Outcome: Outcome{
			Authenticated: true,
			User:          &user,
			SessionID:     e.SessionID,
		}})

	case AuthFailed:
		if m.Pending == 0 {
			return m, nil
		}
		m.State = StateAuthFailed
		return settle(m, nil, Reject{Err: &ServerError{Event: e.Event, Message: e.Message}})

	case MFARequired:
		if m.Pending == 0 {
			return m, nil
		}
		m.State = StateConnected
		challenge := e.Challenge
		return settle(m, []Effect{SetChallenge{Challenge: challenge}}, Resolve{Outcome: Outcome{Challenge: &challenge}})

	case MFASetupReady:
		if m.Pending == 0 {
			return m, nil
		}
		m.State = StateConnected
		setup := e.Setup
		return settle(m, nil, Resolve{Outcome: Outcome{Setup: &setup}})

	case MFAEnableDone:
		if m.Pending == 0 {
			return m, nil
		}
		m.State = StateConnected
		enabled := e.Enabled
		return settle(m, nil, Resolve{Outcome: Outcome{Enabled: &enabled}})

	case LoggedOut:
		if m.State.open() {
			m.State = StateConnected
		}
		if m.Pending == 0 {
			return m, []Effect{ClearTokens{}}
		}
		return settle(m, []Effect{ClearTokens{}}, Resolve{Outcome: Outcome{LoggedOut: true}})
	}
	return m, nil
}

// settle finishes the pending attempt, if any, with final: the timer is stopped, pre runs,
// then the attempt is resolved or rejected.
func settle(m Machine, pre []Effect, final Effect) (Machine, []Effect) {
	if m.Pending == 0 {
		return m, pre
	}
	attempt := m.Pending
	m.Pending = 0

	effects := append([]Effect{StopTimer{Attempt: attempt}}, pre...)
	switch f := final.(type) {
	case Resolve:
		f.Attempt = attempt
		effects = append(effects, f)
	case Reject:
		f.Attempt = attempt
		effects = append(effects, f)
	}
	return m, effects
}
