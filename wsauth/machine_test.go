package wsauth

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/goSession/session"
)

func connected() Machine {
	m, _ := Step(Machine{}, ConnectRequested{})
	m, _ = Step(m, DialSucceeded{})
	return m
}

func pending(attempt uint64) Machine {
	m, _ := Step(connected(), LoginRequested{Attempt: attempt, Envelope: Envelope{Event: EventLogin}})
	return m
}

func TestStepConnectLifecycle(t *testing.T) {
	m, effects := Step(Machine{}, ConnectRequested{})
	if m.State != StateConnecting || len(effects) != 1 {
		t.Fatalf("expected Connecting with Dial, got %v %v", m.State, effects)
	}
	if _, ok := effects[0].(Dial); !ok {
		t.Fatalf("expected Dial, got %T", effects[0])
	}

	m, effects = Step(m, DialSucceeded{})
	if m.State != StateConnected {
		t.Fatalf("expected Connected, got %v", m.State)
	}
	if _, ok := effects[0].(Connected); !ok {
		t.Fatalf("expected Connected effect, got %T", effects[0])
	}

	if _, effects = Step(m, ConnectRequested{}); len(effects) != 1 {
		t.Fatalf("connect while open must acknowledge immediately, got %v", effects)
	}

	failed, effects := Step(Machine{State: StateConnecting}, DialFailed{Err: errors.New("refused")})
	if failed.State != StateDisconnected {
		t.Fatalf("expected Disconnected after dial failure, got %v", failed.State)
	}
	if _, ok := effects[0].(ConnectFailed); !ok {
		t.Fatalf("expected ConnectFailed, got %T", effects[0])
	}
}

func TestStepLoginRequiresConnection(t *testing.T) {
	m, effects := Step(Machine{}, LoginRequested{Attempt: 1})
	if m.State != StateDisconnected || m.Pending != 0 {
		t.Fatalf("unexpected machine %+v", m)
	}
	rej, ok := effects[0].(Reject)
	if !ok || rej.Attempt != 1 || !errors.Is(rej.Err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected rejection, got %+v", effects)
	}
}

func TestStepSingleOutstandingAttempt(t *testing.T) {
	m := pending(1)
	if m.State != StateAuthPending || m.Pending != 1 {
		t.Fatalf("expected AuthPending(1), got %+v", m)
	}

	next, effects := Step(m, LoginRequested{Attempt: 2})
	if next != m {
		t.Fatalf("second submission must not change the machine: %+v", next)
	}
	rej, ok := effects[0].(Reject)
	if !ok || rej.Attempt != 2 || !errors.Is(rej.Err, ErrAuthInProgress) {
		t.Fatalf("expected attempt 2 rejected as in progress, got %+v", effects)
	}
}

func TestStepAuthSucceeded(t *testing.T) {
	pair := session.Pair{AccessToken: "a", RefreshToken: "r"}
	m, effects := Step(pending(3), AuthSucceeded{Pair: pair, SessionID: "s1"})
	if m.State != StateAuthenticated || m.Pending != 0 {
		t.Fatalf("expected Authenticated, got %+v", m)
	}
	if len(effects) != 3 {
		t.Fatalf("expected StopTimer, SetTokens, Resolve; got %v", effects)
	}
	if stop, ok := effects[0].(StopTimer); !ok || stop.Attempt != 3 {
		t.Fatalf("expected StopTimer(3) first, got %+v", effects[0])
	}
	if set, ok := effects[1].(SetTokens); !ok || set.Pair != pair {
		t.Fatalf("expected SetTokens before resolving, got %+v", effects[1])
	}
	res, ok := effects[2].(Resolve)
	if !ok || res.Attempt != 3 || !res.Outcome.Authenticated || res.Outcome.SessionID != "s1" {
		t.Fatalf("unexpected resolve %+v", effects[2])
	}
}

func TestStepAuthSucceededWithoutTokensFails(t *testing.T) {
	m, effects := Step(pending(1), AuthSucceeded{Pair: session.Pair{AccessToken: "a"}})
	if m.State != StateAuthFailed {
		t.Fatalf("expected AuthFailed, got %v", m.State)
	}
	for _, eff := range effects {
		if _, ok := eff.(SetTokens); ok {
			t.Fatal("half pair must never reach the store")
		}
	}
}

func TestStepServerRejection(t *testing.T) {
	for _, event := range []string{EventError, EventMFAError} {
		m, effects := Step(pending(1), AuthFailed{Event: event, Message: "Invalid credentials"})
		if m.State != StateAuthFailed {
			t.Fatalf("%s: expected AuthFailed, got %v", event, m.State)
		}
		rej := effects[len(effects)-1].(Reject)
		var serverErr *ServerError
		if !errors.As(rej.Err, &serverErr) || serverErr.Message != "Invalid credentials" || !errors.Is(rej.Err, ErrRejected) {
			t.Fatalf("%s: unexpected rejection %v", event, rej.Err)
		}
	}
}

func TestStepMFARequiredResolvesChallenge(t *testing.T) {
	challenge := session.MFAChallenge{Required: true, Kind: session.ChallengeTokenRequired, CorrelationID: "c1"}
	m, effects := Step(pending(1), MFARequired{Challenge: challenge})
	if m.State != StateConnected || m.Pending != 0 {
		t.Fatalf("MFA challenge must return to Connected, got %+v", m)
	}
	if set, ok := effects[1].(SetChallenge); !ok || set.Challenge != challenge {
		t.Fatalf("expected SetChallenge, got %+v", effects[1])
	}
	res := effects[2].(Resolve)
	if res.Outcome.Challenge == nil || res.Outcome.Challenge.Kind != session.ChallengeTokenRequired {
		t.Fatalf("unexpected outcome %+v", res.Outcome)
	}
}

func TestStepTimeout(t *testing.T) {
	m := pending(5)

	if stale, effects := Step(m, TimedOut{Attempt: 4}); stale != m || effects != nil {
		t.Fatalf("stale timeout must be ignored, got %+v %v", stale, effects)
	}

	m, effects := Step(m, TimedOut{Attempt: 5})
	if m.State != StateAuthFailed || m.Pending != 0 {
		t.Fatalf("expected AuthFailed, got %+v", m)
	}
	for _, eff := range effects {
		switch eff.(type) {
		case SetTokens, ClearTokens:
			t.Fatalf("timeout must not touch the store, got %T", eff)
		}
	}
	rej := effects[len(effects)-1].(Reject)
	if rej.Attempt != 5 || !errors.Is(rej.Err, ErrAuthTimeout) {
		t.Fatalf("expected ErrAuthTimeout, got %+v", rej)
	}

	if _, effects := Step(m, AuthSucceeded{Pair: session.Pair{AccessToken: "a", RefreshToken: "r"}}); effects != nil {
		t.Fatalf("a late success after timeout must be ignored, got %v", effects)
	}
}

func TestStepCancelled(t *testing.T) {
	m, effects := Step(pending(2), Cancelled{})
	if m.State != StateConnected || m.Pending != 0 {
		t.Fatalf("expected Connected, got %+v", m)
	}
	rej := effects[len(effects)-1].(Reject)
	if !errors.Is(rej.Err, session.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", rej.Err)
	}

	if _, effects := Step(connected(), Cancelled{}); effects != nil {
		t.Fatalf("cancel without a pending attempt is a no-op, got %v", effects)
	}
}

func TestStepAbandoned(t *testing.T) {
	m, effects := Step(pending(4), Abandoned{Attempt: 3, Err: context.Canceled})
	if m.Pending != 4 || effects != nil {
		t.Fatalf("abandoning a stale attempt must be a no-op, got %+v %v", m, effects)
	}

	m, effects = Step(pending(4), Abandoned{Attempt: 4, Err: context.Canceled})
	if m.State != StateConnected || m.Pending != 0 {
		t.Fatalf("expected Connected, got %+v", m)
	}
	if stop, ok := effects[0].(StopTimer); !ok || stop.Attempt != 4 {
		t.Fatalf("expected timer stop first, got %v", effects)
	}
	rej := effects[len(effects)-1].(Reject)
	if rej.Attempt != 4 || !errors.Is(rej.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %+v", rej)
	}

	if _, effects := Step(m, LoginRequested{Attempt: 5}); len(effects) == 0 {
		t.Fatal("expected a new attempt to be accepted")
	} else if _, ok := effects[0].(Send); !ok {
		t.Fatalf("expected Send, got %v", effects)
	}
}

func TestStepTransportClosed(t *testing.T) {
	m, effects := Step(pending(1), TransportClosed{})
	if m.State != StateDisconnected || m.Pending != 0 {
		t.Fatalf("expected Disconnected, got %+v", m)
	}
	rej := effects[len(effects)-1].(Reject)
	if !errors.Is(rej.Err, ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", rej.Err)
	}
}

func TestStepLoggedOutClearsTokens(t *testing.T) {
	m, effects := Step(Machine{State: StateAuthenticated}, LoggedOut{})
	if m.State != StateConnected {
		t.Fatalf("expected Connected, got %v", m.State)
	}
	if _, ok := effects[0].(ClearTokens); !ok || len(effects) != 1 {
		t.Fatalf("expected ClearTokens, got %v", effects)
	}

	_, effects = Step(pending(9), LoggedOut{})
	res := effects[len(effects)-1].(Resolve)
	if res.Attempt != 9 || !res.Outcome.LoggedOut {
		t.Fatalf("expected logout resolve, got %+v", res)
	}
}

func TestStateString(t *testing.T) {
	if StateAuthPending.String() != "auth_pending" || State(99).String() != "unknown" {
		t.Fatal("unexpected state names")
	}
}
