package flows

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/goSession/session"
)

func TestRunLogoutClearsEvenWhenServerFails(t *testing.T) {
	var order []string
	serverErr := errors.New("connection refused")

	res, err := RunLogout(context.Background(), LogoutDeps{
		Snapshot: func() session.Session {
			return session.Session{AccessToken: "a1", RefreshToken: "r1"}
		},
		ServerLogout: func(_ context.Context, p session.Pair) error {
			if p.AccessToken != "a1" || p.RefreshToken != "r1" {
				t.Errorf("unexpected pair %+v", p)
			}
			order = append(order, "server")
			return serverErr
		},
		CancelPending: func() { order = append(order, "cancel") },
		Clear: func(context.Context) error {
			order = append(order, "clear")
			return nil
		},
	})
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if !res.HadSession || !errors.Is(res.ServerErr, serverErr) {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(order) != 3 || order[0] != "server" || order[2] != "clear" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestRunLogoutWithoutSessionSkipsServer(t *testing.T) {
	var cleared bool
	res, err := RunLogout(context.Background(), LogoutDeps{
		Snapshot: func() session.Session { return session.Session{} },
		ServerLogout: func(context.Context, session.Pair) error {
			t.Error("server logout must not run without a session")
			return nil
		},
		Clear: func(context.Context) error { cleared = true; return nil },
	})
	if err != nil || res.HadSession || !cleared {
		t.Fatalf("unexpected result %+v err=%v cleared=%v", res, err, cleared)
	}
}
