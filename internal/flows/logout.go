package flows

import (
	"context"

	"github.com/MrEthical07/goSession/session"
)

// LogoutDeps captures logout dependencies. Only Snapshot and Clear are required.
type LogoutDeps struct {
	Snapshot     func() session.Session
	ServerLogout func(context.Context, session.Pair) error
	Clear        func(context.Context) error
	// CancelPending rejects outstanding WebSocket auth attempts.
	CancelPending func()

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, err error)
	Warn      func(string, ...any)

	LogoutMetric int
	LogoutEvent  string
}

// LogoutResult reports what happened beyond the local clear, which always runs.
type LogoutResult struct {
	HadSession bool
	ServerErr  error
}

// RunLogout tells the server about the logout when there is a session, then clears local
// state regardless of the server's answer. Only a failure to clear local state is returned.
func RunLogout(ctx context.Context, deps LogoutDeps) (LogoutResult, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, error) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}

	var res LogoutResult
	sess := deps.Snapshot()
	res.HadSession = sess.Established()

	if res.HadSession && deps.ServerLogout != nil {
		if err := deps.ServerLogout(ctx, sess.Pair()); err != nil {
			res.ServerErr = err
			deps.Warn("session.logout.server.fail", "err", err)
		}
	}

	if deps.CancelPending != nil {
		deps.CancelPending()
	}
	err := deps.Clear(ctx)

	deps.MetricInc(deps.LogoutMetric)
	deps.EmitAudit(ctx, deps.LogoutEvent, err == nil, err)
	return res, err
}
