package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/session"
)

// LoginInput is one credential submission. MFAStep marks the second step, which must carry
// a non-blank MFACode.
type LoginInput struct {
	Email    string
	Password string
	MFACode  string
	MFAStep  bool
}

// LoginResult is either an established session or an MFA challenge, never both.
type LoginResult struct {
	Established bool
	User        *authapi.User
	SessionID   string
	Challenge   *session.MFAChallenge
}

// LoginMetrics carries the metric IDs the login flow increments.
type LoginMetrics struct {
	LoginSuccess int
	LoginFailure int
	MFARequired  int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	Established  string
	MFAChallenge string
}

// LoginErrors carries host-level sentinel errors.
type LoginErrors struct {
	NotReady      error
	EmptyMFACode  error
	MissingTokens error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	PortalType   string
	VendorDomain string

	Login        func(context.Context, authapi.LoginRequest) (*authapi.LoginResult, error)
	SetTokens    func(ctx context.Context, access, refresh string) error
	SetChallenge func(*session.MFAChallenge)
	NewID        func() string

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID, correlationID string, err error)
	Warn      func(string, ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin submits credentials and records the outcome on the token store. An MFA demand
// from the server is not an error: it yields a result carrying the challenge.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) (*LoginResult, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.Login == nil || deps.SetTokens == nil || deps.SetChallenge == nil || deps.NewID == nil {
		return nil, deps.Errors.NotReady
	}

	req := authapi.LoginRequest{
		Email:        strings.TrimSpace(in.Email),
		Password:     in.Password,
		PortalType:   deps.PortalType,
		VendorDomain: deps.VendorDomain,
	}
	if in.MFAStep || in.MFACode != "" {
		method, ok := session.ClassifyMFACode(in.MFACode)
		if !ok {
			return nil, deps.Errors.EmptyMFACode
		}
		req.MFAToken = in.MFACode
		req.MFAMethod = string(method)
	}

	res, err := deps.Login(ctx, req)
	if err != nil {
		var apiErr *authapi.Error
		if errors.As(err, &apiErr) && apiErr.MFARequired() {
			challenge := challengeFrom(apiErr, deps.NewID())
			deps.SetChallenge(challenge)
			deps.MetricInc(deps.Metrics.MFARequired)
			deps.EmitAudit(ctx, deps.Events.MFAChallenge, true, "", challenge.CorrelationID, nil)
			return &LoginResult{Challenge: challenge}, nil
		}
		deps.MetricInc(deps.Metrics.LoginFailure)
		return nil, err
	}

	pair := res.Tokens.Pair()
	if !pair.Complete() {
		deps.MetricInc(deps.Metrics.LoginFailure)
		return nil, deps.Errors.MissingTokens
	}

	out := &LoginResult{Established: true, User: &res.User}
	if res.Session != nil {
		out.SessionID = res.Session.ID
	}

	// The in-memory session is authoritative even when persisting it failed.
	setErr := deps.SetTokens(ctx, pair.AccessToken, pair.RefreshToken)
	if setErr != nil {
		deps.Warn("session.login.persist.fail", "err", setErr)
	}
	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.Established, true, res.User.ID, "", nil)
	return out, setErr
}

func challengeFrom(apiErr *authapi.Error, correlationID string) *session.MFAChallenge {
	c := &session.MFAChallenge{
		Required:      true,
		CorrelationID: correlationID,
		Message:       apiErr.Message,
		Method:        session.MFAMethodTOTP,
	}
	switch {
	case apiErr.RequiresMFASetup:
		c.Kind = session.ChallengeSetupRequired
	case apiErr.RequiresMFACompletion:
		c.Kind = session.ChallengeCompletionRequired
	default:
		c.Kind = session.ChallengeTokenRequired
	}
	if apiErr.MFAMethod == string(session.MFAMethodBackup) {
		c.Method = session.MFAMethodBackup
	}
	return c
}
