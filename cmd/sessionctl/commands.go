package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/wsauth"
)

// manager builds a manager from the CLI config. A non-nil sink turns auditing on.
func (a *app) manager(websocket bool, sink goSession.AuditSink) (*goSession.Manager, func(), error) {
	cfg := a.cfg.Session(websocket)
	if sink == nil && a.cfg.Audit {
		sink = goSession.NewJSONWriterSink(os.Stderr)
	}
	if sink != nil {
		cfg.Audit.Enabled = true
	}

	b := goSession.New().WithConfig(cfg).WithLogger(a.logger)
	if sink != nil {
		b = b.WithAuditSink(sink)
	}
	var rdb *redis.Client
	if cfg.Persistence.Backend == goSession.PersistRedis {
		rdb = redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
		b = b.WithRedis(rdb)
	}

	m, err := b.Build()
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, nil, err
	}
	for _, w := range cfg.Lint().BySeverity(goSession.LintHigh) {
		a.logger.Warn("sessionctl.config.lint", "code", w.Code, "msg", w.Message)
	}
	return m, func() {
		_ = m.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
	}, nil
}

// restore loads the persisted session or reports that nobody is signed in.
func restore(ctx context.Context, m *goSession.Manager) error {
	ok, err := m.Restore(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return goSession.ErrNotAuthenticated
	}
	return nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type sessionView struct {
	Status      string             `json:"status"`
	User        any                `json:"user,omitempty"`
	SessionID   string             `json:"sessionId,omitempty"`
	ExpiresAt   *time.Time         `json:"expiresAt,omitempty"`
	RenewAt     *time.Time         `json:"renewAt,omitempty"`
	Challenge   *challengeView     `json:"challenge,omitempty"`
	Setup       *wsauth.MFASetup   `json:"setup,omitempty"`
	Enabled     *wsauth.MFAEnabled `json:"enabled,omitempty"`
	Persistence string             `json:"persistenceError,omitempty"`
}

type challengeView struct {
	Kind          session.MFAChallengeKind `json:"kind"`
	Method        session.MFAMethod        `json:"method,omitempty"`
	CorrelationID string                   `json:"correlationId"`
	Message       string                   `json:"message,omitempty"`
}

func (a *app) view(m *goSession.Manager, status string) sessionView {
	v := sessionView{Status: status}
	cur := m.Session()
	if exp := cur.ExpiresAt(); !exp.IsZero() {
		v.ExpiresAt = &exp
	}
	if at, ok := m.NextRenewal(); ok {
		v.RenewAt = &at
	}
	if c := cur.MFAChallenge; c != nil {
		v.Challenge = &challengeView{
			Kind:          c.Kind,
			Method:        c.Method,
			CorrelationID: c.CorrelationID,
			Message:       c.Message,
		}
	}
	return v
}

func (a *app) printLogin(m *goSession.Manager, res *goSession.LoginResult, err error) error {
	if res == nil {
		return err
	}
	status := "established"
	if !res.Established {
		status = "mfa_required"
	}
	v := a.view(m, status)
	if res.User != nil {
		v.User = res.User
	}
	v.SessionID = res.SessionID
	if err != nil {
		// The session is live in memory but did not reach the store.
		v.Persistence = err.Error()
	}
	return a.print(v)
}

func credentialFlags(fs *flag.FlagSet, cfg *Config) (email, password *string) {
	email = fs.String("email", cfg.Email, "account email (SESSIONCTL_EMAIL)")
	password = fs.String("password", cfg.Password, "account password (SESSIONCTL_PASSWORD)")
	return email, password
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email, password := credentialFlags(fs, a.cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, done, err := a.manager(false, nil)
	if err != nil {
		return err
	}
	defer done()

	res, err := m.Login(ctx, *email, *password)
	return a.printLogin(m, res, err)
}

func cmdMFA(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("mfa", flag.ContinueOnError)
	email, password := credentialFlags(fs, a.cfg)
	code := fs.String("code", "", "six-digit TOTP code or a backup code")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, done, err := a.manager(false, nil)
	if err != nil {
		return err
	}
	defer done()

	res, err := m.SubmitMFA(ctx, *email, *password, *code)
	return a.printLogin(m, res, err)
}

func cmdMe(ctx context.Context, a *app, _ []string) error {
	m, done, err := a.manager(false, nil)
	if err != nil {
		return err
	}
	defer done()

	if err := restore(ctx, m); err != nil {
		return err
	}
	user, err := m.Me(ctx)
	if err != nil {
		return err
	}
	v := a.view(m, "established")
	v.User = user
	return a.print(v)
}

func cmdRenew(ctx context.Context, a *app, _ []string) error {
	m, done, err := a.manager(false, nil)
	if err != nil {
		return err
	}
	defer done()

	if err := restore(ctx, m); err != nil {
		return err
	}
	if _, err := m.Renew(ctx); err != nil {
		return err
	}
	return a.print(a.view(m, "renewed"))
}

func cmdLogout(ctx context.Context, a *app, _ []string) error {
	m, done, err := a.manager(false, nil)
	if err != nil {
		return err
	}
	defer done()

	if _, err := m.Restore(ctx); err != nil {
		a.logger.Warn("sessionctl.restore.fail", "err", err)
	}
	if err := m.Logout(ctx); err != nil {
		return err
	}
	return a.print(sessionView{Status: "logged_out"})
}

func cmdWatch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	metricsAddr := fs.String("metrics-addr", a.cfg.MetricsAddr, "serve Prometheus metrics on this address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sink := goSession.NewChannelSink(64)
	m, done, err := a.manager(false, sink)
	if err != nil {
		return err
	}
	defer done()

	if err := restore(ctx, m); err != nil {
		return err
	}
	m.OnExpiringSoon(func(s session.Session) {
		a.logger.Info("session.expiring_soon", "expires_at", s.ExpiresAt())
	})

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", prometheus.NewPrometheusExporter(m).Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("sessionctl.metrics.fail", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if at, ok := m.NextRenewal(); ok {
		a.logger.Info("session.watch.start", "renew_at", at)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-sink.Events():
			switch ev.EventType {
			case goSession.AuditSessionRenewed:
				at, _ := m.NextRenewal()
				a.logger.Info("session.renewed", "expires_at", m.Session().ExpiresAt(), "renew_at", at)
			case goSession.AuditRenewalFailed:
				a.logger.Warn("session.renew.fail", "err", ev.Error)
			case goSession.AuditSessionCleared:
				return goSession.ErrRenewalFailed
			}
		}
	}
}

func cmdWSLogin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("ws-login", flag.ContinueOnError)
	email, password := credentialFlags(fs, a.cfg)
	code := fs.String("code", "", "MFA code to submit when the server asks for one")
	setup := fs.Bool("setup", false, "request MFA enrolment instead of signing in")
	enable := fs.String("enable", "", "confirm MFA enrolment with this TOTP code")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, done, err := a.manager(true, nil)
	if err != nil {
		return err
	}
	defer done()

	ch := m.WebSocket()
	if err := ch.Connect(ctx); err != nil {
		return err
	}

	var out wsauth.Outcome
	switch {
	case *setup:
		out, err = ch.SetupMFA(ctx, *email, *password)
	case *enable != "":
		out, err = ch.EnableMFA(ctx, *email, *password, *enable)
	default:
		out, err = ch.Login(ctx, *email, *password)
		if err == nil && out.Challenge != nil && *code != "" {
			out, err = ch.SubmitMFA(ctx, *email, *password, *code)
		}
	}
	if err != nil {
		return err
	}

	status := "established"
	switch {
	case out.Setup != nil:
		status = "mfa_setup"
	case out.Enabled != nil:
		status = "mfa_enabled"
	case out.Challenge != nil:
		status = "mfa_required"
	}
	v := a.view(m, status)
	if out.User != nil {
		v.User = out.User
	}
	v.SessionID = out.SessionID
	v.Setup = out.Setup
	v.Enabled = out.Enabled
	return a.print(v)
}

func cmdLint(_ context.Context, a *app, _ []string) error {
	cfg := a.cfg.Session(true)
	if err := cfg.Validate(); err != nil {
		return err
	}
	type warning struct {
		Code     string `json:"code"`
		Severity string `json:"severity"`
		Message  string `json:"message"`
	}
	ws := cfg.Lint()
	out := make([]warning, 0, len(ws))
	for _, w := range ws {
		out = append(out, warning{Code: w.Code, Severity: w.Severity.String(), Message: w.Message})
	}
	return a.print(out)
}
