package goSession

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/schedule"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/wsauth"
)

// LoginResult is either an established session or an MFA challenge.
type LoginResult = flows.LoginResult

// Manager owns one portal's session: its token store, renewal schedule, single-flight
// renewal, intercepting HTTP client and optional WebSocket auth channel. Every method is
// safe for concurrent use.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	clock  schedule.Clock

	store      *session.Store
	scheduler  *schedule.Scheduler
	executor   *refresh.Executor
	api        *authapi.Client
	httpClient *http.Client
	ws         *wsauth.Channel

	metrics *Metrics
	audit   *audit.Dispatcher

	mu        sync.Mutex
	userID    string
	listeners []func(session.Session)

	closed atomic.Bool
}

// Restore loads the portal's persisted token pair and arms renewal. It reports whether a
// complete pair was found.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	if m.closed.Load() {
		return false, ErrManagerClosed
	}
	ok, err := m.store.Restore(ctx)
	if err != nil || !ok {
		return ok, err
	}
	m.emit(ctx, AuditSessionEstablished, true, nil, map[string]string{"source": "restore"})
	return true, nil
}

// Login submits credentials over HTTP. An MFA demand is returned as a result carrying a
// challenge, not as an error.
func (m *Manager) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	return m.login(ctx, flows.LoginInput{Email: email, Password: password})
}

// SubmitMFA repeats the login with an MFA code. Six digits is sent as a TOTP code, any
// other non-blank value as a backup code.
func (m *Manager) SubmitMFA(ctx context.Context, email, password, code string) (*LoginResult, error) {
	return m.login(ctx, flows.LoginInput{Email: email, Password: password, MFACode: code, MFAStep: true})
}

func (m *Manager) login(ctx context.Context, in flows.LoginInput) (*LoginResult, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	res, err := flows.RunLogin(ctx, in, flows.LoginDeps{
		PortalType:   string(m.cfg.Portal),
		VendorDomain: m.cfg.HTTP.VendorDomain,
		Login:        m.api.Login,
		SetTokens:    m.store.Set,
		SetChallenge: m.store.SetChallenge,
		NewID:        uuid.NewString,
		MetricInc:    func(id int) { m.metrics.Inc(MetricID(id)) },
		EmitAudit: func(ctx context.Context, event string, success bool, userID, correlationID string, err error) {
			m.emitEvent(ctx, audit.Event{
				EventType:     event,
				UserID:        userID,
				CorrelationID: correlationID,
				Success:       success,
				Error:         errString(err),
			})
		},
		Warn: m.logger.Warn,
		Metrics: flows.LoginMetrics{
			LoginSuccess: int(MetricLoginSuccess),
			LoginFailure: int(MetricLoginFailure),
			MFARequired:  int(MetricMFARequired),
		},
		Events: flows.LoginEvents{
			Established:  AuditSessionEstablished,
			MFAChallenge: AuditMFAChallenge,
		},
		Errors: flows.LoginErrors{
			NotReady:      ErrManagerClosed,
			EmptyMFACode:  wsauth.ErrEmptyMFACode,
			MissingTokens: ErrIncompletePair,
		},
	})
	if res != nil && res.Established && res.User != nil {
		m.mu.Lock()
		m.userID = res.User.ID
		m.mu.Unlock()
	}
	if err != nil {
		m.logger.Info("session.login.fail", "err", err)
	}
	return res, err
}

// Me fetches the signed-in user through the intercepting client.
func (m *Manager) Me(ctx context.Context) (*authapi.User, error) {
	if !m.store.Get().Established() {
		return nil, ErrNotAuthenticated
	}
	return m.api.Me(ctx)
}

// Renew exchanges the refresh token now. Concurrent calls share one request. On failure
// the session is cleared and the error wraps [ErrRenewalFailed]; with no refresh token it
// is [ErrNoRefreshToken].
func (m *Manager) Renew(ctx context.Context) (session.Session, error) {
	if m.closed.Load() {
		return session.Session{}, ErrManagerClosed
	}
	return m.executor.Renew(ctx)
}

// Token returns the current access token or "".
func (m *Manager) Token() string {
	return m.store.AccessToken()
}

// Session returns a snapshot of the current session.
func (m *Manager) Session() session.Session {
	return m.store.Get()
}

// IsExpiringSoon reports whether the access token expires within the configured window.
func (m *Manager) IsExpiringSoon() bool {
	return m.scheduler.IsExpiringSoon(m.store.Get())
}

// NextRenewal returns when the proactive renewal will fire.
func (m *Manager) NextRenewal() (time.Time, bool) {
	return m.scheduler.NextRenewal()
}

// OnExpiringSoon registers fn to run each time a proactive renewal comes due, just before
// it starts. fn runs on the timer goroutine and must not block.
func (m *Manager) OnExpiringSoon(fn func(session.Session)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Logout tells the server (best effort), rejects any pending WebSocket auth with
// [ErrCancelled] and clears local state. Only a local clear failure is returned.
func (m *Manager) Logout(ctx context.Context) error {
	res, err := flows.RunLogout(ctx, flows.LogoutDeps{
		Snapshot:     m.store.Get,
		ServerLogout: m.api.Logout,
		Clear:        m.store.Clear,
		CancelPending: func() {
			if m.ws != nil {
				m.ws.Cancel()
			}
		},
		MetricInc: func(id int) { m.metrics.Inc(MetricID(id)) },
		EmitAudit: func(ctx context.Context, event string, success bool, err error) {
			m.emit(ctx, event, success, err, nil)
		},
		Warn:         m.logger.Warn,
		LogoutMetric: int(MetricLogout),
		LogoutEvent:  AuditLogout,
	})
	if res.HadSession {
		m.logger.Info("session.logout", "server_ok", res.ServerErr == nil)
	}
	m.forgetUser()
	return err
}

// Clear drops the session locally without contacting the server.
func (m *Manager) Clear(ctx context.Context) error {
	err := m.store.Clear(ctx)
	m.emit(ctx, AuditSessionCleared, err == nil, err, map[string]string{"reason": "local"})
	m.forgetUser()
	return err
}

// HTTPClient returns the client that attaches the bearer token and renews once on 401.
func (m *Manager) HTTPClient() *http.Client {
	return m.httpClient
}

// WebSocket returns the auth channel bound to this manager's store, or nil when
// Config.WebSocket.Enabled is false.
func (m *Manager) WebSocket() *wsauth.Channel {
	return m.ws
}

// Metrics exposes the live counters, for exporters.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// Portal reports which portal this manager authenticates for.
func (m *Manager) Portal() Portal {
	return m.cfg.Portal
}

func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	return m.metrics.Snapshot()
}

func (m *Manager) AuditDropped() uint64 {
	return m.audit.Dropped()
}

// Close stops timers and the WebSocket channel and flushes audit events. The session is
// left in place; call Logout or Clear first to end it.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.scheduler.Close()
	var err error
	if m.ws != nil {
		err = m.ws.Close()
	}
	m.audit.Close()
	return err
}

/*
====================================
CALLBACKS
====================================
*/

func (m *Manager) onRenewalDue() {
	sess := m.store.Get()

	m.mu.Lock()
	listeners := append([]func(session.Session){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(sess)
	}

	if _, err := m.executor.Renew(context.Background()); err != nil {
		m.logger.Warn("session.schedule.renew.fail", "err", err)
	}
}

func (m *Manager) onRenewed(latency time.Duration) {
	m.metrics.Inc(MetricRenewSuccess)
	m.metrics.Observe(MetricRenewLatency, latency)
	m.emit(context.Background(), AuditSessionRenewed, true, nil, nil)
}

func (m *Manager) onRenewalFailed(err error) {
	m.metrics.Inc(MetricRenewFailure)
	m.emit(context.Background(), AuditRenewalFailed, false, err, nil)
	m.emit(context.Background(), AuditSessionCleared, true, nil, map[string]string{"reason": "renewal_failed"})
	m.forgetUser()
}

func (m *Manager) onUnauthorized() {
	m.metrics.Inc(MetricInterceptorUnauthorized)
	m.emit(context.Background(), AuditSessionCleared, true, nil, map[string]string{"reason": "unauthorized"})
}

func (m *Manager) onWSAuthenticated() {
	m.metrics.Inc(MetricWSAuthSuccess)
	m.emit(context.Background(), AuditSessionEstablished, true, nil, map[string]string{"source": "websocket"})
}

func (m *Manager) forgetUser() {
	m.mu.Lock()
	m.userID = ""
	m.mu.Unlock()
}

func (m *Manager) emit(ctx context.Context, event string, success bool, err error, meta map[string]string) {
	m.emitEvent(ctx, audit.Event{
		EventType: event,
		Success:   success,
		Error:     errString(err),
		Metadata:  meta,
	})
}

func (m *Manager) emitEvent(ctx context.Context, ev audit.Event) {
	if m.audit == nil {
		return
	}
	ev.Portal = string(m.cfg.Portal)
	ev.SessionVersion = m.store.Version()
	if ev.UserID == "" {
		m.mu.Lock()
		ev.UserID = m.userID
		m.mu.Unlock()
	}
	m.audit.Emit(ctx, ev)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *authapi.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
