package wsauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrEthical07/goSession/schedule"
	"github.com/MrEthical07/goSession/session"
)

const (
	DefaultAuthTimeout  = 10 * time.Second
	DefaultDialAttempts = 3
	DefaultDialDelay    = 250 * time.Millisecond
	DefaultDialTimeout  = 5 * time.Second
	DefaultWriteTimeout = 5 * time.Second

	maxFrameBytes = 1 << 20
)

// Options configures a Channel.
type Options struct {
	URL        string
	Header     http.Header
	HTTPClient *http.Client
	PortalType string

	AuthTimeout  time.Duration
	DialAttempts uint
	DialDelay    time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration

	Clock  schedule.Clock
	Logger *slog.Logger

	OnAuthSuccess func()
	OnAuthFailure func(err error)
	OnTimeout     func()
	OnCancelled   func()
}

type result struct {
	outcome Outcome
	err     error
}

type (
	connectMsg struct{ reply chan error }
	submitMsg  struct {
		req   LoginRequested
		reply chan result
	}
	dialResult struct {
		conn *websocket.Conn
		err  error
	}
	frameMsg struct {
		gen uint64
		env Envelope
	}
	closedMsg struct {
		gen uint64
		err error
	}
)

// Channel runs the auth state machine for one WebSocket connection. All state is owned
// by a single loop goroutine; public methods talk to it by message.
type Channel struct {
	opts  Options
	store *session.Store

	inbox    chan any
	done     chan struct{}
	loopDone chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once

	state    atomic.Uint32
	attempts atomic.Uint64

	// loop-owned
	m          Machine
	conn       *websocket.Conn
	connGen    uint64
	connCancel context.CancelFunc
	waiters    map[uint64]chan result
	connecting []chan error
	timers     map[uint64]schedule.Timer
	deferred   []Event
}

// NewChannel starts the channel's loop. Authenticated token pairs are written to store.
func NewChannel(store *session.Store, opts Options) (*Channel, error) {
	if store == nil {
		return nil, errors.New("token store required")
	}
	if opts.URL == "" {
		return nil, errors.New("websocket url required")
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = DefaultAuthTimeout
	}
	if opts.DialAttempts == 0 {
		opts.DialAttempts = DefaultDialAttempts
	}
	if opts.DialDelay <= 0 {
		opts.DialDelay = DefaultDialDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Clock == nil {
		opts.Clock = schedule.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		opts:     opts,
		store:    store,
		inbox:    make(chan any),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		waiters:  make(map[uint64]chan result),
		timers:   make(map[uint64]schedule.Timer),
	}
	go c.loop()
	return c, nil
}

// State returns the current machine state.
func (c *Channel) State() State {
	return State(c.state.Load())
}

// Connect dials the server if the channel is disconnected and waits until it is up.
func (c *Channel) Connect(ctx context.Context) error {
	reply := make(chan error, 1)
	if !c.post(connectMsg{reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// Login submits credentials. The outcome is either an authenticated session (tokens are
// already in the store) or an MFA challenge.
func (c *Channel) Login(ctx context.Context, email, password string) (Outcome, error) {
	return c.submit(ctx, EventLogin, LoginPayload{Email: email, Password: password, PortalType: c.opts.PortalType})
}

// SubmitMFA submits an MFA code. Six digits are sent as a TOTP code, anything else as a
// backup code.
func (c *Channel) SubmitMFA(ctx context.Context, email, password, code string) (Outcome, error) {
	method, ok := session.ClassifyMFACode(code)
	if !ok {
		return Outcome{}, ErrEmptyMFACode
	}
	return c.submit(ctx, EventMFAToken, MFATokenPayload{
		Email:      email,
		Password:   password,
		MFAToken:   code,
		MFAMethod:  string(method),
		PortalType: c.opts.PortalType,
	})
}

// SetupMFA asks the server to provision a TOTP secret and backup codes.
func (c *Channel) SetupMFA(ctx context.Context, email, password string) (Outcome, error) {
	return c.submit(ctx, EventMFASetup, MFASetupPayload{Email: email, Password: password})
}

// EnableMFA confirms setup with a TOTP code.
func (c *Channel) EnableMFA(ctx context.Context, email, password, token string) (Outcome, error) {
	return c.submit(ctx, EventMFAEnable, MFAEnablePayload{Email: email, Password: password, Token: token})
}

// Logout ends the session over the socket. The store is cleared when the server confirms.
func (c *Channel) Logout(ctx context.Context) (Outcome, error) {
	cur := c.store.Get()
	return c.submit(ctx, EventLogout, LogoutPayload{AccessToken: cur.AccessToken, RefreshToken: cur.RefreshToken})
}

// Cancel rejects the outstanding attempt, if any, with session.ErrCancelled.
func (c *Channel) Cancel() {
	c.post(Cancelled{})
}

// Close rejects outstanding work with ErrClosed, closes the connection and stops the loop.
func (c *Channel) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.cancel()
	})
	<-c.loopDone
	return nil
}

func (c *Channel) submit(ctx context.Context, event string, payload any) (Outcome, error) {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return Outcome{}, err
	}
	if err := c.Connect(ctx); err != nil {
		return Outcome{}, err
	}

	reply := make(chan result, 1)
	req := LoginRequested{Attempt: c.attempts.Add(1), Envelope: env}
	if !c.post(submitMsg{req: req, reply: reply}) {
		return Outcome{}, ErrClosed
	}
	select {
	case r := <-reply:
		return r.outcome, r.err
	case <-ctx.Done():
		c.post(Abandoned{Attempt: req.Attempt, Err: ctx.Err()})
		return Outcome{}, ctx.Err()
	case <-c.done:
		return Outcome{}, ErrClosed
	}
}

func (c *Channel) post(msg any) bool {
	select {
	case c.inbox <- msg:
		return true
	case <-c.done:
		return false
	}
}

func (c *Channel) loop() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.done:
			c.shutdown()
			return
		case msg := <-c.inbox:
			c.handle(msg)
		}
	}
}

func (c *Channel) handle(msg any) {
	switch msg := msg.(type) {
	case connectMsg:
		c.connecting = append(c.connecting, msg.reply)
		c.step(ConnectRequested{})

	case submitMsg:
		c.waiters[msg.req.Attempt] = msg.reply
		c.step(msg.req)

	case dialResult:
		if msg.err != nil {
			c.step(DialFailed{Err: msg.err})
			return
		}
		if c.m.State != StateConnecting {
			_ = msg.conn.CloseNow()
			return
		}
		c.attach(msg.conn)
		c.step(DialSucceeded{})

	case frameMsg:
		if msg.gen != c.connGen {
			return
		}
		ev, err := decodeServerEvent(msg.env, uuid.NewString)
		if err != nil {
			c.opts.Logger.Info("ws.auth.frame.ignored", "event", msg.env.Event, "err", err)
			return
		}
		c.step(ev)

	case closedMsg:
		if msg.gen != c.connGen || c.conn == nil {
			return
		}
		c.opts.Logger.Info("ws.auth.closed", "close_status", websocket.CloseStatus(msg.err), "err", msg.err)
		c.detach()
		c.step(TransportClosed{Err: msg.err})

	case Abandoned:
		c.step(msg)
		delete(c.waiters, msg.Attempt)

	case Event:
		c.step(msg)
	}
}

func (c *Channel) step(ev Event) {
	c.deferred = append(c.deferred, ev)
	for len(c.deferred) > 0 {
		next := c.deferred[0]
		c.deferred = c.deferred[1:]

		m, effects := Step(c.m, next)
		c.m = m
		c.state.Store(uint32(m.State))
		for _, eff := range effects {
			c.apply(eff)
		}
	}
}

func (c *Channel) apply(eff Effect) {
	switch e := eff.(type) {
	case Dial:
		go c.dial()

	case Connected:
		for _, ch := range c.connecting {
			ch <- nil
		}
		c.connecting = nil

	case ConnectFailed:
		for _, ch := range c.connecting {
			ch <- e.Err
		}
		c.connecting = nil

	case Send:
		if err := c.write(e.Envelope); err != nil {
			c.opts.Logger.Info("ws.write.fail", "event", e.Envelope.Event, "err", err)
			c.detach()
			c.deferred = append(c.deferred, TransportClosed{Err: err})
		}

	case StartTimer:
		attempt := e.Attempt
		c.timers[attempt] = c.opts.Clock.AfterFunc(c.opts.AuthTimeout, func() {
			c.post(TimedOut{Attempt: attempt})
		})

	case StopTimer:
		if t, ok := c.timers[e.Attempt]; ok {
			t.Stop()
			delete(c.timers, e.Attempt)
		}

	case SetTokens:
		if err := c.store.Set(c.ctx, e.Pair.AccessToken, e.Pair.RefreshToken); err != nil {
			c.opts.Logger.Warn("ws.auth.store.fail", "err", err)
		}

	case ClearTokens:
		if err := c.store.Clear(c.ctx); err != nil {
			c.opts.Logger.Warn("ws.auth.store.fail", "err", err)
		}

	case SetChallenge:
		challenge := e.Challenge
		c.store.SetChallenge(&challenge)

	case Resolve:
		if e.Outcome.Authenticated && c.opts.OnAuthSuccess != nil {
			c.opts.OnAuthSuccess()
		}
		c.finish(e.Attempt, result{outcome: e.Outcome})

	case Reject:
		c.observeReject(e.Err)
		c.finish(e.Attempt, result{err: e.Err})
	}
}

func (c *Channel) observeReject(err error) {
	switch {
	case errors.Is(err, ErrAuthTimeout):
		if c.opts.OnTimeout != nil {
			c.opts.OnTimeout()
		}
	case errors.Is(err, session.ErrCancelled):
		if c.opts.OnCancelled != nil {
			c.opts.OnCancelled()
		}
	case errors.Is(err, ErrRejected):
		if c.opts.OnAuthFailure != nil {
			c.opts.OnAuthFailure(err)
		}
	}
}

func (c *Channel) finish(attempt uint64, r result) {
	if ch, ok := c.waiters[attempt]; ok {
		ch <- r
		delete(c.waiters, attempt)
	}
}

func (c *Channel) dial() {
	var conn *websocket.Conn
	err := retry.Do(
		func() error {
			ctx, cancel := context.WithTimeout(c.ctx, c.opts.DialTimeout)
			defer cancel()
			cn, _, err := websocket.Dial(ctx, c.opts.URL, &websocket.DialOptions{
				HTTPClient: c.opts.HTTPClient,
				HTTPHeader: c.opts.Header,
			})
			if err != nil {
				return err
			}
			conn = cn
			return nil
		},
		retry.Context(c.ctx),
		retry.Attempts(c.opts.DialAttempts),
		retry.Delay(c.opts.DialDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.opts.Logger.Info("ws.dial.retry", "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		err = fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	if !c.post(dialResult{conn: conn, err: err}) && conn != nil {
		_ = conn.CloseNow()
	}
}

func (c *Channel) attach(conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameBytes)
	ctx, cancel := context.WithCancel(c.ctx)
	c.conn = conn
	c.connGen++
	c.connCancel = cancel
	go c.read(ctx, conn, c.connGen)
}

func (c *Channel) detach() {
	if c.conn == nil {
		return
	}
	c.connCancel()
	_ = c.conn.CloseNow()
	c.conn = nil
	c.connGen++
}

func (c *Channel) read(ctx context.Context, conn *websocket.Conn, gen uint64) {
	for {
		mt, data, err := conn.Read(ctx)
		if err != nil {
			c.post(closedMsg{gen: gen, err: err})
			return
		}
		if mt != websocket.MessageText && mt != websocket.MessageBinary {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.opts.Logger.Info("ws.read.bad_json", "err", err)
			continue
		}
		if !c.post(frameMsg{gen: gen, env: env}) {
			return
		}
	}
}

func (c *Channel) write(env Envelope) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.WriteTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, b)
}

func (c *Channel) shutdown() {
	for attempt, t := range c.timers {
		t.Stop()
		delete(c.timers, attempt)
	}
	for attempt, ch := range c.waiters {
		ch <- result{err: ErrClosed}
		delete(c.waiters, attempt)
	}
	for _, ch := range c.connecting {
		ch <- ErrClosed
	}
	c.connecting = nil
	c.detach()
	c.m = Machine{}
	c.state.Store(uint32(StateDisconnected))
}
