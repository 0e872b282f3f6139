package refresh

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrEthical07/goSession/session"
)

//go:generate mockgen -source=executor.go -destination=mock_client_test.go -package=refresh Client

// Client exchanges a refresh token for a new token pair.
type Client interface {
	Refresh(ctx context.Context, refreshToken string) (session.Pair, error)
}

// Options carries the executor's optional collaborators.
type Options struct {
	Logger *slog.Logger
	Now    func() time.Time

	OnSuccess        func(latency time.Duration)
	OnFailure        func(err error)
	OnCoalesced      func()
	OnNoRefreshToken func()
}

// Executor performs single-flight renewals against a Client.
type Executor struct {
	store  *session.Store
	client Client
	opts   Options
	group  singleflight.Group
}

const flightKey = "renew"

// NewExecutor returns an Executor writing renewed pairs into store.
func NewExecutor(store *session.Store, client Client, opts Options) *Executor {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Executor{store: store, client: client, opts: opts}
}

// Renew returns the renewed session. Concurrent callers share one network call and one
// outcome.
func (e *Executor) Renew(ctx context.Context) (session.Session, error) {
	led := false
	ch := e.group.DoChan(flightKey, func() (any, error) {
		led = true
		return e.renew(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if !led && e.opts.OnCoalesced != nil {
			e.opts.OnCoalesced()
		}
		if res.Err != nil {
			return session.Session{}, res.Err
		}
		return res.Val.(session.Session), nil
	case <-ctx.Done():
		return session.Session{}, ctx.Err()
	}
}

func (e *Executor) renew(ctx context.Context) (session.Session, error) {
	current := e.store.Get()
	if current.RefreshToken == "" {
		if e.opts.OnNoRefreshToken != nil {
			e.opts.OnNoRefreshToken()
		}
		e.opts.Logger.Info("session.renew.skip", "reason", "no_refresh_token")
		return session.Session{}, ErrNoRefreshToken
	}

	start := e.opts.Now()
	pair, err := e.client.Refresh(ctx, current.RefreshToken)
	if err == nil && !pair.Complete() {
		err = session.ErrIncompletePair
	}
	if err != nil {
		return session.Session{}, e.fail(ctx, current.Version, err)
	}

	applied, err := e.store.SetIf(ctx, current.Version, pair.AccessToken, pair.RefreshToken)
	if !applied {
		if err != nil {
			return session.Session{}, e.fail(ctx, current.Version, err)
		}
		e.opts.Logger.Info("session.renew.discarded", "reason", "session_replaced")
		return session.Session{}, fmt.Errorf("%w: %w", ErrRenewalFailed, session.ErrSuperseded)
	}
	if err != nil {
		e.opts.Logger.Warn("session.renew.persist.fail", "err", err)
	}

	latency := e.opts.Now().Sub(start)
	if e.opts.OnSuccess != nil {
		e.opts.OnSuccess(latency)
	}
	e.opts.Logger.Info("session.renew.ok", "latency_ms", latency.Milliseconds())
	return e.store.Get(), nil
}

func (e *Executor) fail(ctx context.Context, version uint64, cause error) error {
	if _, err := e.store.ClearIf(ctx, version); err != nil {
		e.opts.Logger.Warn("session.renew.clear.persist.fail", "err", err)
	}
	if e.opts.OnFailure != nil {
		e.opts.OnFailure(cause)
	}
	e.opts.Logger.Warn("session.renew.fail", "err", cause)
	return fmt.Errorf("%w: %w", ErrRenewalFailed, cause)
}
