package interceptor

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// Store is the slice of session.Store the transport reads and clears.
type Store interface {
	Get() session.Session
	ClearIf(ctx context.Context, version uint64) (bool, error)
}

// Renewer renews the session, sharing one in-flight call among concurrent callers.
type Renewer interface {
	Renew(ctx context.Context) (session.Session, error)
}

// Transport decorates requests with the bearer token and renews once on 401.
type Transport struct {
	Base    http.RoundTripper
	Store   Store
	Renewer Renewer
	Logger  *slog.Logger

	// OnRetry and OnUnauthorized are metric hooks.
	OnRetry        func()
	OnUnauthorized func()
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if skipAuth(ctx) {
		return t.base().RoundTrip(req)
	}

	req, err := replayable(req)
	if err != nil {
		return nil, err
	}

	sent := t.Store.Get()
	resp, err := t.base().RoundTrip(authorize(req, sent.AccessToken))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || IsRetry(ctx) {
		return resp, err
	}

	current := t.Store.Get()
	if current.Version == sent.Version {
		if _, renewErr := t.Renewer.Renew(ctx); renewErr != nil {
			if ctx.Err() != nil {
				// The caller gave up; the shared renewal carries on for other waiters.
				discard(resp)
				return nil, ctx.Err()
			}
			t.logger().Info("session.interceptor.renew.fail", "url", req.URL.Path, "err", renewErr)
			t.unauthorized(ctx, sent.Version)
			return resp, nil
		}
		current = t.Store.Get()
	}
	if current.AccessToken == "" {
		t.unauthorized(ctx, current.Version)
		return resp, nil
	}

	retry, err := rewind(req)
	if err != nil {
		return resp, nil
	}
	discard(resp)
	if t.OnRetry != nil {
		t.OnRetry()
	}

	resp, err = t.base().RoundTrip(authorize(retry, current.AccessToken))
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		t.logger().Info("session.interceptor.unauthorized", "url", req.URL.Path)
		t.unauthorized(ctx, current.Version)
	}
	return resp, err
}

func (t *Transport) unauthorized(ctx context.Context, version uint64) {
	if _, err := t.Store.ClearIf(context.WithoutCancel(ctx), version); err != nil {
		t.logger().Warn("session.interceptor.clear.fail", "err", err)
	}
	if t.OnUnauthorized != nil {
		t.OnUnauthorized()
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func authorize(req *http.Request, token string) *http.Request {
	out := req.Clone(req.Context())
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return out
}

// replayable makes sure the body can be sent twice, buffering it when the caller did
// not provide GetBody.
func replayable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}
	raw, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}

	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(raw))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
	return out, nil
}

func rewind(req *http.Request) (*http.Request, error) {
	out := req.Clone(withRetried(req.Context()))
	if req.GetBody == nil {
		return out, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}

// NewClient returns an *http.Client using t with the given timeout.
func NewClient(t *Transport, timeout time.Duration) *http.Client {
	return &http.Client{Transport: t, Timeout: timeout}
}
