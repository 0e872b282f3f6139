package interceptor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
)

type renewFunc func(ctx context.Context) (session.Session, error)

func (f renewFunc) Renew(ctx context.Context) (session.Session, error) { return f(ctx) }

type refreshFunc func(ctx context.Context, refreshToken string) (session.Pair, error)

func (f refreshFunc) Refresh(ctx context.Context, refreshToken string) (session.Pair, error) {
	return f(ctx, refreshToken)
}

func token(t *testing.T, sub string) string {
	t.Helper()
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"userId": sub,
		"exp":    time.Now().Add(15 * time.Minute).Unix(),
	}).SignedString([]byte("interceptor-test"))
	require.NoError(t, err)
	return tok
}

// acceptOnly answers 401 unless the bearer token is one of valid.
func acceptOnly(hits *int32, valid func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.Header.Get("Authorization") != "Bearer "+valid() {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"success":false,"message":"Invalid token."}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	}
}

func TestAttachesBearerToken(t *testing.T) {
	store := session.NewStore(nil)
	access := token(t, "u1")
	require.NoError(t, store.Set(context.Background(), access, "r1"))

	var hits int32
	srv := httptest.NewServer(acceptOnly(&hits, func() string { return access }))
	defer srv.Close()

	client := NewClient(&Transport{Store: store, Renewer: renewFunc(func(context.Context) (session.Session, error) {
		t.Fatal("renew must not be called")
		return session.Session{}, nil
	})}, time.Second)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, hits)
}

func TestWithoutAuthSkipsDecorationAndRetry(t *testing.T) {
	store := session.NewStore(nil)
	require.NoError(t, store.Set(context.Background(), token(t, "u1"), "r1"))

	var sawAuth atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth.Store(r.Header.Get("Authorization") != "")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(&Transport{Store: store, Renewer: renewFunc(func(context.Context) (session.Session, error) {
		t.Fatal("renew must not be called")
		return session.Session{}, nil
	})}, time.Second)

	req, err := http.NewRequestWithContext(WithoutAuth(context.Background()), http.MethodPost, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.False(t, sawAuth.Load())
	require.True(t, store.Get().Established(), "an unauthenticated call must not clear the session")
}

func TestRenewsOnceAndResendsBody(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(nil)
	require.NoError(t, store.Set(ctx, token(t, "stale"), "r1"))
	fresh := token(t, "fresh")

	var hits int32
	srv := httptest.NewServer(acceptOnly(&hits, func() string { return fresh }))
	defer srv.Close()

	var renewals, retries int32
	tr := &Transport{
		Store: store,
		Renewer: renewFunc(func(ctx context.Context) (session.Session, error) {
			atomic.AddInt32(&renewals, 1)
			require.NoError(t, store.Set(ctx, fresh, "r2"))
			return store.Get(), nil
		}),
		OnRetry: func() { atomic.AddInt32(&retries, 1) },
	}
	client := NewClient(tr, time.Second)

	req, err := http.NewRequest(http.MethodPost, srv.URL, io.NopCloser(strings.NewReader(`{"name":"Q3 plan"}`)))
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"name":"Q3 plan"}`, string(body))
	require.EqualValues(t, 1, renewals)
	require.EqualValues(t, 1, retries)
	require.EqualValues(t, 2, hits)
}

func TestSecondUnauthorizedIsPropagated(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(nil)
	require.NoError(t, store.Set(ctx, token(t, "stale"), "r1"))

	var hits int32
	srv := httptest.NewServer(acceptOnly(&hits, func() string { return "never" }))
	defer srv.Close()

	var renewals, unauthorized int32
	tr := &Transport{
		Store: store,
		Renewer: renewFunc(func(ctx context.Context) (session.Session, error) {
			atomic.AddInt32(&renewals, 1)
			require.NoError(t, store.Set(ctx, token(t, "also-rejected"), "r2"))
			return store.Get(), nil
		}),
		OnUnauthorized: func() { atomic.AddInt32(&unauthorized, 1) },
	}

	resp, err := NewClient(tr, time.Second).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.EqualValues(t, 1, renewals, "a retried request must not renew again")
	require.EqualValues(t, 2, hits, "at most one resend")
	require.EqualValues(t, 1, unauthorized)
	require.False(t, store.Get().Established())
}

func TestRenewalFailureReturnsOriginalResponse(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(nil)
	require.NoError(t, store.Set(ctx, token(t, "stale"), "r1"))

	var hits int32
	srv := httptest.NewServer(acceptOnly(&hits, func() string { return "never" }))
	defer srv.Close()

	tr := &Transport{
		Store: store,
		Renewer: renewFunc(func(context.Context) (session.Session, error) {
			return session.Session{}, refresh.ErrRenewalFailed
		}),
	}

	resp, err := NewClient(tr, time.Second).Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, string(body), "Invalid token.")
	require.EqualValues(t, 1, hits)
	require.False(t, store.Get().Established())
}

func TestCallerTimeoutDuringRenewalKeepsSharedRenewal(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(nil)
	require.NoError(t, store.Set(ctx, token(t, "stale"), "r1"))
	fresh := token(t, "fresh")

	var hits int32
	srv := httptest.NewServer(acceptOnly(&hits, func() string { return fresh }))
	defer srv.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	exec := refresh.NewExecutor(store, refreshFunc(func(context.Context, string) (session.Pair, error) {
		once.Do(func() { close(entered) })
		<-release
		return session.Pair{AccessToken: fresh, RefreshToken: "r2"}, nil
	}), refresh.Options{})

	var unauthorized int32
	client := NewClient(&Transport{
		Store:          store,
		Renewer:        exec,
		OnUnauthorized: func() { atomic.AddInt32(&unauthorized, 1) },
	}, 5*time.Second)

	reqCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	impatient := make(chan error, 1)
	go func() {
		resp, err := client.Do(req)
		if resp != nil {
			resp.Body.Close()
		}
		impatient <- err
	}()

	<-entered
	patient := make(chan error, 1)
	go func() {
		_, err := exec.Renew(ctx)
		patient <- err
	}()

	require.ErrorIs(t, <-impatient, context.DeadlineExceeded)
	require.True(t, store.Get().Established(), "a caller giving up must not clear the session")

	close(release)
	require.NoError(t, <-patient)
	require.Equal(t, fresh, store.AccessToken())
	require.Zero(t, atomic.LoadInt32(&unauthorized))
}

func TestConcurrentRenewalSkipsWhenTokenAlreadyRotated(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(nil)
	require.NoError(t, store.Set(ctx, token(t, "stale"), "r1"))
	fresh := token(t, "fresh")

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			// another goroutine renews while this request is on the wire
			assert.NoError(t, store.Set(ctx, fresh, "r2"))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer "+fresh, r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	tr := &Transport{Store: store, Renewer: renewFunc(func(context.Context) (session.Session, error) {
		return session.Session{}, errors.New("renew must not be called")
	})}

	resp, err := NewClient(tr, time.Second).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, fresh, store.AccessToken())
}

func TestUnauthorizedStormCollapsesIntoOneRefresh(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(nil)
	require.NoError(t, store.Set(ctx, token(t, "stale"), "r1"))
	fresh := token(t, "fresh")

	var current atomic.Value
	current.Store("none")
	var hits int32
	srv := httptest.NewServer(acceptOnly(&hits, func() string { return current.Load().(string) }))
	defer srv.Close()

	var refreshCalls int32
	exec := refresh.NewExecutor(store, refreshFunc(func(context.Context, string) (session.Pair, error) {
		atomic.AddInt32(&refreshCalls, 1)
		time.Sleep(100 * time.Millisecond)
		current.Store(fresh)
		return session.Pair{AccessToken: fresh, RefreshToken: "r2"}, nil
	}), refresh.Options{})

	client := NewClient(&Transport{Store: store, Renewer: exec}, 5*time.Second)

	const callers = 12
	var wg sync.WaitGroup
	codes := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Get(srv.URL)
			if err != nil {
				t.Errorf("request %d: %v", i, err)
				return
			}
			codes[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&refreshCalls))
	for i, code := range codes {
		require.Equalf(t, http.StatusOK, code, "request %d", i)
	}
}

func TestIsRetryMarker(t *testing.T) {
	require.False(t, IsRetry(context.Background()))
	require.True(t, IsRetry(withRetried(context.Background())))
}
