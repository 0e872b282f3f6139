package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrEthical07/goSession/session"
)

var errUnauthorized = errors.New("refresh rejected: 401")

func accessToken(t *testing.T, sub string) string {
	t.Helper()
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"userId": sub,
		"exp":    time.Now().Add(15 * time.Minute).Unix(),
	}).SignedString([]byte("refresh-test"))
	require.NoError(t, err)
	return tok
}

func seededStore(t *testing.T) *session.Store {
	t.Helper()
	store := session.NewStore(nil)
	require.NoError(t, store.Set(context.Background(), accessToken(t, "old"), "r-old"))
	return store
}

func TestRenewSwapsBothTokens(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	store := seededStore(t)
	next := session.Pair{AccessToken: accessToken(t, "new"), RefreshToken: "r-new"}

	client.EXPECT().Refresh(gomock.Any(), "r-old").Return(next, nil).Times(1)

	var succeeded int32
	exec := NewExecutor(store, client, Options{OnSuccess: func(time.Duration) { atomic.AddInt32(&succeeded, 1) }})
	got, err := exec.Renew(context.Background())
	require.NoError(t, err)
	require.Equal(t, next.AccessToken, got.AccessToken)
	require.Equal(t, "r-new", store.Get().RefreshToken)
	require.NotZero(t, store.Get().ExpiresAtEpochMillis)
	require.EqualValues(t, 1, atomic.LoadInt32(&succeeded))
}

func TestConcurrentRenewsShareOneCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	store := seededStore(t)
	next := session.Pair{AccessToken: accessToken(t, "new"), RefreshToken: "r-new"}

	release := make(chan struct{})
	client.EXPECT().Refresh(gomock.Any(), "r-old").DoAndReturn(func(context.Context, string) (session.Pair, error) {
		<-release
		return next, nil
	}).Times(1)

	var coalesced int32
	exec := NewExecutor(store, client, Options{OnCoalesced: func() { atomic.AddInt32(&coalesced, 1) }})

	const callers = 16
	var (
		wg      sync.WaitGroup
		entered int32
		results = make([]session.Session, callers)
		errs    = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			atomic.AddInt32(&entered, 1)
			results[i], errs[i] = exec.Renew(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&entered) == callers }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, next.AccessToken, results[i].AccessToken)
	}
	require.EqualValues(t, callers-1, atomic.LoadInt32(&coalesced))
}

func TestConcurrentRenewsShareFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	store := seededStore(t)

	release := make(chan struct{})
	client.EXPECT().Refresh(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, string) (session.Pair, error) {
		<-release
		return session.Pair{}, errUnauthorized
	}).Times(1)

	exec := NewExecutor(store, client, Options{})

	var wg sync.WaitGroup
	var entered int32
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			atomic.AddInt32(&entered, 1)
			_, errs[i] = exec.Renew(context.Background())
		}(i)
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&entered) == int32(len(errs)) }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		require.ErrorIs(t, err, ErrRenewalFailed)
		require.ErrorIs(t, err, errUnauthorized)
	}
}

func TestRenewFailureClearsStoreWithoutRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	store := seededStore(t)

	client.EXPECT().Refresh(gomock.Any(), "r-old").Return(session.Pair{}, fmt.Errorf("status 401: %w", errUnauthorized)).Times(1)

	var failures int32
	exec := NewExecutor(store, client, Options{OnFailure: func(error) { atomic.AddInt32(&failures, 1) }})

	_, err := exec.Renew(context.Background())
	require.ErrorIs(t, err, ErrRenewalFailed)
	require.False(t, store.Get().Established())
	require.Empty(t, store.Get().AccessToken)
	require.EqualValues(t, 1, atomic.LoadInt32(&failures))

	_, err = exec.Renew(context.Background())
	require.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestRenewWithoutRefreshToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)

	var skipped int32
	exec := NewExecutor(session.NewStore(nil), client, Options{OnNoRefreshToken: func() { atomic.AddInt32(&skipped, 1) }})

	_, err := exec.Renew(context.Background())
	require.ErrorIs(t, err, ErrNoRefreshToken)
	require.EqualValues(t, 1, atomic.LoadInt32(&skipped))
}

func TestRenewRejectsHalfPairFromServer(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	store := seededStore(t)

	client.EXPECT().Refresh(gomock.Any(), gomock.Any()).Return(session.Pair{AccessToken: "only-access"}, nil)

	_, err := NewExecutor(store, client, Options{}).Renew(context.Background())
	require.ErrorIs(t, err, ErrRenewalFailed)
	require.ErrorIs(t, err, session.ErrIncompletePair)
	require.False(t, store.Get().Established())
}

func TestRenewDoesNotResurrectAfterLogout(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	store := seededStore(t)
	next := session.Pair{AccessToken: accessToken(t, "new"), RefreshToken: "r-new"}

	client.EXPECT().Refresh(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ string) (session.Pair, error) {
		assert.NoError(t, store.Clear(ctx))
		return next, nil
	})

	_, err := NewExecutor(store, client, Options{}).Renew(context.Background())
	require.ErrorIs(t, err, ErrRenewalFailed)
	require.ErrorIs(t, err, session.ErrSuperseded)
	require.NotErrorIs(t, err, session.ErrCancelled)
	require.False(t, store.Get().Established())
}

func TestRenewFailureKeepsNewerLogin(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	store := seededStore(t)
	fresh := accessToken(t, "fresh-login")

	client.EXPECT().Refresh(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ string) (session.Pair, error) {
		assert.NoError(t, store.Set(ctx, fresh, "r-fresh"))
		return session.Pair{}, errUnauthorized
	})

	_, err := NewExecutor(store, client, Options{}).Renew(context.Background())
	require.ErrorIs(t, err, ErrRenewalFailed)
	require.Equal(t, fresh, store.AccessToken())
}

func TestCancelledCallerDoesNotAbortSharedRenewal(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	store := seededStore(t)
	next := session.Pair{AccessToken: accessToken(t, "new"), RefreshToken: "r-new"}

	release := make(chan struct{})
	client.EXPECT().Refresh(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ string) (session.Pair, error) {
		<-release
		if err := ctx.Err(); err != nil {
			return session.Pair{}, err
		}
		return next, nil
	})

	exec := NewExecutor(store, client, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := exec.Renew(ctx)
		done <- err
	}()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return store.Get().RefreshToken == "r-new" }, time.Second, 5*time.Millisecond)
}
