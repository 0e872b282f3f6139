package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestStoreSetGetClear(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)

	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	access := testToken(exp)
	if err := store.Set(ctx, access, "refresh-1"); err != nil {
		t.Fatalf("set: %v", err)
	}

	got := store.Get()
	if !got.Established() || got.AccessToken != access || got.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected session %+v", got)
	}
	if got.ExpiresAtEpochMillis != exp.UnixMilli() {
		t.Fatalf("expected expiry %d, got %d", exp.UnixMilli(), got.ExpiresAtEpochMillis)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got = store.Get()
	if got.AccessToken != "" || got.RefreshToken != "" || got.ExpiresAtEpochMillis != 0 || got.MFAChallenge != nil {
		t.Fatalf("expected empty session after clear, got %+v", got)
	}
}

func TestStoreRejectsHalfPair(t *testing.T) {
	store := NewStore(nil)
	if err := store.Set(context.Background(), "access", ""); !errors.Is(err, ErrIncompletePair) {
		t.Fatalf("expected ErrIncompletePair, got %v", err)
	}
	if err := store.Set(context.Background(), "", "refresh"); !errors.Is(err, ErrIncompletePair) {
		t.Fatalf("expected ErrIncompletePair, got %v", err)
	}
	if store.Get().Version != 0 {
		t.Fatal("rejected set must not bump version")
	}
}

func TestStoreMalformedAccessTokenStoredWithZeroExpiry(t *testing.T) {
	store := NewStore(nil)
	if err := store.Set(context.Background(), "opaque-access", "refresh"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := store.Get(); got.ExpiresAtEpochMillis != 0 || !got.ExpiresAt().IsZero() {
		t.Fatalf("expected zero expiry, got %+v", got)
	}
}

func TestStoreChangeObserverRunsInsideCriticalSection(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)

	release := make(chan struct{})
	entered := make(chan struct{})
	var seen []Session
	store.OnChange(func(s Session) {
		seen = append(seen, s)
		if len(seen) == 1 {
			close(entered)
			<-release
		}
	})

	access := testToken(time.Now().Add(time.Hour))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = store.Set(ctx, access, "r1")
	}()

	<-entered
	read := make(chan Session, 1)
	go func() { read <- store.Get() }()

	select {
	case s := <-read:
		t.Fatalf("reader observed session %+v before the observer finished", s)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done
	if s := <-read; s.AccessToken != access {
		t.Fatalf("expected reader to see new token, got %+v", s)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(seen) != 2 || seen[1].Established() {
		t.Fatalf("expected set then clear notifications, got %+v", seen)
	}
}

func TestStoreSetIfDetectsInterveningClear(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	if err := store.Set(ctx, "a1", "r1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	observed := store.Version()

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	ok, err := store.SetIf(ctx, observed, "a2", "r2")
	if err != nil {
		t.Fatalf("setif: %v", err)
	}
	if ok {
		t.Fatal("SetIf must not resurrect a cleared session")
	}
	if store.Get().Established() {
		t.Fatal("session must remain cleared")
	}

	ok, err = store.SetIf(ctx, store.Version(), "a3", "r3")
	if err != nil || !ok {
		t.Fatalf("expected SetIf with current version to apply, ok=%v err=%v", ok, err)
	}
}

func TestStoreClearIfKeepsNewerSession(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	if err := store.Set(ctx, "a1", "r1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	observed := store.Version()
	if err := store.Set(ctx, "a2", "r2"); err != nil {
		t.Fatalf("set: %v", err)
	}

	if ok, err := store.ClearIf(ctx, observed); err != nil || ok {
		t.Fatalf("stale ClearIf must be a no-op, ok=%v err=%v", ok, err)
	}
	if store.AccessToken() != "a2" {
		t.Fatal("newer session must survive a stale ClearIf")
	}
	if ok, err := store.ClearIf(ctx, store.Version()); err != nil || !ok {
		t.Fatalf("current ClearIf must apply, ok=%v err=%v", ok, err)
	}
	if store.Get().Established() {
		t.Fatal("expected cleared session")
	}
}

func TestStoreConcurrentReadersNeverSeeHalfPair(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := store.Get()
				if (s.AccessToken == "") != (s.RefreshToken == "") {
					t.Errorf("observed half pair %+v", s)
					return
				}
				if s.AccessToken != "" && s.AccessToken[1:] != s.RefreshToken[1:] {
					t.Errorf("observed mismatched pair %+v", s)
					return
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		n := string(rune('a' + i%26))
		if i%7 == 0 {
			_ = store.Clear(ctx)
			continue
		}
		_ = store.Set(ctx, "A"+n, "R"+n)
	}
	close(stop)
	wg.Wait()
}

func TestStorePersistsThroughAndRestores(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()

	first := NewStore(p)
	if err := first.Set(ctx, "a1", "r1"); err != nil {
		t.Fatalf("set: %v", err)
	}

	second := NewStore(p)
	var notified bool
	second.OnChange(func(Session) { notified = true })
	ok, err := second.Restore(ctx)
	if err != nil || !ok {
		t.Fatalf("restore: ok=%v err=%v", ok, err)
	}
	if !notified {
		t.Fatal("restore must notify the change observer")
	}
	if got := second.Get(); got.AccessToken != "a1" || got.RefreshToken != "r1" {
		t.Fatalf("unexpected restored session %+v", got)
	}
}

func TestStoreRestoreClearsHalfPopulatedSlot(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	_ = p.Save(ctx, Pair{AccessToken: "a-only"})

	store := NewStore(p)
	ok, err := store.Restore(ctx)
	if err != nil || ok {
		t.Fatalf("expected no restore, ok=%v err=%v", ok, err)
	}
	if pair, _ := p.Load(ctx); !pair.Empty() {
		t.Fatalf("expected half pair to be cleared, got %+v", pair)
	}
}

func TestStorePersistFailureKeepsMemoryAuthoritative(t *testing.T) {
	store := NewStore(&failingPersister{})
	err := store.Set(context.Background(), "a1", "r1")
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if got := store.Get(); got.AccessToken != "a1" {
		t.Fatalf("memory must hold new tokens despite persist failure, got %+v", got)
	}
	if err := store.Clear(context.Background()); !errors.Is(err, ErrPersist) {
		t.Fatalf("expected ErrPersist on clear, got %v", err)
	}
	if store.Get().Established() {
		t.Fatal("memory must be cleared despite persist failure")
	}
}

func TestStoreChallengeIsClearedBySet(t *testing.T) {
	store := NewStore(nil)
	store.SetChallenge(&MFAChallenge{Required: true, Kind: ChallengeTokenRequired, Method: MFAMethodTOTP, CorrelationID: "c1"})
	if c := store.Get().MFAChallenge; c == nil || c.CorrelationID != "c1" {
		t.Fatalf("expected challenge, got %+v", c)
	}

	if err := store.Set(context.Background(), "a", "r"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if store.Get().MFAChallenge != nil {
		t.Fatal("expected challenge to be dropped once the session is established")
	}
}
