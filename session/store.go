package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrEthical07/goSession/jwt"
)

// ChangeFunc observes every Set and Clear. It runs while the store's write lock is held:
// it must not call back into the Store and must not block.
type ChangeFunc func(Session)

// Store is the single-writer owner of a portal's [Session].
type Store struct {
	mu        sync.RWMutex
	current   Session
	persister Persister
	onChange  ChangeFunc
}

// NewStore returns an empty store backed by p. A nil persister keeps tokens in memory only.
func NewStore(p Persister) *Store {
	if p == nil {
		p = NewMemoryPersister()
	}
	return &Store{persister: p}
}

// OnChange registers fn as the change observer, replacing any previous one. Wire it once
// during construction, before the store is shared.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Get returns a snapshot of the current session.
func (s *Store) Get() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// AccessToken returns the current access token, or "".
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.AccessToken
}

// Version returns the current session version.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Version
}

// Set replaces both tokens atomically and clears any MFA challenge. The expiry is decoded
// from access; an undecodable token is stored with a zero expiry.
func (s *Store) Set(ctx context.Context, access, refresh string) error {
	if access == "" || refresh == "" {
		return ErrIncompletePair
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(ctx, access, refresh)
}

// SetIf is Set guarded by the version observed before a renewal started. It returns false
// without writing when the session changed in between (for example a logout cleared it).
func (s *Store) SetIf(ctx context.Context, version uint64, access, refresh string) (bool, error) {
	if access == "" || refresh == "" {
		return false, ErrIncompletePair
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.Version != version {
		return false, nil
	}
	return true, s.setLocked(ctx, access, refresh)
}

// Clear drops both tokens and any MFA challenge and removes the persisted pair.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.clearLocked(ctx)
}

// ClearIf is Clear guarded by version, mirroring SetIf.
func (s *Store) ClearIf(ctx context.Context, version uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.Version != version {
		return false, nil
	}
	return true, s.clearLocked(ctx)
}

func (s *Store) clearLocked(ctx context.Context) error {
	s.current = Session{Version: s.current.Version + 1}
	s.notifyLocked()

	if err := s.persister.Clear(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

// SetChallenge records an in-progress MFA exchange. It does not touch the tokens and does
// not notify the change observer.
func (s *Store) SetChallenge(c *MFAChallenge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == nil {
		s.current.MFAChallenge = nil
		return
	}
	cp := *c
	s.current.MFAChallenge = &cp
}

// Restore loads the persisted pair into memory. It reports whether a complete pair was
// found. A half-populated slot is cleared.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	pair, err := s.persister.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPersist, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !pair.Complete() {
		if !pair.Empty() {
			_ = s.persister.Clear(ctx)
		}
		return false, nil
	}

	s.current = Session{
		AccessToken:          pair.AccessToken,
		RefreshToken:         pair.RefreshToken,
		ExpiresAtEpochMillis: decodeExpiry(pair.AccessToken),
		Version:              s.current.Version + 1,
	}
	s.notifyLocked()
	return true, nil
}

func (s *Store) setLocked(ctx context.Context, access, refresh string) error {
	s.current = Session{
		AccessToken:          access,
		RefreshToken:         refresh,
		ExpiresAtEpochMillis: decodeExpiry(access),
		Version:              s.current.Version + 1,
	}
	s.notifyLocked()

	if err := s.persister.Save(ctx, Pair{AccessToken: access, RefreshToken: refresh}); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

func (s *Store) notifyLocked() {
	if s.onChange != nil {
		s.onChange(s.snapshotLocked())
	}
}

func (s *Store) snapshotLocked() Session {
	out := s.current
	if out.MFAChallenge != nil {
		cp := *out.MFAChallenge
		out.MFAChallenge = &cp
	}
	return out
}

func decodeExpiry(access string) int64 {
	ms, err := jwt.ExpiresAtMillis(access)
	if err != nil {
		return 0
	}
	return ms
}
