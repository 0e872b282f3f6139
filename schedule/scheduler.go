package schedule

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
)

const (
	DefaultLeadTime           = 5 * time.Minute
	DefaultMinDelay           = time.Minute
	DefaultExpiringSoonWindow = 10 * time.Minute
)

// Options configures a Scheduler. Zero durations take the package defaults.
type Options struct {
	Clock              Clock
	LeadTime           time.Duration
	MinDelay           time.Duration
	ExpiringSoonWindow time.Duration
	Logger             *slog.Logger

	// OnArmed and OnMalformed are metric hooks; both may be nil.
	OnArmed     func(renewAt time.Time)
	OnMalformed func(err error)
}

// Scheduler holds the single proactive-renewal timer of one session.
type Scheduler struct {
	opts Options
	fire func()

	mu        sync.Mutex
	timer     Timer
	gen       uint64
	renewAt   time.Time
	expiresAt time.Time
	closed    bool
}

// New returns a Scheduler that calls fire at each computed renewal time. fire runs on the
// clock's goroutine, outside the scheduler lock.
func New(fire func(), opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.LeadTime <= 0 {
		opts.LeadTime = DefaultLeadTime
	}
	if opts.MinDelay <= 0 {
		opts.MinDelay = DefaultMinDelay
	}
	if opts.ExpiringSoonWindow <= 0 {
		opts.ExpiringSoonWindow = DefaultExpiringSoonWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{opts: opts, fire: fire}
}

// RenewAt computes max(expiresAt-lead, now+minDelay).
func RenewAt(expiresAt, now time.Time, lead, minDelay time.Duration) time.Time {
	at := expiresAt.Add(-lead)
	if floor := now.Add(minDelay); at.Before(floor) {
		return floor
	}
	return at
}

// Arm replaces any pending timer with one for accessToken. On a malformed token the old
// timer is still cancelled, nothing is scheduled, and jwt.ErrMalformedToken is returned.
func (s *Scheduler) Arm(accessToken string) (time.Time, error) {
	exp, err := jwt.ExpiresAt(accessToken)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return time.Time{}, nil
	}
	s.stopLocked()
	if err != nil {
		s.mu.Unlock()
		s.opts.Logger.Warn("session.schedule.malformed", "err", err)
		if s.opts.OnMalformed != nil {
			s.opts.OnMalformed(err)
		}
		return time.Time{}, err
	}

	now := s.opts.Clock.Now()
	at := RenewAt(exp, now, s.opts.LeadTime, s.opts.MinDelay)
	gen := s.gen
	s.expiresAt = exp
	s.renewAt = at
	s.timer = s.opts.Clock.AfterFunc(at.Sub(now), func() { s.onTimer(gen) })
	s.mu.Unlock()

	s.opts.Logger.Debug("session.schedule.armed", "renew_at", at, "expires_at", exp)
	if s.opts.OnArmed != nil {
		s.opts.OnArmed(at)
	}
	return at, nil
}

// Observe is a session.ChangeFunc: an established session arms, anything else disarms.
func (s *Scheduler) Observe(sess session.Session) {
	if sess.Established() {
		_, _ = s.Arm(sess.AccessToken)
		return
	}
	s.Disarm()
}

// Disarm cancels the pending timer, if any.
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Close disarms and makes later Arm calls no-ops.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.closed = true
}

// NextRenewal returns the armed renewal time.
func (s *Scheduler) NextRenewal() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return time.Time{}, false
	}
	return s.renewAt, true
}

// IsExpiringSoon reports whether sess expires within the expiring-soon window. A session
// without a decodable expiry is never reported as expiring.
func (s *Scheduler) IsExpiringSoon(sess session.Session) bool {
	if sess.ExpiresAtEpochMillis == 0 {
		return false
	}
	return sess.ExpiresAt().Sub(s.opts.Clock.Now()) < s.opts.ExpiringSoonWindow
}

func (s *Scheduler) onTimer(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.gen++
	s.mu.Unlock()

	if s.fire != nil {
		s.fire()
	}
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.renewAt = time.Time{}
	s.expiresAt = time.Time{}
}
