package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning.
type Config struct {
	Prefix                string
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldown         time.Duration
	EnableRefreshThrottle bool
	MaxRefreshPerSession  int
	RefreshWindow         time.Duration
}

// Limiter counts failed logins per identifier and per IP, and refreshes per session, in
// fixed Redis windows.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by redisClient.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl:"
	}
	return &Limiter{redis: redisClient, config: cfg}
}

// CheckLogin returns ErrRateLimited when identifier or ip used up its failure budget.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if err := l.checkCounter(ctx, l.loginKey(identifier), l.config.MaxLoginAttempts); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		return l.checkCounter(ctx, l.loginIPKey(ip), l.config.MaxLoginAttempts)
	}
	return nil
}

// FailLogin records one failed attempt.
func (l *Limiter) FailLogin(ctx context.Context, identifier, ip string) error {
	if _, err := l.incrementWithTTL(ctx, l.loginKey(identifier), l.config.LoginCooldown); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if _, err := l.incrementWithTTL(ctx, l.loginIPKey(ip), l.config.LoginCooldown); err != nil {
			return err
		}
	}
	return nil
}

// ResetLogin forgets failures for identifier after a successful login. The IP counter
// keeps running.
func (l *Limiter) ResetLogin(ctx context.Context, identifier string) error {
	if err := l.redis.Del(ctx, l.loginKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// LoginFailures returns the current failure count for identifier.
func (l *Limiter) LoginFailures(ctx context.Context, identifier string) (int, error) {
	n, err := l.redis.Get(ctx, l.loginKey(identifier)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// AllowRefresh counts one refresh for sessionID and reports ErrRateLimited past the budget.
func (l *Limiter) AllowRefresh(ctx context.Context, sessionID string) error {
	if !l.config.EnableRefreshThrottle {
		return nil
	}
	n, err := l.incrementWithTTL(ctx, l.config.Prefix+"refresh:"+sessionID, l.config.RefreshWindow)
	if err != nil {
		return err
	}
	if n > int64(l.config.MaxRefreshPerSession) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) loginKey(identifier string) string {
	return l.config.Prefix + "login:" + strings.ToLower(strings.TrimSpace(identifier))
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.config.Prefix + "login-ip:" + ip
}

func (l *Limiter) checkCounter(ctx context.Context, key string, max int) error {
	n, err := l.redis.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n >= int64(max) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return incr.Val(), nil
}
