// Command session-loadtest fires storms of concurrent renewals and 401 retries at the
// development auth server and checks that each storm costs exactly one refresh call
// per session.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc/pool"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/devauth"
)

func main() {
	var (
		clients      = flag.Int("clients", 8, "number of independent sessions")
		concurrency  = flag.Int("concurrency", 64, "concurrent callers per session per storm")
		storms       = flag.Int("storms", 20, "renewal storms to fire")
		unauthStorms = flag.Int("unauth-storms", 3, "401 storms to fire (each waits for the access token to expire)")
		refreshDelay = flag.Duration("refresh-delay", 25*time.Millisecond, "server-side delay added to every refresh")
		redisAddr    = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *clients <= 0 || *concurrency <= 0 || *storms < 0 || *unauthStorms < 0 {
		fmt.Fprintln(os.Stderr, "clients and concurrency must be > 0, storms must be >= 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	srv, err := devauth.New(rdb, devauth.Config{KeyPrefix: "loadtest:"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "dev server: %v\n", err)
		os.Exit(1)
	}
	srv.SetRefreshDelay(*refreshDelay)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	managers, err := signIn(ctx, srv, ts.URL, *clients)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign in: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		for _, m := range managers {
			_ = m.Close()
		}
	}()
	fmt.Printf("signed in %d sessions\n", len(managers))

	renew := runStorms(srv, managers, *storms, *concurrency, func(m *goSession.Manager) error {
		_, err := m.Renew(ctx)
		return err
	}, nil)

	srv.SetAccessTTL(2 * time.Second)
	// Re-issue every session's access token with the short TTL.
	for _, m := range managers {
		if _, err := m.Renew(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "renew before 401 phase: %v\n", err)
			os.Exit(1)
		}
	}
	unauth := runStorms(srv, managers, *unauthStorms, *concurrency, func(m *goSession.Manager) error {
		_, err := m.Me(ctx)
		return err
	}, func() { time.Sleep(2100 * time.Millisecond) })

	fmt.Println("---- results ----")
	printStats("renew", renew)
	printStats("401-retry", unauth)

	if renew.violations > 0 || unauth.violations > 0 {
		os.Exit(1)
	}
}

func signIn(ctx context.Context, srv *devauth.Server, baseURL string, n int) ([]*goSession.Manager, error) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	out := make([]*goSession.Manager, 0, n)
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("load-%d@example.com", i)
		if _, err := srv.AddUser(ctx, devauth.UserSpec{Email: email, Password: "load-password", Role: "user"}); err != nil {
			return nil, err
		}

		cfg := goSession.DefaultConfig()
		cfg.BaseURL = baseURL
		m, err := goSession.New().WithConfig(cfg).WithLogger(quiet).Build()
		if err != nil {
			return nil, err
		}
		res, err := m.Login(ctx, email, "load-password")
		if err != nil {
			return nil, err
		}
		if !res.Established {
			return nil, fmt.Errorf("%s: login did not establish a session", email)
		}
		out = append(out, m)
	}
	return out, nil
}

type phaseStats struct {
	storms     int
	calls      int
	failures   int64
	refreshes  int64
	violations int
	total      time.Duration
	p50        time.Duration
	p95        time.Duration
	p99        time.Duration
}

// runStorms fires concurrency callers at every session at once, storms times. Each
// storm must reach the server with exactly one refresh per session.
func runStorms(srv *devauth.Server, managers []*goSession.Manager, storms, concurrency int, call func(*goSession.Manager) error, before func()) phaseStats {
	var (
		failures  int64
		latencies = make([]time.Duration, 0, storms*len(managers)*concurrency)
		mu        sync.Mutex
		stats     phaseStats
	)

	start := time.Now()
	for s := 0; s < storms; s++ {
		if before != nil {
			before()
		}
		refreshBefore := srv.Stats().Refresh

		p := pool.New().WithMaxGoroutines(len(managers) * concurrency)
		for _, m := range managers {
			for c := 0; c < concurrency; c++ {
				p.Go(func() {
					t0 := time.Now()
					err := call(m)
					d := time.Since(t0)
					if err != nil {
						atomic.AddInt64(&failures, 1)
					}
					mu.Lock()
					latencies = append(latencies, d)
					mu.Unlock()
				})
			}
		}
		p.Wait()

		delta := srv.Stats().Refresh - refreshBefore
		stats.refreshes += delta
		if delta != int64(len(managers)) {
			stats.violations++
			fmt.Printf("storm %d: %d refresh calls for %d sessions\n", s, delta, len(managers))
		}
	}

	stats.storms = storms
	stats.total = time.Since(start)
	stats.failures = failures
	stats.calls = len(latencies)
	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		stats.p50 = percentile(latencies, 50)
		stats.p95 = percentile(latencies, 95)
		stats.p99 = percentile(latencies, 99)
	}
	return stats
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: storms=%d calls=%d failures=%d refreshes=%d violations=%d total=%s p50=%s p95=%s p99=%s\n",
		name,
		s.storms,
		s.calls,
		s.failures,
		s.refreshes,
		s.violations,
		s.total.Round(time.Millisecond),
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
