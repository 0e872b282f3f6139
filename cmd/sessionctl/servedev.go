package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/internal/devauth"
)

// devUsers are seeded into every serve-dev instance. The admin account has TOTP enabled;
// its secret is logged at startup.
var devUsers = []devauth.UserSpec{
	{Email: "demo@example.com", Password: "demo-password", FirstName: "Demo", LastName: "User", Role: "user"},
	{Email: "admin@example.com", Password: "admin-password", FirstName: "Ada", LastName: "Admin", Role: "admin", MFAEnabled: true},
	{Email: "enrol@example.com", Password: "enrol-password", FirstName: "Eli", LastName: "Enrol", Role: "admin"},
	{Email: "inactive@example.com", Password: "inactive-password", Role: "user", Inactive: true},
}

func cmdServeDev(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("serve-dev", flag.ContinueOnError)
	addr := fs.String("addr", a.cfg.DevAddr, "listen address")
	accessTTL := fs.Duration("access-ttl", a.cfg.DevAccessTTL, "lifetime of issued access tokens")
	redisAddr := fs.String("redis-addr", "", "use this Redis instead of an in-memory one")
	if err := fs.Parse(args); err != nil {
		return err
	}

	addrs := *redisAddr
	if addrs == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return err
		}
		defer mr.Close()
		addrs = mr.Addr()
		a.logger.Info("devauth.redis.memory", "addr", addrs)
	}
	rdb := redis.NewClient(&redis.Options{Addr: addrs})
	defer rdb.Close()

	srv, err := devauth.New(rdb, devauth.Config{Logger: a.logger})
	if err != nil {
		return err
	}
	srv.SetAccessTTL(*accessTTL)

	for _, u := range devUsers {
		if u.MFAEnabled {
			_, secret, err := srv.TOTP().GenerateSecret()
			if err != nil {
				return err
			}
			u.MFASecret = secret
			u.BackupCodes = []string{"A1B2C3D4", "E5F6A7B8"}
			a.logger.Info("devauth.user.totp",
				"email", u.Email,
				"secret", secret,
				"otpauth_url", srv.TOTP().ProvisionURI(secret, u.Email),
				"backup_codes", u.BackupCodes,
			)
		}
		if _, err := srv.AddUser(ctx, u); err != nil {
			return err
		}
		a.logger.Info("devauth.user.seeded", "email", u.Email, "role", u.Role, "inactive", u.Inactive)
	}

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("devauth.listen", "addr", *addr, "access_ttl", accessTTL.String())
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.logger.Info("devauth.stopped", "stats", srv.Stats())
	return nil
}
