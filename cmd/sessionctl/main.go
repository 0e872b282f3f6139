// Command sessionctl drives a goSession manager from the shell: sign in, inspect and
// renew the session, keep it alive, and run a local development auth server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	goSession "github.com/MrEthical07/goSession"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"login", "sign in over HTTP", cmdLogin},
	{"mfa", "complete a login with a TOTP or backup code", cmdMFA},
	{"me", "print the signed-in user", cmdMe},
	{"renew", "renew the token pair now", cmdRenew},
	{"logout", "end the session on the server and locally", cmdLogout},
	{"watch", "keep the session alive, logging each renewal", cmdWatch},
	{"ws-login", "sign in over the WebSocket auth channel", cmdWSLogin},
	{"lint", "print configuration warnings", cmdLint},
	{"serve-dev", "run the development auth server on an in-memory Redis", cmdServeDev},
}

// app carries what every command needs.
type app struct {
	cfg    *Config
	logger *slog.Logger
	out    io.Writer
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := flag.NewFlagSet("sessionctl", flag.ContinueOnError)
	envFile := global.String("env-file", ".env", "optional dotenv file with SESSIONCTL_* settings")
	global.Usage = func() { usage(global.Output()) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		usage(os.Stderr)
		return 2
	}

	cfg, err := LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	logger, closer := newLogger(cfg.LogLevel, cfg.LogFile)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, logger: logger, out: os.Stdout}
	for _, c := range commands {
		if c.name != rest[0] {
			continue
		}
		if err := c.run(ctx, a, rest[1:]); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return 2
			}
			logger.Error("sessionctl.fail", "command", c.name, "err", err)
			fmt.Fprintln(os.Stderr, goSession.ResultOf(err).Message)
			return 1
		}
		return 0
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n", rest[0])
	usage(os.Stderr)
	return 2
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: sessionctl [-env-file path] <command> [flags]")
	fmt.Fprintln(w)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.usage)
	}
}
