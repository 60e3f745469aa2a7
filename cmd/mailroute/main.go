// Command mailroute delivers one message through a configured route table.
//
// It is meant to be run from an MTA pipe transport or a .forward file:
//
//	mailroute -config /etc/mailroute.yaml < message.eml
//
// The exit status follows sysexits(3) so the MTA can bounce or defer.
//
// Routes name their handler. The built-in handlers are:
//
//	log              log the match and accept the message
//	discard          accept the message silently
//	exec:<command>   run command with sh -c, message on stdin
//
// Commands run by exec: receive MAILROUTE_MATCH_ID, MAILROUTE_ROUTE,
// MAILROUTE_RECIPIENT and one MAILROUTE_FIELD_<NAME> variable per captured
// field.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bjaus/mailroute"
	"github.com/bjaus/mailroute/config"
	"github.com/bjaus/mailroute/dkim"
	"github.com/bjaus/mailroute/dns"
	"github.com/bjaus/mailroute/observability"
	"github.com/bjaus/mailroute/spf"
)

// Exit codes from sysexits.h.
const (
	exitOK       = 0
	exitUsage    = 64
	exitDataErr  = 65
	exitNoUser   = 67
	exitSoftware = 70
	exitIOErr    = 74
	exitTempFail = 75
	exitNoPerm   = 77
	exitConfig   = 78
)

const execPrefix = "exec:"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath string
	file       string
	logLevel   string
	timeout    time.Duration
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("mailroute", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to route table (.yaml, .yml or .json)")
	fs.StringVar(&opts.file, "file", "", "Read the message from this file instead of stdin")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.DurationVar(&opts.timeout, "timeout", time.Minute, "Give up on the delivery after this long")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: mailroute -config FILE [options] < message\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.configPath == "" {
		return opts, errors.New("-config is required")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		fmt.Fprintf(stderr, "Error: invalid log level %q\n", opts.logLevel)
		return exitUsage
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.FromFile(opts.configPath)
	if err != nil {
		logger.Error("load config", slog.String("error", err.Error()))
		return exitConfig
	}

	router, err := cfg.Build(handlers(cfg, logger), config.WithRouterOptions(observability.Logging(logger)))
	if err != nil {
		logger.Error("build router", slog.String("error", err.Error()))
		return exitConfig
	}

	raw, err := readMessage(opts.file, stdin)
	if err != nil {
		logger.Error("read message", slog.String("error", err.Error()))
		return exitIOErr
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	err = router.Process(ctx, raw)
	if envErr := (*mailroute.EnvelopeError)(nil); errors.As(err, &envErr) {
		logger.Error("unwrap envelope", slog.String("envelope", envErr.Envelope), slog.String("error", envErr.Err.Error()))
	}
	return exitCode(err)
}

func readMessage(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// handlers returns the built-in handlers plus one exec handler per distinct
// exec: command named by the configuration.
func handlers(cfg config.Config, logger *slog.Logger) map[string]mailroute.Handler {
	hs := map[string]mailroute.Handler{
		"log": mailroute.HandlerFunc(func(ctx context.Context, m *mailroute.Match) error {
			attrs := observability.MatchAttrs(m)
			for _, name := range m.Fields.Names() {
				attrs = append(attrs, slog.String("field."+name, m.Fields.Get(name)))
			}
			logger.InfoContext(ctx, "message received", attrs...)
			return nil
		}),
		"discard": mailroute.HandlerFunc(func(ctx context.Context, m *mailroute.Match) error {
			return nil
		}),
	}
	for _, r := range cfg.Routes {
		if cmd, ok := strings.CutPrefix(r.Handler, execPrefix); ok {
			hs[r.Handler] = execHandler(strings.TrimSpace(cmd))
		}
	}
	return hs
}

func execHandler(command string) mailroute.Handler {
	return mailroute.HandlerFunc(func(ctx context.Context, m *mailroute.Match) error {
		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
		cmd.Stdin = bytes.NewReader(m.Message)
		cmd.Env = append(os.Environ(),
			"MAILROUTE_MATCH_ID="+m.ID,
			"MAILROUTE_ROUTE="+m.Route.Name,
			"MAILROUTE_RECIPIENT="+m.Recipient,
		)
		for _, name := range m.Fields.Names() {
			cmd.Env = append(cmd.Env, "MAILROUTE_FIELD_"+strings.ToUpper(name)+"="+m.Fields.Get(name))
		}

		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("%s: %w: %s", command, err, msg)
			}
			return fmt.Errorf("%s: %w", command, err)
		}
		return nil
	})
}

// exitCode maps a dispatch result to a sysexits status. Dispatch outcomes
// are already logged by the router hooks.
func exitCode(err error) int {
	var envErr *mailroute.EnvelopeError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, mailroute.ErrNoRoute):
		return exitNoUser
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return exitTempFail
	case errors.Is(err, mailroute.ErrAuthFailed):
		if dkim.IsTemporary(err) || spf.IsTemporary(err) || dns.IsTemporary(err) {
			return exitTempFail
		}
		return exitNoPerm
	case errors.As(err, &envErr):
		return exitDataErr
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == exitTempFail {
			return exitTempFail
		}
		return exitSoftware
	}
}
