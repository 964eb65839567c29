// Command tcpmultiserver runs the multi-client TCP echo server on the given port.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/zAlexisD/2024-UDP-TCP-Chat-App/internal/server"
)

func main() {
	shutdown, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(shutdown, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("tcpmultiserver", flag.ContinueOnError)
	flags.SetOutput(stderr)
	idleTimeout := flags.Duration("idle-timeout", 0, "stop after this long without connections (default 1m)")
	pollInterval := flags.Duration("poll-interval", 0, "accept wait and idle reminder interval (default 10s)")
	gracePeriod := flags.Duration("grace-period", 0, "force-close connections still open this long after shutdown (0 waits)")
	abortOnClose := flags.Bool("abort-on-close", false, "close open connections as soon as the server stops accepting")
	reusePort := flags.Bool("reuse-port", false, "set SO_REUSEPORT on the listening socket")
	logJSON := flags.Bool("log-json", false, "log as JSON instead of text")
	logLevel := flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.Usage = func() {
		fmt.Fprintln(stderr, "Usage: tcpmultiserver <listening port>")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 1 {
		flags.Usage()
		return 1
	}

	port, err := strconv.Atoi(flags.Arg(0))
	if err != nil || port < 0 || port > 65535 {
		fmt.Fprintf(stderr, "invalid listening port %q\n", flags.Arg(0))
		return 1
	}

	logger, err := newLogger(stdout, *logLevel, *logJSON)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	policy := server.PolicyDrain
	if *abortOnClose {
		policy = server.PolicyAbort
	}

	srv := server.NewServer(server.Config{
		Port:           port,
		IdleTimeout:    *idleTimeout,
		PollInterval:   *pollInterval,
		ShutdownPolicy: policy,
		GracePeriod:    *gracePeriod,
		ReusePort:      *reusePort,
		Logger:         logger,
	})

	report, err := srv.Run(ctx)
	if err != nil {
		logger.Error("server failed", "error", err)
		fmt.Fprintln(stderr, err)
		return 1
	}
	if report.Reason == server.Cancelled {
		logger.Info("shutdown signal received")
	}

	logger.Info("server exited", "reason", report.Reason.String(), "port", report.Port, "accepted", report.Accepted)
	fmt.Fprintln(stdout, srv)
	return 0
}

func newLogger(w io.Writer, level string, json bool) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
