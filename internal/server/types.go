package server

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type (
	// Config controls how a Server binds, times out and shuts down.
	// Zero values are replaced with defaults by NewServer.
	Config struct {
		Host           string
		Port           int
		Protocol       string
		IdleTimeout    time.Duration
		PollInterval   time.Duration
		ShutdownPolicy ShutdownPolicy
		GracePeriod    time.Duration
		ReusePort      bool
		Logger         *slog.Logger
	}

	// ShutdownPolicy decides what happens to open connections once the
	// server stops accepting.
	ShutdownPolicy int

	// Reason tells why the accept loop stopped.
	Reason int

	// ExitReport summarizes a completed Run.
	ExitReport struct {
		Reason   Reason
		Port     int
		Accepted int64
	}

	// Server is a TCP listener that echoes an acknowledgment to every
	// message and stops by itself when idle or when a client asks it to.
	Server struct {
		config       Config
		logger       *slog.Logger
		state        *state
		port         atomic.Int64
		wg           sync.WaitGroup
		connections  sync.Map // connection ID -> net.Conn
		connectionID int64    // Atomic counter, also the number of accepted connections
	}
)

const (
	// PolicyDrain releases the listener and waits for open connections to
	// finish on their own, bounded by Config.GracePeriod when it is set.
	PolicyDrain ShutdownPolicy = iota
	// PolicyAbort releases the listener and ends every open connection.
	PolicyAbort
)

const (
	TimedOutIdle Reason = iota
	ShutdownRequested
	Cancelled
	ListenerClosed
)

func (r Reason) String() string {
	switch r {
	case TimedOutIdle:
		return "timed out idle"
	case ShutdownRequested:
		return "shutdown requested"
	case Cancelled:
		return "cancelled"
	case ListenerClosed:
		return "listener closed"
	}
	return "unknown"
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (p ShutdownPolicy) String() string {
	if p == PolicyAbort {
		return "abort"
	}
	return "drain"
}
