package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/zAlexisD/2024-UDP-TCP-Chat-App/internal/command"
)

const (
	defaultIdleTimeout  = 60 * time.Second
	defaultPollInterval = 10 * time.Second
	defaultProtocol     = "TCP multi"

	minRetryDelay = 5 * time.Millisecond
	maxRetryDelay = time.Second
)

// deadlineListener is a listener whose Accept can be bounded in time.
type deadlineListener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

func NewServer(config Config) *Server {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaultIdleTimeout
	}

	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}

	if config.Protocol == "" {
		config.Protocol = defaultProtocol
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &Server{
		config: config,
		logger: config.Logger,
		state:  newState(time.Now),
	}
	s.port.Store(int64(config.Port))
	return s
}

// Run binds the listening endpoint and accepts connections until the server
// has been idle for IdleTimeout, a client sends "close server", or ctx is
// done. The listener is released before open connections are drained
// according to the ShutdownPolicy. Cancelling ctx interrupts open
// connections regardless of the policy.
func (s *Server) Run(ctx context.Context) (ExitReport, error) {
	listener, err := s.listen(ctx)
	if err != nil {
		return ExitReport{}, &BindError{Port: s.config.Port, Err: err}
	}
	return s.serve(ctx, listener), nil
}

func (s *Server) serve(ctx context.Context, listener deadlineListener) ExitReport {
	port := listener.Addr().(*net.TCPAddr).Port
	s.port.Store(int64(port))
	s.state.start(func() {
		// Expire the pending Accept so the loop re-checks running.
		if err := listener.SetDeadline(time.Now()); err != nil {
			s.logger.Debug("error waking accept loop", "error", err)
		}
	})
	s.logger.Info("server is running", "port", port)

	stopWatching := context.AfterFunc(ctx, func() {
		s.state.stop(Cancelled)
	})
	defer stopWatching()

	reason := s.acceptLoop(listener)

	if err := listener.Close(); err != nil {
		s.logger.Warn("error closing listener", "error", err)
	}
	s.logger.Info("stopped accepting connections", "reason", reason)

	s.drain(reason)
	s.logger.Info("server closed", "status", s.String())

	return ExitReport{
		Reason:   reason,
		Port:     port,
		Accepted: atomic.LoadInt64(&s.connectionID),
	}
}

func (s *Server) listen(ctx context.Context) (deadlineListener, error) {
	lc, err := s.listenConfig()
	if err != nil {
		return nil, err
	}

	address := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	listener, ok := ln.(deadlineListener)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("listener %T does not support accept deadlines", ln)
	}
	return listener, nil
}

func (s *Server) acceptLoop(listener deadlineListener) Reason {
	var retryDelay time.Duration // how long to sleep on accept failure
	for {
		if reason, stopped := s.state.next(s.config.IdleTimeout); stopped {
			if reason == TimedOutIdle {
				s.logger.Info("timeout reached, no connection received")
			}
			return reason
		}

		armed := s.state.arm(func() {
			if err := listener.SetDeadline(time.Now().Add(s.config.PollInterval)); err != nil {
				s.logger.Debug("error setting accept deadline", "error", err)
			}
		})
		if !armed {
			continue
		}

		conn, err := listener.Accept()
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				s.remindIdle()
			case errors.Is(err, net.ErrClosed):
				s.logger.Error("listener closed unexpectedly", "error", err)
				s.state.stop(ListenerClosed)
			default:
				retryDelay = nextRetryDelay(retryDelay)
				s.logger.Error("error accepting connection", "error", err, "retry_in", retryDelay)
				time.Sleep(retryDelay)
			}
			continue
		}

		retryDelay = 0
		s.handleConnection(conn)
	}
}

// nextRetryDelay backs off failing accepts from 5ms, doubling up to 1s.
func nextRetryDelay(delay time.Duration) time.Duration {
	if delay == 0 {
		return minRetryDelay
	}
	delay *= 2
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

func (s *Server) remindIdle() {
	remaining, idle := s.state.idleRemaining(s.config.IdleTimeout)
	if !idle {
		return
	}
	if running, _ := s.state.snapshot(); !running {
		return
	}
	s.logger.Info("connection timeout in", "seconds", int64(remaining/time.Second))
}

func (s *Server) handleConnection(conn net.Conn) {
	active, ok := s.state.connectionOpened()
	if !ok {
		if err := conn.Close(); err != nil {
			s.logger.Warn("error closing connection", "error", err)
		}
		return
	}

	connectionID := s.generateConnectionID()
	w := newWorker(conn, s.logger, func(cmd command.Command) {
		remaining := s.state.connectionClosed(cmd)
		s.logger.Info("client disconnected", "client", conn.RemoteAddr().String(), "active", remaining)
	})
	w.logger.Info("connection from client", "active", active)

	s.connections.Store(connectionID, conn)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.connections.Delete(connectionID)
		w.run()
	}()
}

// drain applies the shutdown policy to connections still open after the
// listener has been released.
func (s *Server) drain(reason Reason) {
	abort := s.config.ShutdownPolicy == PolicyAbort || reason == Cancelled
	if abort {
		s.interruptConnections()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if abort || s.config.GracePeriod <= 0 {
		<-done
		return
	}

	// wait for either WaitGroup to finish or timeout to occur
	select {
	case <-done:
	case <-time.After(s.config.GracePeriod):
		s.logger.Warn("grace period exceeded, interrupting open connections")
		s.interruptConnections()
		<-done
	}
}

// interruptConnections expires every open stream so its worker's blocked
// read fails. The worker still owns the close.
func (s *Server) interruptConnections() {
	s.connections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.SetDeadline(time.Now()); err != nil {
				s.logger.Warn("error interrupting connection", "id", key, "error", err)
			}
		}
		return true
	})
}

// generateConnectionID generates a unique ID for each connection using atomic operations.
func (s *Server) generateConnectionID() int64 {
	return atomic.AddInt64(&s.connectionID, 1)
}

// Port returns the bound port once Run has bound, the configured one before.
func (s *Server) Port() int {
	return int(s.port.Load())
}

func (s *Server) Running() bool {
	running, _ := s.state.snapshot()
	return running
}

func (s *Server) ActiveConnections() int {
	_, active := s.state.snapshot()
	return active
}

func (s *Server) String() string {
	status := "Closed"
	if s.Running() {
		status = "Running"
	}
	return fmt.Sprintf("%s server status on port %d: %s", s.config.Protocol, s.Port(), status)
}
