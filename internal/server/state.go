package server

import (
	"sync"
	"time"

	"github.com/zAlexisD/2024-UDP-TCP-Chat-App/internal/command"
)

// state is the bookkeeping shared by the accept loop and every worker's
// disconnect callback. All fields change together under mu.
type state struct {
	mu           sync.Mutex
	running      bool
	active       int
	lastActivity time.Time
	reason       Reason
	wake         func()
	now          func() time.Time
}

func newState(now func() time.Time) *state {
	if now == nil {
		now = time.Now
	}
	return &state{now: now}
}

// start marks the server running and starts the idle clock. wake is called,
// with the lock held, whenever the accept loop must re-check running.
func (s *state) start(wake func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.active = 0
	s.lastActivity = s.now()
	s.wake = wake
}

// stop flips running off. The first reason recorded wins.
func (s *state) stop(reason Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(reason)
}

func (s *state) stopLocked(reason Reason) {
	if !s.running {
		return
	}
	s.running = false
	s.reason = reason
	if s.wake != nil {
		s.wake()
	}
}

// arm runs fn only while the server is still running. A wake issued by stop
// therefore always lands after the deadline fn sets.
func (s *state) arm(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	fn()
	return true
}

// next reports whether the accept loop should exit, and why. It is also
// where the idle timeout fires.
func (s *state) next(idleTimeout time.Duration) (Reason, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.active == 0 && s.now().Sub(s.lastActivity) > idleTimeout {
		s.stopLocked(TimedOutIdle)
	}
	return s.reason, !s.running
}

// connectionOpened counts a newly accepted connection. It refuses once the
// server has stopped.
func (s *state) connectionOpened() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return s.active, false
	}
	s.active++
	return s.active, true
}

// connectionClosed is the body of every worker's disconnect callback.
func (s *state) connectionClosed(cmd command.Command) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active > 0 {
		s.active--
		if s.active == 0 {
			s.lastActivity = s.now()
		}
	}
	if cmd.ClosesServer() {
		s.stopLocked(ShutdownRequested)
	}
	return s.active
}

// idleRemaining returns what is left of the idle budget, floored at zero.
// ok is false while connections are open.
func (s *state) idleRemaining(idleTimeout time.Duration) (remaining time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active > 0 {
		return 0, false
	}
	remaining = s.lastActivity.Add(idleTimeout).Sub(s.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

func (s *state) snapshot() (running bool, active int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.active
}
