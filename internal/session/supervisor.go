package session

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Supervisor logs the session out after a period without activity. It owns a
// single timer; re-arming replaces it and bumps a generation so a timer that
// already fired but lost the race to Touch or Disarm is ignored.
//
// A fired timer leaves the supervisor pending until the handler claims the
// generation it was given. Touch while pending re-arms, so activity that lands
// between the fire and the handler acquiring the session keeps it alive.
type Supervisor struct {
	clock     clock.WithDelayedExecution
	timeout   time.Duration
	onTimeout func(gen uint64)

	mu      sync.Mutex
	timer   clock.Timer
	gen     uint64
	armed   bool
	pending bool
}

// NewSupervisor returns a dormant supervisor. onTimeout runs on its own
// goroutine and must call Claim with the generation it receives before acting.
func NewSupervisor(clk clock.WithDelayedExecution, timeout time.Duration, onTimeout func(gen uint64)) *Supervisor {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Supervisor{clock: clk, timeout: timeout, onTimeout: onTimeout}
}

// Arm starts (or restarts) the inactivity timer.
func (s *Supervisor) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked()
}

func (s *Supervisor) armLocked() {
	s.stopLocked()
	s.gen++
	gen := s.gen
	s.armed = true
	s.pending = false
	// The fake clock runs AfterFunc callbacks synchronously under its own lock.
	s.timer = s.clock.AfterFunc(s.timeout, func() { go s.fire(gen) })
}

// Touch re-arms the timer if it is running or has fired without being claimed.
// A dormant supervisor stays dormant.
func (s *Supervisor) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed || s.pending {
		s.armLocked()
	}
}

// Disarm stops the timer and drops any unclaimed fire.
func (s *Supervisor) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.gen++
	s.armed = false
	s.pending = false
}

// Armed reports whether the timer is running.
func (s *Supervisor) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Claim reports whether gen is the fire still awaiting its handler. It
// succeeds at most once per fire and fails once Touch, Arm or Disarm ran after
// the timer went off.
func (s *Supervisor) Claim(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending || gen != s.gen {
		return false
	}
	s.pending = false
	return true
}

func (s *Supervisor) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Supervisor) fire(gen uint64) {
	s.mu.Lock()
	if !s.armed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.armed = false
	s.pending = true
	s.timer = nil
	s.mu.Unlock()
	if s.onTimeout != nil {
		s.onTimeout(gen)
	}
}
