package session

import (
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	sessiondomain "authsession/internal/session/domain"
	userdomain "authsession/internal/user/domain"
)

// StateMachine owns the authoritative session state. Every mutation is a named
// transition; anything not listed in the transition table fails with ErrInvalidState.
// Observers are notified after each transition, outside the lock.
type StateMachine struct {
	clock clock.PassiveClock

	mu           sync.Mutex
	status       sessiondomain.Status
	user         *userdomain.User
	tokens       *sessiondomain.TokenPair
	lastActivity time.Time
	deviceID     string
	lastErr      *sessiondomain.ErrorDescriptor

	observers map[int]func(sessiondomain.Snapshot)
	nextObs   int
}

// NewStateMachine returns a machine in the unauthenticated state.
func NewStateMachine(clk clock.PassiveClock) *StateMachine {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &StateMachine{
		clock:     clk,
		status:    sessiondomain.StatusUnauthenticated,
		observers: make(map[int]func(sessiondomain.Snapshot)),
	}
}

// Snapshot returns a copy of the current state.
func (m *StateMachine) Snapshot() sessiondomain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *StateMachine) snapshotLocked() sessiondomain.Snapshot {
	s := sessiondomain.Snapshot{
		Status:       m.status,
		User:         m.user.Clone(),
		LastActivity: m.lastActivity,
		DeviceID:     m.deviceID,
	}
	if m.tokens != nil {
		t := *m.tokens
		s.Tokens = &t
	}
	if m.lastErr != nil {
		e := *m.lastErr
		s.Error = &e
	}
	return s
}

// Status returns the current status.
func (m *StateMachine) Status() sessiondomain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe registers fn for snapshots after every transition. The returned func removes it.
func (m *StateMachine) Subscribe(fn func(sessiondomain.Snapshot)) (cancel func()) {
	m.mu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.observers, id)
			m.mu.Unlock()
		})
	}
}

// unsubscribeAll drops every observer.
func (m *StateMachine) unsubscribeAll() {
	m.mu.Lock()
	m.observers = make(map[int]func(sessiondomain.Snapshot))
	m.mu.Unlock()
}

// SetDeviceID records the persisted device identifier. It never changes once set.
func (m *StateMachine) SetDeviceID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deviceID == "" {
		m.deviceID = id
	}
}

// Touch records user activity.
func (m *StateMachine) Touch() {
	m.mu.Lock()
	m.lastActivity = m.clock.Now()
	m.mu.Unlock()
}

// ClearError drops the last error descriptor at the start of an operation.
func (m *StateMachine) ClearError() {
	m.mu.Lock()
	m.lastErr = nil
	m.mu.Unlock()
}

// BeginAuthentication moves unauthenticated -> authenticating.
func (m *StateMachine) BeginAuthentication() error {
	return m.transition(sessiondomain.StatusAuthenticating, func() {
		m.lastErr = nil
	}, sessiondomain.StatusUnauthenticated)
}

// CompleteAuthentication moves authenticating -> authenticated with a fresh pair and profile.
func (m *StateMachine) CompleteAuthentication(tokens sessiondomain.TokenPair, user *userdomain.User) error {
	return m.transition(sessiondomain.StatusAuthenticated, func() {
		m.setCredentials(tokens, user)
	}, sessiondomain.StatusAuthenticating)
}

// FailAuthentication moves authenticating -> failed -> unauthenticated, keeping desc as the last error.
// Observers see both states.
func (m *StateMachine) FailAuthentication(desc *sessiondomain.ErrorDescriptor) error {
	if err := m.transition(sessiondomain.StatusFailed, func() {
		m.clearCredentials()
		m.lastErr = desc
	}, sessiondomain.StatusAuthenticating); err != nil {
		return err
	}
	return m.transition(sessiondomain.StatusUnauthenticated, nil, sessiondomain.StatusFailed)
}

// Restore moves unauthenticated -> authenticated from stored credentials.
func (m *StateMachine) Restore(tokens sessiondomain.TokenPair, user *userdomain.User) error {
	return m.transition(sessiondomain.StatusAuthenticated, func() {
		m.lastErr = nil
		m.setCredentials(tokens, user)
	}, sessiondomain.StatusUnauthenticated)
}

// BeginRefresh moves authenticated -> refreshing.
func (m *StateMachine) BeginRefresh() error {
	return m.transition(sessiondomain.StatusRefreshing, nil, sessiondomain.StatusAuthenticated)
}

// CompleteRefresh moves refreshing -> authenticated with the rotated pair. A nil user keeps the cached profile.
func (m *StateMachine) CompleteRefresh(tokens sessiondomain.TokenPair, user *userdomain.User) error {
	return m.transition(sessiondomain.StatusAuthenticated, func() {
		if user == nil {
			user = m.user
		}
		t := tokens
		m.tokens = &t
		m.user = user.Clone()
	}, sessiondomain.StatusRefreshing)
}

// SignOut moves authenticated or refreshing -> unauthenticated and drops credentials.
// desc, when non-nil, is kept as the last error (e.g. a refresh failure).
// Calling it while already unauthenticated is a no-op.
func (m *StateMachine) SignOut(desc *sessiondomain.ErrorDescriptor) error {
	if m.Status() == sessiondomain.StatusUnauthenticated {
		return nil
	}
	return m.transition(sessiondomain.StatusUnauthenticated, func() {
		m.clearCredentials()
		m.lastErr = desc
	}, sessiondomain.StatusAuthenticated, sessiondomain.StatusRefreshing)
}

// SetUser replaces the cached profile while authenticated or refreshing.
func (m *StateMachine) SetUser(user *userdomain.User) error {
	m.mu.Lock()
	if !m.status.HasTokens() {
		from := m.status
		m.mu.Unlock()
		return newError(sessiondomain.KindInvalidState, "update profile", fmt.Errorf("status is %s", from))
	}
	m.user = user.Clone()
	m.lastActivity = m.clock.Now()
	snap := m.snapshotLocked()
	observers := m.observersLocked()
	m.mu.Unlock()
	notify(observers, snap)
	return nil
}

func (m *StateMachine) setCredentials(tokens sessiondomain.TokenPair, user *userdomain.User) {
	t := tokens
	m.tokens = &t
	m.user = user.Clone()
	m.lastActivity = m.clock.Now()
}

func (m *StateMachine) clearCredentials() {
	m.tokens = nil
	m.user = nil
}

// transition moves to `to` when the current status is one of `from`, applying mutate under the lock.
func (m *StateMachine) transition(to sessiondomain.Status, mutate func(), from ...sessiondomain.Status) error {
	m.mu.Lock()
	allowed := false
	for _, f := range from {
		if m.status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		cur := m.status
		m.mu.Unlock()
		return newError(sessiondomain.KindInvalidState, "transition", fmt.Errorf("%s -> %s not allowed", cur, to))
	}
	m.status = to
	if mutate != nil {
		mutate()
	}
	snap := m.snapshotLocked()
	observers := m.observersLocked()
	m.mu.Unlock()
	notify(observers, snap)
	return nil
}

func (m *StateMachine) observersLocked() []func(sessiondomain.Snapshot) {
	out := make([]func(sessiondomain.Snapshot), 0, len(m.observers))
	for _, fn := range m.observers {
		out = append(out, fn)
	}
	return out
}

func notify(observers []func(sessiondomain.Snapshot), snap sessiondomain.Snapshot) {
	for _, fn := range observers {
		fn(snap)
	}
}
