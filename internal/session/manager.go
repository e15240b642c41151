// Package session is the client-side authentication session core: a state
// machine, a single-flight token refresh coordinator, an inactivity supervisor
// and the Manager facade that composes them over a gateway.Client and a
// tokenstore.Store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	devicedomain "authsession/internal/device/domain"
	"authsession/internal/gateway"
	"authsession/internal/security"
	sessiondomain "authsession/internal/session/domain"
	"authsession/internal/telemetry"
	telemetrydomain "authsession/internal/telemetry/domain"
	"authsession/internal/tokenstore"
	userdomain "authsession/internal/user/domain"
)

// Defaults applied when the corresponding Options field is zero.
const (
	DefaultSessionTimeout = 15 * time.Minute
	DefaultExpiryLeeway   = 5 * time.Minute
	DefaultRefreshTimeout = 30 * time.Second
)

// Next actions suggested to the UI after login or signup.
const (
	NextActionVerifyEmail   = "verify-email"
	NextActionIdentitySetup = "identity-setup"
	NextActionMain          = "main"
)

// Metrics records operation outcomes. telemetry/otel.Metrics implements it.
type Metrics interface {
	RecordOutcome(ctx context.Context, op, outcome string)
}

// Options configures a Manager. Store and Gateway are required.
type Options struct {
	Store   tokenstore.Store
	Gateway gateway.Client
	// Clock drives the inactivity timer and token expiry checks. Defaults to the real clock.
	Clock clock.WithDelayedExecution

	SessionTimeout time.Duration
	ExpiryLeeway   time.Duration
	RefreshTimeout time.Duration

	// Device is reported with login and signup; DeviceID is filled in from the store.
	Device devicedomain.Info
	// NewDeviceID generates the device identifier on first use. Defaults to a random UUID.
	NewDeviceID func() string
	// Language is the fallback for error messages before a user profile is known.
	Language string

	Emitter telemetry.EventEmitter
	Metrics Metrics
	// Source tags emitted events (e.g. "authctl").
	Source string
}

// Credentials are the inputs to Login.
type Credentials struct {
	Email    string
	Password string
}

// Registration is the input to Signup.
type Registration struct {
	Email             string
	Password          string
	Username          string
	DisplayName       string
	PreferredLanguage string
}

// LogoutOptions controls Logout.
type LogoutOptions struct {
	// AllDevices asks the server to revoke every session of the user.
	AllDevices bool
}

// AuthResult is returned by Login and Signup.
type AuthResult struct {
	User                      *userdomain.User
	NextAction                string
	SessionID                 string
	IsNewUser                 bool
	RequiresEmailVerification bool
}

// Manager is the session facade. Login, Signup, Logout, the refresh leader,
// RestoreSession, UpdateProfile and the inactivity logout are serialized by opMu.
type Manager struct {
	opMu sync.Mutex

	state       *StateMachine
	coordinator *Coordinator
	supervisor  *Supervisor

	store          tokenstore.Store
	gateway        gateway.Client
	clock          clock.WithDelayedExecution
	refreshTimeout time.Duration
	device         devicedomain.Info
	newDeviceID    func() string
	language       string
	emitter        telemetry.EventEmitter
	metrics        Metrics
	source         string
	sessionID      string

	closeOnce sync.Once
}

// NewManager builds an unauthenticated Manager. Call RestoreSession once at startup.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("session: gateway is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = DefaultSessionTimeout
	}
	if opts.ExpiryLeeway <= 0 {
		opts.ExpiryLeeway = DefaultExpiryLeeway
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	if opts.NewDeviceID == nil {
		opts.NewDeviceID = uuid.NewString
	}

	m := &Manager{
		state:          NewStateMachine(opts.Clock),
		store:          opts.Store,
		gateway:        opts.Gateway,
		clock:          opts.Clock,
		refreshTimeout: opts.RefreshTimeout,
		device:         opts.Device,
		newDeviceID:    opts.NewDeviceID,
		language:       opts.Language,
		emitter:        opts.Emitter,
		metrics:        opts.Metrics,
		source:         opts.Source,
	}
	m.supervisor = NewSupervisor(opts.Clock, opts.SessionTimeout, m.handleTimeout)
	m.coordinator = &Coordinator{
		state:      m.state,
		store:      opts.Store,
		gateway:    opts.Gateway,
		supervisor: m.supervisor,
		lock:       &m.opMu,
		clock:      opts.Clock,
		leeway:     opts.ExpiryLeeway,
		timeout:    opts.RefreshTimeout,
		onFailure:  m.handleRefreshFailure,
		onSuccess:  m.handleRefreshSuccess,
	}
	return m, nil
}

// Coordinator exposes the token lifecycle coordinator (expiry checks).
func (m *Manager) Coordinator() *Coordinator { return m.coordinator }

// Snapshot returns the current session state for rendering.
func (m *Manager) Snapshot() sessiondomain.Snapshot { return m.state.Snapshot() }

// Subscribe registers fn for every state transition. Call the returned func to stop.
func (m *Manager) Subscribe(fn func(sessiondomain.Snapshot)) (cancel func()) {
	return m.state.Subscribe(fn)
}

// RecordActivity notes a user action; it re-arms the inactivity timer while authenticated.
func (m *Manager) RecordActivity() {
	if m.state.Status().HasTokens() {
		m.touch()
	}
}

// Close stops the inactivity timer and drops observers. Stored credentials are kept.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.supervisor.Disarm()
		m.state.unsubscribeAll()
	})
}

// DeviceID returns the persistent device identifier, creating it on first use.
func (m *Manager) DeviceID(ctx context.Context) (string, error) {
	if id := m.state.Snapshot().DeviceID; id != "" {
		return id, nil
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()
	id, err := m.ensureDeviceID(ctx)
	if err != nil {
		return "", newError(sessiondomain.KindStorageFailure, "device id", err)
	}
	return id, nil
}

// Login exchanges credentials for a session. Requires the unauthenticated state.
func (m *Manager) Login(ctx context.Context, creds Credentials) (*AuthResult, error) {
	const op = "login"
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.state.BeginAuthentication(); err != nil {
		return nil, relabel(err, op)
	}
	deviceID, err := m.ensureDeviceID(ctx)
	if err != nil {
		return nil, m.failAuthentication(ctx, op, sessiondomain.KindStorageFailure, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	resp, err := m.gateway.Login(callCtx, gateway.LoginRequest{
		Email:    strings.TrimSpace(creds.Email),
		Password: creds.Password,
		Device:   m.deviceInfo(deviceID),
	})
	cancel()
	if err != nil {
		return nil, m.failAuthentication(ctx, op, classifyGateway(err), err)
	}

	result := &AuthResult{
		User:       resp.User,
		SessionID:  resp.SessionID,
		IsNewUser:  resp.IsNewUser,
		NextAction: nextAction(resp.NextAction, false, resp.User),
	}
	if err := m.establish(ctx, op, resp.AccessToken, resp.RefreshToken, result); err != nil {
		return nil, err
	}
	m.emit(ctx, telemetrydomain.EventLogin, "")
	return result, nil
}

// Signup registers an account and signs it in. Requires the unauthenticated state.
func (m *Manager) Signup(ctx context.Context, reg Registration) (*AuthResult, error) {
	const op = "signup"
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.state.BeginAuthentication(); err != nil {
		return nil, relabel(err, op)
	}
	deviceID, err := m.ensureDeviceID(ctx)
	if err != nil {
		return nil, m.failAuthentication(ctx, op, sessiondomain.KindStorageFailure, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	resp, err := m.gateway.Register(callCtx, gateway.RegisterRequest{
		Email:             strings.TrimSpace(reg.Email),
		Password:          reg.Password,
		Username:          strings.TrimSpace(reg.Username),
		DisplayName:       strings.TrimSpace(reg.DisplayName),
		PreferredLanguage: reg.PreferredLanguage,
		Device:            m.deviceInfo(deviceID),
	})
	cancel()
	if err != nil {
		return nil, m.failAuthentication(ctx, op, classifyGateway(err), err)
	}

	result := &AuthResult{
		User:                      resp.User,
		SessionID:                 resp.SessionID,
		IsNewUser:                 true,
		RequiresEmailVerification: resp.RequiresEmailVerification,
		NextAction:                nextAction(resp.NextAction, resp.RequiresEmailVerification, resp.User),
	}
	if err := m.establish(ctx, op, resp.AccessToken, resp.RefreshToken, result); err != nil {
		return nil, err
	}
	m.emit(ctx, telemetrydomain.EventSignup, "")
	return result, nil
}

// establish persists freshly issued credentials and completes authentication. Caller holds opMu.
func (m *Manager) establish(ctx context.Context, op, access, refresh string, result *AuthResult) error {
	if access == "" || refresh == "" {
		return m.failAuthentication(ctx, op, sessiondomain.KindServerError, errors.New("gateway returned no tokens"))
	}
	if err := result.User.Validate(); err != nil {
		return m.failAuthentication(ctx, op, sessiondomain.KindServerError, fmt.Errorf("gateway returned invalid user: %w", err))
	}
	if err := m.store.StoreTokens(ctx, tokenstore.Record{AccessToken: access, RefreshToken: refresh, User: result.User}); err != nil {
		return m.failAuthentication(ctx, op, sessiondomain.KindStorageFailure, err)
	}
	if err := m.state.CompleteAuthentication(sessiondomain.TokenPair{AccessToken: access, RefreshToken: refresh}, result.User); err != nil {
		return relabel(err, op)
	}
	m.sessionID = result.SessionID
	result.User = result.User.Clone()
	m.supervisor.Arm()
	m.recordOutcome(ctx, op, "success")
	log.Printf("session: %s ok user=%s device=%s", op, result.User.ID, m.state.Snapshot().DeviceID)
	return nil
}

func (m *Manager) failAuthentication(ctx context.Context, op string, kind sessiondomain.ErrorKind, cause error) error {
	e := newError(kind, op, cause)
	if err := m.state.FailAuthentication(descriptor(e, m.language)); err != nil {
		log.Printf("session: %s: %v", op, err)
	}
	m.recordOutcome(ctx, op, string(kind))
	m.emit(ctx, telemetrydomain.EventLoginFailed, string(kind))
	log.Printf("session: %s failed: %v", op, e)
	return e
}

// Logout ends the session locally and best-effort on the server. It is safe to call in any state
// and never fails: server and storage errors are logged.
func (m *Manager) Logout(ctx context.Context, opts LogoutOptions) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.state.ClearError()
	m.logoutLocked(ctx, opts.AllDevices, telemetrydomain.ReasonUser, true, nil)
}

// logoutLocked tears the session down. Caller holds opMu.
func (m *Manager) logoutLocked(ctx context.Context, allDevices bool, reason string, notifyServer bool, desc *sessiondomain.ErrorDescriptor) {
	ctx = context.WithoutCancel(ctx)
	snap := m.state.Snapshot()
	m.supervisor.Disarm()

	if notifyServer && snap.Tokens != nil && snap.Tokens.AccessToken != "" {
		callCtx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
		err := m.gateway.Logout(callCtx, gateway.LogoutRequest{
			AccessToken: snap.Tokens.AccessToken,
			DeviceID:    snap.DeviceID,
			AllDevices:  allDevices,
		})
		cancel()
		if err != nil {
			log.Printf("session: server logout failed (continuing locally): %v", err)
		}
	}
	if err := m.store.ClearTokens(ctx); err != nil {
		log.Printf("session: logout: %v", newError(sessiondomain.KindStorageFailure, "logout", err))
	}
	if err := m.state.SignOut(desc); err != nil {
		log.Printf("session: logout: %v", err)
	}

	if snap.Status.HasTokens() {
		m.recordOutcome(ctx, "logout", reason)
		ev := m.event(telemetrydomain.EventLogout, reason)
		if snap.User != nil {
			ev.UserID = snap.User.ID
		}
		telemetry.EmitAsync(m.emitter, ctx, ev)
		log.Printf("session: logged out reason=%s", reason)
	}
	m.sessionID = ""
}

// GetValidToken returns a usable access token, refreshing first when it is expired or expiring soon.
// It returns "" when the refresh failed (the session has then been logged out). An error is returned
// only when no session exists (ErrInvalidState) or ctx ended while waiting.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	ok, err := m.RefreshIfNeeded(ctx)
	if err != nil || !ok {
		return "", err
	}
	snap := m.state.Snapshot()
	if snap.Tokens == nil {
		return "", nil
	}
	return snap.Tokens.AccessToken, nil
}

// RefreshIfNeeded reports whether a usable session exists after refreshing when needed.
// A failed refresh is absorbed into logout and reported as (false, nil); the snapshot error carries RefreshFailed.
// Without a session the snapshot error is left alone: it explains how the session ended.
// A live session carries no error; entering authenticated clears it.
func (m *Manager) RefreshIfNeeded(ctx context.Context) (bool, error) {
	if status := m.state.Status(); !status.HasTokens() {
		return false, newError(sessiondomain.KindInvalidState, "refresh", fmt.Errorf("status is %s", status))
	}
	_, err := m.coordinator.RefreshIfNeeded(ctx)
	switch {
	case err == nil:
		m.touch()
		return true, nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return false, err
	default:
		return false, nil
	}
}

func (m *Manager) handleRefreshFailure(ctx context.Context, cause error) {
	log.Printf("session: refresh failed, logging out: %v", cause)
	m.recordOutcome(ctx, "refresh", "failure")
	m.emit(ctx, telemetrydomain.EventRefreshFailed, "")
	e := newError(sessiondomain.KindRefreshFailed, "refresh", cause)
	m.logoutLocked(ctx, false, telemetrydomain.ReasonRefreshFailed, !gateway.IsTransient(cause), descriptor(e, m.userLanguage()))
}

func (m *Manager) handleRefreshSuccess(ctx context.Context) {
	m.recordOutcome(ctx, "refresh", "success")
	m.emit(ctx, telemetrydomain.EventRefresh, "")
	if snap := m.state.Snapshot(); snap.Tokens != nil {
		log.Printf("session: refreshed tokens refresh=%s", security.TokenFingerprint(snap.Tokens.RefreshToken))
	}
}

// handleTimeout runs when the inactivity timer for gen fires. Activity that reached the supervisor
// after the fire, or a refresh or logout that disarmed it, wins over the timeout.
func (m *Manager) handleTimeout(gen uint64) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if !m.supervisor.Claim(gen) {
		log.Printf("session: inactivity timeout superseded")
		return
	}
	if m.state.Status() != sessiondomain.StatusAuthenticated {
		return
	}
	e := newError(sessiondomain.KindTokenExpired, "timeout", errors.New("inactivity timeout"))
	m.logoutLocked(context.Background(), false, telemetrydomain.ReasonTimeout, true, descriptor(e, m.userLanguage()))
}

// RestoreSession loads a stored session at startup. A valid access token restores the session
// without network calls; an expired one is refreshed once. Any failure leaves the Manager
// unauthenticated and, for corrupt or unreadable storage, returns an InitializationError.
func (m *Manager) RestoreSession(ctx context.Context) error {
	const op = "restore"
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if status := m.state.Status(); status != sessiondomain.StatusUnauthenticated {
		return newError(sessiondomain.KindInvalidState, op, fmt.Errorf("status is %s", status))
	}
	m.state.ClearError()
	deviceID, err := m.ensureDeviceID(ctx)
	if err != nil {
		return m.degrade(ctx, op, err, false)
	}
	rec, err := m.store.Load(ctx)
	if err != nil {
		return m.degrade(ctx, op, err, tokenstore.IsCorrupt(err))
	}
	if rec == nil {
		m.recordOutcome(ctx, "restore", "empty")
		return nil
	}
	if err := rec.User.Validate(); err != nil {
		return m.degrade(ctx, op, fmt.Errorf("stored user: %w", err), true)
	}

	if !m.coordinator.IsExpired(rec.AccessToken) {
		if err := m.state.Restore(sessiondomain.TokenPair{AccessToken: rec.AccessToken, RefreshToken: rec.RefreshToken}, rec.User); err != nil {
			return relabel(err, op)
		}
		m.supervisor.Arm()
		m.recordOutcome(ctx, "restore", "success")
		m.emit(ctx, telemetrydomain.EventRestore, "")
		log.Printf("session: restored user=%s device=%s", rec.User.ID, deviceID)
		return nil
	}

	// Expired: one refresh attempt through the authenticating state.
	if err := m.state.BeginAuthentication(); err != nil {
		return relabel(err, op)
	}
	refreshed, err := m.coordinator.exchange(context.WithoutCancel(ctx), rec.RefreshToken, deviceID, rec.User)
	if err != nil {
		log.Printf("session: restore refresh failed: %v", err)
		if cerr := m.store.ClearTokens(ctx); cerr != nil {
			log.Printf("session: restore: clear store: %v", cerr)
		}
		e := newError(sessiondomain.KindTokenExpired, op, err)
		if ferr := m.state.FailAuthentication(descriptor(e, rec.User.PreferredLanguage)); ferr != nil {
			log.Printf("session: restore: %v", ferr)
		}
		m.recordOutcome(ctx, "restore", "expired")
		m.emit(ctx, telemetrydomain.EventLogout, telemetrydomain.ReasonRestoreFailed)
		return nil
	}
	if err := m.state.CompleteAuthentication(sessiondomain.TokenPair{AccessToken: refreshed.AccessToken, RefreshToken: refreshed.RefreshToken}, refreshed.User); err != nil {
		return relabel(err, op)
	}
	m.supervisor.Arm()
	m.recordOutcome(ctx, "restore", "refreshed")
	m.emit(ctx, telemetrydomain.EventRestore, "")
	log.Printf("session: restored with refresh user=%s refresh=%s", refreshed.User.ID, security.TokenFingerprint(refreshed.RefreshToken))
	return nil
}

// degrade reports an InitializationError. Stored auth material is cleared only when it is
// unusable; a backend that could not be read keeps it for the next start. Caller holds opMu.
func (m *Manager) degrade(ctx context.Context, op string, cause error, unusable bool) error {
	e := newError(sessiondomain.KindInitialization, op, cause)
	log.Printf("session: %v", e)
	if !unusable {
		m.recordOutcome(ctx, "restore", "unavailable")
		return e
	}
	if err := m.store.ClearTokens(context.WithoutCancel(ctx)); err != nil {
		log.Printf("session: restore: clear store: %v", err)
	}
	m.recordOutcome(ctx, "restore", "degraded")
	return e
}

// UpdateProfile merges update into the cached profile and re-persists it with the current tokens.
func (m *Manager) UpdateProfile(ctx context.Context, update userdomain.ProfileUpdate) (*userdomain.User, error) {
	const op = "update profile"
	m.opMu.Lock()
	defer m.opMu.Unlock()

	snap := m.state.Snapshot()
	if !snap.Status.HasTokens() || snap.Tokens == nil {
		return nil, newError(sessiondomain.KindInvalidState, op, fmt.Errorf("status is %s", snap.Status))
	}
	m.state.ClearError()
	if update.IsEmpty() {
		m.touch()
		return snap.User, nil
	}
	merged := snap.User.Apply(update)
	if err := merged.Validate(); err != nil {
		return nil, newError(sessiondomain.KindInvalidState, op, err)
	}
	if err := m.store.StoreTokens(ctx, tokenstore.Record{
		AccessToken:  snap.Tokens.AccessToken,
		RefreshToken: snap.Tokens.RefreshToken,
		User:         merged,
	}); err != nil {
		return nil, newError(sessiondomain.KindStorageFailure, op, err)
	}
	if err := m.state.SetUser(merged); err != nil {
		return nil, relabel(err, op)
	}
	m.touch()
	return merged.Clone(), nil
}

// ensureDeviceID loads the device id, generating and persisting it on first use. Caller holds opMu.
func (m *Manager) ensureDeviceID(ctx context.Context) (string, error) {
	if id := m.state.Snapshot().DeviceID; id != "" {
		return id, nil
	}
	id, ok, err := tokenstore.Get[string](ctx, m.store, tokenstore.KeyDeviceID)
	if err != nil {
		return "", newError(sessiondomain.KindStorageFailure, "device id", err)
	}
	if !ok || id == "" {
		id = m.newDeviceID()
		if err := tokenstore.Set(ctx, m.store, tokenstore.KeyDeviceID, id); err != nil {
			return "", newError(sessiondomain.KindStorageFailure, "device id", err)
		}
		log.Printf("session: registered device %s", id)
	}
	m.state.SetDeviceID(id)
	return id, nil
}

func (m *Manager) deviceInfo(deviceID string) devicedomain.Info {
	info := m.device
	info.DeviceID = deviceID
	return info
}

func (m *Manager) touch() {
	m.state.Touch()
	m.supervisor.Touch()
}

func (m *Manager) userLanguage() string {
	if u := m.state.Snapshot().User; u != nil && u.PreferredLanguage != "" {
		return u.PreferredLanguage
	}
	return m.language
}

func (m *Manager) recordOutcome(ctx context.Context, op, outcome string) {
	if m.metrics != nil {
		m.metrics.RecordOutcome(ctx, op, outcome)
	}
}

func (m *Manager) event(t telemetrydomain.EventType, reason string) *telemetrydomain.Event {
	snap := m.state.Snapshot()
	ev := &telemetrydomain.Event{
		Type:      t,
		DeviceID:  snap.DeviceID,
		SessionID: m.sessionID,
		Reason:    reason,
		Source:    m.source,
		CreatedAt: m.clock.Now().UTC(),
	}
	if snap.User != nil {
		ev.UserID = snap.User.ID
	}
	return ev
}

func (m *Manager) emit(ctx context.Context, t telemetrydomain.EventType, reason string) {
	telemetry.EmitAsync(m.emitter, ctx, m.event(t, reason))
}

// nextAction prefers the server's hint, then email verification, then identity setup.
func nextAction(fromServer string, requiresVerification bool, u *userdomain.User) string {
	switch {
	case fromServer != "":
		return fromServer
	case requiresVerification:
		return NextActionVerifyEmail
	case u.NeedsIdentitySetup():
		return NextActionIdentitySetup
	default:
		return NextActionMain
	}
}

// relabel attributes a state machine error to the facade operation that triggered it.
func relabel(err error, op string) error {
	var se *Error
	if errors.As(err, &se) {
		return &Error{Kind: se.Kind, Op: op, Err: se.Err}
	}
	return err
}
