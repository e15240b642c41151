package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authsession/internal/gateway"
	sessiondomain "authsession/internal/session/domain"
	telemetrydomain "authsession/internal/telemetry/domain"
	"authsession/internal/tokenstore"
	userdomain "authsession/internal/user/domain"
)

func TestNewManager_RequiresCollaborators(t *testing.T) {
	store, _ := newStore(t)
	_, err := NewManager(Options{Gateway: newFakeGateway()})
	assert.Error(t, err)
	_, err = NewManager(Options{Store: store})
	assert.Error(t, err)
}

func TestLogin_Success(t *testing.T) {
	h := newHarness(t, nil)
	access := h.token("access", time.Hour)
	h.gateway.loginResp = &gateway.LoginResponse{
		AccessToken:  access,
		RefreshToken: "refresh-1",
		User:         &userdomain.User{ID: "user-1", Email: "a@b.com"},
		SessionID:    "sess-1",
	}

	res, err := h.manager.Login(context.Background(), Credentials{Email: " a@b.com ", Password: "Secret123!"})
	require.NoError(t, err)

	assert.Equal(t, "user-1", res.User.ID)
	assert.Equal(t, "sess-1", res.SessionID)
	assert.Equal(t, NextActionIdentitySetup, res.NextAction)
	assert.False(t, res.IsNewUser)

	snap := h.manager.Snapshot()
	assert.Equal(t, sessiondomain.StatusAuthenticated, snap.Status)
	require.NotNil(t, snap.Tokens)
	assert.Equal(t, access, snap.Tokens.AccessToken)
	assert.Equal(t, access, h.storedAccessToken(t))
	assert.Equal(t, "device-1", snap.DeviceID)
	assert.Nil(t, snap.Error)

	assert.Equal(t, "a@b.com", h.gateway.lastLogin.Email)
	assert.Equal(t, "Secret123!", h.gateway.lastLogin.Password)
	assert.Equal(t, "device-1", h.gateway.lastLogin.Device.DeviceID)
	assert.True(t, h.manager.supervisor.Armed())

	stored, err := h.store.User(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.ID)
}

func TestLogin_ServerNextActionWins(t *testing.T) {
	h := newHarness(t, nil)
	h.gateway.loginResp = &gateway.LoginResponse{
		AccessToken:  h.token("access", time.Hour),
		RefreshToken: "refresh-1",
		User:         testUser(),
		NextAction:   "accept-terms",
	}
	res, err := h.manager.Login(context.Background(), Credentials{Email: "a@b.com", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, "accept-terms", res.NextAction)
}

func TestLogin_FailureKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
		kind sessiondomain.ErrorKind
	}{
		{"invalid credentials", &gateway.StatusError{Op: "login", Status: 401, Err: gateway.ErrInvalidCredentials}, ErrInvalidCredentials, sessiondomain.KindInvalidCredentials},
		{"network", &gateway.StatusError{Op: "login", Err: gateway.ErrUnavailable}, ErrNetworkUnavailable, sessiondomain.KindNetworkUnavailable},
		{"server", &gateway.StatusError{Op: "login", Status: 500, Err: gateway.ErrServer}, ErrServerError, sessiondomain.KindServerError},
		{"malformed", &gateway.StatusError{Op: "login", Err: gateway.ErrMalformedResponse}, ErrServerError, sessiondomain.KindServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.gateway.loginErr = tt.err

			var statuses []sessiondomain.Status
			var mu sync.Mutex
			h.manager.Subscribe(func(s sessiondomain.Snapshot) {
				mu.Lock()
				statuses = append(statuses, s.Status)
				mu.Unlock()
			})

			res, err := h.manager.Login(context.Background(), Credentials{Email: "a@b.com", Password: "bad"})
			assert.Nil(t, res)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.True(t, errors.Is(err, tt.err), "cause should be preserved")

			snap := h.manager.Snapshot()
			assert.Equal(t, sessiondomain.StatusUnauthenticated, snap.Status)
			assert.Nil(t, snap.Tokens)
			require.NotNil(t, snap.Error)
			assert.Equal(t, tt.kind, snap.Error.Kind)
			assert.NotEmpty(t, snap.Error.Message)
			assert.Empty(t, h.storedAccessToken(t))

			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, []sessiondomain.Status{
				sessiondomain.StatusAuthenticating,
				sessiondomain.StatusFailed,
				sessiondomain.StatusUnauthenticated,
			}, statuses)
		})
	}
}

func TestLogin_ErrorClearedOnNextOperation(t *testing.T) {
	h := newHarness(t, nil)
	h.gateway.loginErr = &gateway.StatusError{Op: "login", Status: 401, Err: gateway.ErrInvalidCredentials}
	_, err := h.manager.Login(context.Background(), Credentials{Email: "a@b.com", Password: "bad"})
	require.Error(t, err)
	require.NotNil(t, h.manager.Snapshot().Error)

	h.gateway.loginErr = nil
	h.login(t, time.Hour)
	assert.Nil(t, h.manager.Snapshot().Error)
}

func TestLogin_StorageFailure(t *testing.T) {
	var fs *failingStore
	h := newHarness(t, func(o *Options) {
		fs = &failingStore{Store: o.Store, storeErr: errDiskFull}
		o.Store = fs
	})
	h.gateway.loginResp = &gateway.LoginResponse{AccessToken: h.token("a", time.Hour), RefreshToken: "r", User: testUser()}

	_, err := h.manager.Login(context.Background(), Credentials{Email: "a@b.com", Password: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, sessiondomain.StatusUnauthenticated, h.manager.Snapshot().Status)
	assert.False(t, h.manager.supervisor.Armed())
}

func TestLogin_InvalidUserFromGateway(t *testing.T) {
	h := newHarness(t, nil)
	h.gateway.loginResp = &gateway.LoginResponse{AccessToken: h.token("a", time.Hour), RefreshToken: "r", User: nil}

	_, err := h.manager.Login(context.Background(), Credentials{Email: "a@b.com", Password: "x"})
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, sessiondomain.StatusUnauthenticated, h.manager.Snapshot().Status)
}

func TestLogin_RequiresUnauthenticated(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, time.Hour)

	_, err := h.manager.Login(context.Background(), Credentials{Email: "a@b.com", Password: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, h.gateway.count("login"))
	assert.Equal(t, sessiondomain.StatusAuthenticated, h.manager.Snapshot().Status)
}

func TestSignup(t *testing.T) {
	h := newHarness(t, nil)
	h.gateway.registerResp = &gateway.RegisterResponse{
		AccessToken:               h.token("access", time.Hour),
		RefreshToken:              "refresh-1",
		User:                      testUser(),
		SessionID:                 "sess-2",
		RequiresEmailVerification: true,
	}

	res, err := h.manager.Signup(context.Background(), Registration{Email: "a@b.com", Password: "Secret123!", Username: "ab"})
	require.NoError(t, err)
	assert.True(t, res.IsNewUser)
	assert.True(t, res.RequiresEmailVerification)
	assert.Equal(t, NextActionVerifyEmail, res.NextAction)
	assert.Equal(t, sessiondomain.StatusAuthenticated, h.manager.Snapshot().Status)
	assert.Equal(t, 1, h.gateway.count("register"))
}

func TestSignup_Rejected(t *testing.T) {
	h := newHarness(t, nil)
	h.gateway.registerErr = &gateway.StatusError{Op: "register", Status: 409, Err: gateway.ErrRejected}

	_, err := h.manager.Signup(context.Background(), Registration{Email: "a@b.com", Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, sessiondomain.StatusUnauthenticated, h.manager.Snapshot().Status)
}

func TestGetValidToken_FreshTokenNoNetwork(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, time.Hour)

	tok, err := h.manager.GetValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, h.manager.Snapshot().Tokens.AccessToken, tok)
	assert.Equal(t, 0, h.gateway.count("refresh"))
}

func TestGetValidToken_Unauthenticated(t *testing.T) {
	h := newHarness(t, nil)
	tok, err := h.manager.GetValidToken(context.Background())
	assert.Empty(t, tok)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestGetValidToken_RefreshesExpiringToken(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, 4*time.Minute)
	newAccess := h.token("access-rotated", time.Hour)
	h.gateway.refreshResp = &gateway.RefreshResponse{AccessToken: newAccess, RefreshToken: "refresh-2"}

	tok, err := h.manager.GetValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, newAccess, tok)
	assert.Equal(t, newAccess, h.storedAccessToken(t))
	assert.Equal(t, "refresh-login", h.gateway.lastRefresh.RefreshToken)
	assert.Equal(t, "device-1", h.gateway.lastRefresh.DeviceID)

	refresh, err := h.store.RefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", refresh)

	// Profile is kept when the server does not send one.
	assert.Equal(t, "user-1", h.manager.Snapshot().User.ID)
	assert.True(t, h.manager.supervisor.Armed())
}

func TestRefresh_SingleFlight(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, 4*time.Minute)
	newAccess := h.token("access-rotated", time.Hour)
	h.gateway.refreshResp = &gateway.RefreshResponse{AccessToken: newAccess, RefreshToken: "refresh-2"}
	gate := make(chan struct{})
	h.gateway.refreshGate = gate

	const callers = 10
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = h.manager.GetValidToken(context.Background())
		}(i)
	}

	select {
	case <-h.gateway.refreshStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh never started")
	}
	close(gate)
	wg.Wait()

	assert.Equal(t, 1, h.gateway.count("refresh"))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, newAccess, tokens[i], "caller %d", i)
	}
	assert.Equal(t, newAccess, h.storedAccessToken(t))
	assert.Equal(t, sessiondomain.StatusAuthenticated, h.manager.Snapshot().Status)
}

func TestRefresh_ServerErrorLogsOut(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, 4*time.Minute)
	h.gateway.refreshErr = &gateway.StatusError{Op: "refresh", Status: 500, Err: gateway.ErrServer}
	gate := make(chan struct{})
	h.gateway.refreshGate = gate

	const callers = 5
	var wg sync.WaitGroup
	results := make([]bool, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.manager.RefreshIfNeeded(context.Background())
		}(i)
	}
	<-h.gateway.refreshStarted
	assert.Equal(t, sessiondomain.StatusRefreshing, h.manager.Snapshot().Status)
	assert.False(t, h.manager.supervisor.Armed(), "supervisor must be disarmed while refreshing")
	close(gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		assert.False(t, results[i])
		if errs[i] != nil {
			// Callers that arrive after the logout see the ended session.
			assert.ErrorIs(t, errs[i], ErrInvalidState)
		}
	}
	snap := h.manager.Snapshot()
	assert.Equal(t, sessiondomain.StatusUnauthenticated, snap.Status)
	assert.Nil(t, snap.Tokens)
	require.NotNil(t, snap.Error)
	assert.Equal(t, sessiondomain.KindRefreshFailed, snap.Error.Kind)
	assert.Empty(t, h.storedAccessToken(t))
	assert.Equal(t, 1, h.gateway.count("refresh"))
	assert.Equal(t, 1, h.gateway.count("logout"), "one logout for all joined callers")
	assert.False(t, h.manager.supervisor.Armed())

	tok, err := h.manager.GetValidToken(context.Background())
	assert.Empty(t, tok)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRefresh_NetworkFailureSkipsServerLogout(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, -time.Minute)
	h.gateway.refreshErr = &gateway.StatusError{Op: "refresh", Err: gateway.ErrUnavailable}

	tok, err := h.manager.GetValidToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tok)
	assert.Equal(t, sessiondomain.StatusUnauthenticated, h.manager.Snapshot().Status)
	assert.Equal(t, 0, h.gateway.count("logout"))
}

func TestRefresh_StoreFailureLogsOut(t *testing.T) {
	var fs *failingStore
	h := newHarness(t, func(o *Options) {
		fs = &failingStore{Store: o.Store}
		o.Store = fs
	})
	h.login(t, time.Minute)
	fs.storeErr = errDiskFull
	h.gateway.refreshResp = &gateway.RefreshResponse{AccessToken: h.token("rotated", time.Hour), RefreshToken: "refresh-2"}

	ok, err := h.manager.RefreshIfNeeded(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, sessiondomain.StatusUnauthenticated, h.manager.Snapshot().Status)
	assert.Empty(t, h.storedAccessToken(t))
}

func TestRefresh_CallerCancellationDoesNotAbortFlight(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, time.Minute)
	newAccess := h.token("rotated", time.Hour)
	h.gateway.refreshResp = &gateway.RefreshResponse{AccessToken: newAccess, RefreshToken: "refresh-2"}
	gate := make(chan struct{})
	h.gateway.refreshGate = gate

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.manager.GetValidToken(ctx)
		done <- err
	}()
	<-h.gateway.refreshStarted
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(gate)
	require.Eventually(t, func() bool {
		return h.storedAccessToken(t) == newAccess
	}, 2*time.Second, 10*time.Millisecond)
	tok, err := h.manager.GetValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, newAccess, tok)
}

func TestRefresh_TimeoutReleasesFlight(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.RefreshTimeout = 50 * time.Millisecond })
	h.login(t, time.Minute)
	h.gateway.refreshGate = make(chan struct{})

	ok, err := h.manager.RefreshIfNeeded(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, sessiondomain.StatusUnauthenticated, h.manager.Snapshot().Status)

	// A later login and refresh are not wedged behind the timed-out flight.
	h.gateway.refreshGate = nil
	h.login(t, time.Minute)
	h.gateway.refreshResp = &gateway.RefreshResponse{AccessToken: h.token("rotated", time.Hour), RefreshToken: "refresh-3"}
	ok, err = h.manager.RefreshIfNeeded(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLogout_WaitsForInFlightRefresh(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, time.Minute)
	rotated := h.token("rotated", time.Hour)
	h.gateway.refreshResp = &gateway.RefreshResponse{AccessToken: rotated, RefreshToken: "refresh-2"}
	gate := make(chan struct{})
	h.gateway.refreshGate = gate

	go func() { _, _ = h.manager.GetValidToken(context.Background()) }()
	<-h.gateway.refreshStarted

	logoutDone := make(chan struct{})
	go func() {
		h.manager.Logout(context.Background(), LogoutOptions{})
		close(logoutDone)
	}()
	assert.Never(t, func() bool {
		select {
		case <-logoutDone:
			return true
		default:
			return false
		}
	}, 100*time.Millisecond, 10*time.Millisecond)

	close(gate)
	<-logoutDone
	assert.Equal(t, sessiondomain.StatusUnauthenticated, h.manager.Snapshot().Status)
	assert.Empty(t, h.storedAccessToken(t))
	// The server is told about the rotated session, not the consumed one.
	assert.Equal(t, rotated, h.gateway.lastLogout.AccessToken)
}

func TestLogout_Idempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, time.Hour)

	h.manager.Logout(context.Background(), LogoutOptions{AllDevices: true})
	h.manager.Logout(context.Background(), LogoutOptions{})

	assert.Equal(t, 1, h.gateway.count("logout"))
	assert.True(t, h.gateway.lastLogout.AllDevices)
	assert.Equal(t, "device-1", h.gateway.lastLogout.DeviceID)
	assert.Equal(t, sessiondomain.StatusUnauthenticated, h.manager.Snapshot().Status)
	assert.Empty(t, h.storedAccessToken(t))
	assert.False(t, h.manager.supervisor.Armed())

	// Device id survives logout.
	id, ok, err := tokenstore.Get[string](context.Background(), h.store, tokenstore.KeyDeviceID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "device-1", id)
}

func TestLogout_FromFreshManager(t *testing.T) {
	h := newHarness(t, nil)
	h.manager.Logout(context.Background(), LogoutOptions{})
	assert.Equal(t, sessiondomain.StatusUnauthenticated, h.manager.Snapshot().Status)
	assert.Equal(t, 0, h.gateway.total())
}

func TestLogout_ServerAndStorageFailuresDoNotBlock(t *testing.T) {
	var fs *failingStore
	h := newHarness(t, func(o *Options) {
		fs = &failingStore{Store: o.Store}
		o.Store = fs
	})
	h.login(t, time.Hour)
	h.gateway.logoutErr = &gateway.StatusError{Op: "logout", Err: gateway.ErrUnavailable}
	fs.clearErr = errDiskFull

	h.manager.Logout(context.Background(), LogoutOptions{})

	snap := h.manager.Snapshot()
	assert.Equal(t, sessiondomain.StatusUnauthenticated, snap.Status)
	assert.Nil(t, snap.Tokens)
	assert.Nil(t, snap.User)
}

func TestLogout_CancelledContextStillNotifiesServer(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h.manager.Logout(ctx, LogoutOptions{})
	assert.Equal(t, 1, h.gateway.count("logout"))
	assert.Empty(t, h.storedAccessToken(t))
}

func TestUpdateProfile(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, time.Hour)
	name := "  New Name "
	lang := "es"

	u, err := h.manager.UpdateProfile(context.Background(), userdomain.ProfileUpdate{DisplayName: &name, PreferredLanguage: &lang})
	require.NoError(t, err)
	assert.Equal(t, "New Name", u.DisplayName)
	assert.Equal(t, "ab", u.Username)

	stored, err := h.store.User(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "New Name", stored.DisplayName)
	assert.Equal(t, "es", stored.PreferredLanguage)
	assert.Equal(t, h.manager.Snapshot().Tokens.AccessToken, h.storedAccessToken(t))
	assert.Equal(t, "New Name", h.manager.Snapshot().User.DisplayName)
	assert.Equal(t, 0, h.gateway.count("refresh"))
}

func TestUpdateProfile_RequiresSession(t *testing.T) {
	h := newHarness(t, nil)
	name := "x"
	_, err := h.manager.UpdateProfile(context.Background(), userdomain.ProfileUpdate{DisplayName: &name})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUpdateProfile_StorageFailureKeepsProfile(t *testing.T) {
	var fs *failingStore
	h := newHarness(t, func(o *Options) {
		fs = &failingStore{Store: o.Store}
		o.Store = fs
	})
	h.login(t, time.Hour)
	fs.storeErr = errDiskFull
	name := "Other"

	_, err := h.manager.UpdateProfile(context.Background(), userdomain.ProfileUpdate{DisplayName: &name})
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.Equal(t, "A B", h.manager.Snapshot().User.DisplayName)
	assert.Equal(t, sessiondomain.StatusAuthenticated, h.manager.Snapshot().Status)
}

func TestDeviceID_Stable(t *testing.T) {
	store, _ := newStore(t)
	n := 0
	newID := func() string { n++; return "generated" }
	m1, err := NewManager(Options{Store: store, Gateway: newFakeGateway(), NewDeviceID: newID})
	require.NoError(t, err)
	defer m1.Close()

	id1, err := m1.DeviceID(context.Background())
	require.NoError(t, err)
	m2, err := NewManager(Options{Store: store, Gateway: newFakeGateway(), NewDeviceID: func() string { return "other" }})
	require.NoError(t, err)
	defer m2.Close()
	id2, err := m2.DeviceID(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "generated", id1)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, n)
}

func TestRecordActivity_UnauthenticatedIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	h.manager.RecordActivity()
	assert.False(t, h.manager.supervisor.Armed())
	assert.True(t, h.manager.Snapshot().LastActivity.IsZero())
}

func TestAuthOutcomesRecordedPerOperation(t *testing.T) {
	metrics := &recordingMetrics{}
	h := newHarness(t, func(o *Options) { o.Metrics = metrics })

	h.gateway.registerErr = &gateway.StatusError{Op: "register", Status: 409, Err: gateway.ErrRejected}
	_, err := h.manager.Signup(context.Background(), Registration{Email: "a@b.com", Password: "x"})
	require.Error(t, err)

	h.gateway.registerErr = nil
	h.gateway.registerResp = &gateway.RegisterResponse{
		AccessToken:  h.token("access", time.Hour),
		RefreshToken: "refresh-1",
		User:         testUser(),
	}
	_, err = h.manager.Signup(context.Background(), Registration{Email: "a@b.com", Password: "Secret123!", Username: "ab"})
	require.NoError(t, err)
	h.manager.Logout(context.Background(), LogoutOptions{})

	h.login(t, time.Hour)

	assert.Equal(t, []string{
		"signup/" + string(sessiondomain.KindInvalidCredentials),
		"signup/success",
		"logout/" + telemetrydomain.ReasonUser,
		"login/success",
	}, metrics.recorded())
}

func TestLogout_ClearsStaleError(t *testing.T) {
	h := newHarness(t, nil)
	h.gateway.loginErr = &gateway.StatusError{Op: "login", Status: 401, Err: gateway.ErrInvalidCredentials}
	_, err := h.manager.Login(context.Background(), Credentials{Email: "a@b.com", Password: "bad"})
	require.Error(t, err)
	require.NotNil(t, h.manager.Snapshot().Error)

	h.manager.Logout(context.Background(), LogoutOptions{})
	assert.Nil(t, h.manager.Snapshot().Error)
	assert.Equal(t, sessiondomain.StatusUnauthenticated, h.manager.Snapshot().Status)
	assert.Equal(t, 0, h.gateway.count("logout"), "no session, no server call")
}

func TestRefreshIfNeeded_SignedOutKeepsEndReason(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t, time.Hour)
	h.clock.Step(5 * time.Second)
	require.Eventually(t, func() bool {
		return h.manager.Snapshot().Status == sessiondomain.StatusUnauthenticated
	}, 2*time.Second, 10*time.Millisecond)

	_, err := h.manager.RefreshIfNeeded(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
	require.NotNil(t, h.manager.Snapshot().Error)
	assert.Equal(t, sessiondomain.KindTokenExpired, h.manager.Snapshot().Error.Kind)

	h.login(t, time.Hour)
	ok, err := h.manager.RefreshIfNeeded(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, h.manager.Snapshot().Error)
}
