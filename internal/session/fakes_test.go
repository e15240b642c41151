package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"authsession/internal/gateway"
	"authsession/internal/security"
	"authsession/internal/tokenstore"
	userdomain "authsession/internal/user/domain"
)

// fakeGateway is a scripted gateway.Client that counts calls.
type fakeGateway struct {
	mu sync.Mutex

	loginResp    *gateway.LoginResponse
	loginErr     error
	registerResp *gateway.RegisterResponse
	registerErr  error
	refreshResp  *gateway.RefreshResponse
	refreshErr   error
	logoutErr    error

	// refreshGate, when set, blocks Refresh until closed. refreshStarted is signalled on entry.
	refreshGate    chan struct{}
	refreshStarted chan struct{}

	calls       map[string]int
	lastLogin   gateway.LoginRequest
	lastLogout  gateway.LogoutRequest
	lastRefresh gateway.RefreshRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{calls: make(map[string]int), refreshStarted: make(chan struct{}, 16)}
}

func (g *fakeGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *fakeGateway) Login(ctx context.Context, req gateway.LoginRequest) (*gateway.LoginResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["login"]++
	g.lastLogin = req
	return g.loginResp, g.loginErr
}

func (g *fakeGateway) Register(ctx context.Context, req gateway.RegisterRequest) (*gateway.RegisterResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["register"]++
	return g.registerResp, g.registerErr
}

func (g *fakeGateway) Refresh(ctx context.Context, req gateway.RefreshRequest) (*gateway.RefreshResponse, error) {
	g.mu.Lock()
	g.calls["refresh"]++
	g.lastRefresh = req
	gate := g.refreshGate
	resp, err := g.refreshResp, g.refreshErr
	g.mu.Unlock()

	select {
	case g.refreshStarted <- struct{}{}:
	default:
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &gateway.StatusError{Op: "refresh", Message: ctx.Err().Error(), Err: gateway.ErrUnavailable}
		}
	}
	return resp, err
}

func (g *fakeGateway) Logout(ctx context.Context, req gateway.LogoutRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["logout"]++
	g.lastLogout = req
	return g.logoutErr
}

// failingStore wraps a Store and fails selected operations.
type failingStore struct {
	tokenstore.Store
	storeErr error
	clearErr error
	loadErr  error

	// storeGate, when set, blocks StoreTokens until closed. storeEntered is signalled on entry.
	storeGate    chan struct{}
	storeEntered chan struct{}
}

func (s *failingStore) StoreTokens(ctx context.Context, rec tokenstore.Record) error {
	if s.storeGate != nil {
		s.storeEntered <- struct{}{}
		<-s.storeGate
	}
	if s.storeErr != nil {
		return s.storeErr
	}
	return s.Store.StoreTokens(ctx, rec)
}

func (s *failingStore) ClearTokens(ctx context.Context) error {
	if s.clearErr != nil {
		return s.clearErr
	}
	return s.Store.ClearTokens(ctx)
}

func (s *failingStore) Load(ctx context.Context) (*tokenstore.Record, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.Store.Load(ctx)
}

var errDiskFull = errors.New("disk full")

// recordingMetrics collects RecordOutcome calls as "op/outcome".
type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingMetrics) RecordOutcome(_ context.Context, op, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, op+"/"+outcome)
}

func (r *recordingMetrics) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

type harness struct {
	manager *Manager
	gateway *fakeGateway
	store   *tokenstore.SecureStore
	backend *tokenstore.MemoryBackend
	clock   *testingclock.FakeClock
}

func newStore(t *testing.T) (*tokenstore.SecureStore, *tokenstore.MemoryBackend) {
	t.Helper()
	backend := tokenstore.NewMemoryBackend()
	store, err := tokenstore.NewSecureStore(backend, security.TestMasterKey())
	require.NoError(t, err)
	return store, backend
}

// newHarness builds a Manager over an in-memory store, a fake gateway and a fake clock.
// mutate may adjust Options before construction (e.g. to wrap the store).
func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	store, backend := newStore(t)
	h := &harness{
		gateway: newFakeGateway(),
		store:   store,
		backend: backend,
		clock:   testingclock.NewFakeClock(time.Now().Truncate(time.Second)),
	}
	opts := Options{
		Store:          store,
		Gateway:        h.gateway,
		Clock:          h.clock,
		SessionTimeout: 5 * time.Second,
		RefreshTimeout: 2 * time.Second,
		NewDeviceID:    func() string { return "device-1" },
		Source:         "test",
	}
	if mutate != nil {
		mutate(&opts)
	}
	m, err := NewManager(opts)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	h.manager = m
	return h
}

// token mints an access token expiring d after the harness clock's now.
func (h *harness) token(subject string, d time.Duration) string {
	return security.NewTestToken(subject, h.clock.Now().Add(d))
}

func testUser() *userdomain.User {
	return &userdomain.User{ID: "user-1", Email: "a@b.com", Username: "ab", DisplayName: "A B", PreferredLanguage: "en"}
}

// login signs the harness in with an access token valid for d.
func (h *harness) login(t *testing.T, d time.Duration) {
	t.Helper()
	h.gateway.mu.Lock()
	h.gateway.loginResp = &gateway.LoginResponse{
		AccessToken:  h.token("access-login", d),
		RefreshToken: "refresh-login",
		User:         testUser(),
		SessionID:    "sess-1",
	}
	h.gateway.mu.Unlock()
	_, err := h.manager.Login(context.Background(), Credentials{Email: "a@b.com", Password: "Secret123!"})
	require.NoError(t, err)
}

func (h *harness) storedAccessToken(t *testing.T) string {
	t.Helper()
	tok, err := h.store.AccessToken(context.Background())
	require.NoError(t, err)
	return tok
}
