package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"authsession/internal/gateway"
	"authsession/internal/security"
	sessiondomain "authsession/internal/session/domain"
	"authsession/internal/tokenstore"
	userdomain "authsession/internal/user/domain"
)

const refreshKey = "refresh"

var errSessionEnded = errors.New("session ended before refresh started")

// Coordinator decides whether the access token is usable and runs at most one
// refresh at a time. Concurrent callers join the in-flight refresh and get its
// result; only the leader talks to the gateway and writes the store.
type Coordinator struct {
	state      *StateMachine
	store      tokenstore.Store
	gateway    gateway.Client
	supervisor *Supervisor
	// lock is the facade's operation mutex; the leader holds it for the whole refresh.
	lock    sync.Locker
	clock   clock.PassiveClock
	leeway  time.Duration
	timeout time.Duration

	// onFailure runs with lock held after a failed refresh and must end the session.
	onFailure func(ctx context.Context, cause error)
	// onSuccess runs with lock held after the rotated pair is stored and applied.
	onSuccess func(ctx context.Context)

	group singleflight.Group
}

// IsExpired reports whether token is past its exp claim. Tokens without a readable exp are expired.
func (c *Coordinator) IsExpired(token string) bool {
	return security.IsExpired(token, c.clock.Now())
}

// IsExpiringSoon reports whether token has at most the configured leeway left.
func (c *Coordinator) IsExpiringSoon(token string) bool {
	return security.IsExpiringSoon(token, c.clock.Now(), c.leeway)
}

func (c *Coordinator) needsRefresh(token string) bool {
	return c.IsExpired(token) || c.IsExpiringSoon(token)
}

// RefreshIfNeeded refreshes the session when the access token is expired or expiring soon.
// refreshed is true only when this call's flight rotated the tokens. A failed refresh has already
// ended the session when the error (kind RefreshFailed) is returned. ctx only bounds the wait;
// the refresh itself keeps running for the other callers.
func (c *Coordinator) RefreshIfNeeded(ctx context.Context) (refreshed bool, err error) {
	snap := c.state.Snapshot()
	switch snap.Status {
	case sessiondomain.StatusAuthenticated:
		if snap.Tokens != nil && !c.needsRefresh(snap.Tokens.AccessToken) {
			return false, nil
		}
	case sessiondomain.StatusRefreshing:
	default:
		return false, newError(sessiondomain.KindInvalidState, "refresh", fmt.Errorf("status is %s", snap.Status))
	}

	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		return c.lead(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		refreshed, _ := res.Val.(bool)
		return refreshed, res.Err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (c *Coordinator) lead(ctx context.Context) (bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	// Re-check under the lock: a logout or an earlier flight may have run while we waited.
	snap := c.state.Snapshot()
	if snap.Status != sessiondomain.StatusAuthenticated || snap.Tokens == nil {
		return false, newError(sessiondomain.KindInvalidState, "refresh", errSessionEnded)
	}
	if !c.needsRefresh(snap.Tokens.AccessToken) {
		return false, nil
	}
	if err := c.state.BeginRefresh(); err != nil {
		return false, err
	}
	c.supervisor.Disarm()

	rec, err := c.exchange(ctx, snap.Tokens.RefreshToken, snap.DeviceID, snap.User)
	if err != nil {
		c.onFailure(ctx, err)
		return false, newError(sessiondomain.KindRefreshFailed, "refresh", err)
	}
	if err := c.state.CompleteRefresh(sessiondomain.TokenPair{AccessToken: rec.AccessToken, RefreshToken: rec.RefreshToken}, rec.User); err != nil {
		return false, err
	}
	c.supervisor.Arm()
	if c.onSuccess != nil {
		c.onSuccess(ctx)
	}
	return true, nil
}

// exchange trades refreshToken for a new pair and persists it together with the profile.
// The gateway call is bounded by the refresh timeout. Callers must hold lock.
func (c *Coordinator) exchange(ctx context.Context, refreshToken, deviceID string, current *userdomain.User) (*tokenstore.Record, error) {
	if refreshToken == "" {
		return nil, newError(sessiondomain.KindTokenExpired, "refresh", errors.New("no refresh token"))
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	resp, err := c.gateway.Refresh(callCtx, gateway.RefreshRequest{RefreshToken: refreshToken, DeviceID: deviceID})
	cancel()
	if err != nil {
		return nil, err
	}
	user := current
	if resp.User != nil {
		user = resp.User
	}
	rec := tokenstore.Record{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken, User: user}
	if err := c.store.StoreTokens(ctx, rec); err != nil {
		return nil, newError(sessiondomain.KindStorageFailure, "refresh", err)
	}
	return &rec, nil
}
