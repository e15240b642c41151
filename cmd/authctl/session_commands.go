package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/gosuri/uitable"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"authsession/internal/security"
	sessiondomain "authsession/internal/session/domain"
	userdomain "authsession/internal/user/domain"
)

// statusView is the printable form of a session snapshot. Tokens appear only as fingerprints.
type statusView struct {
	Status               sessiondomain.Status `json:"status"`
	DeviceID             string               `json:"deviceId"`
	User                 *userdomain.User     `json:"user,omitempty"`
	AccessToken          string               `json:"accessToken,omitempty"`
	AccessTokenExpiresAt *time.Time           `json:"accessTokenExpiresAt,omitempty"`
	LastActivity         *time.Time           `json:"lastActivity,omitempty"`
	Error                string               `json:"error,omitempty"`
}

func newStatusView(snap sessiondomain.Snapshot) statusView {
	view := statusView{
		Status:   snap.Status,
		DeviceID: snap.DeviceID,
		User:     snap.User,
	}
	if snap.Tokens != nil {
		view.AccessToken = security.TokenFingerprint(snap.Tokens.AccessToken)
		if exp, err := security.ExpiresAt(snap.Tokens.AccessToken); err == nil {
			view.AccessTokenExpiresAt = &exp
		}
	}
	if !snap.LastActivity.IsZero() {
		last := snap.LastActivity
		view.LastActivity = &last
	}
	if snap.Error != nil {
		view.Error = snap.Error.Message
	}
	return view
}

func status(c *cli.Context) error {
	if c.Args().Len() != 0 {
		return errors.New("status requires no arguments")
	}
	output := c.String(flagOutput)
	if err := validateOutputFormat(output); err != nil {
		return err
	}

	client, err := getSessionClient(c)
	if err != nil {
		return errors.Wrap(err, "error getting session client")
	}
	defer client.close(c.Context)

	view := newStatusView(client.manager.Snapshot())
	if done, err := printStructured(output, view); done {
		return err
	}

	table := uitable.New()
	table.AddRow("STATUS", "USER", "DEVICE", "TOKEN", "EXPIRES")
	user, token, expires := "-", "-", "-"
	if view.User != nil {
		user = view.User.Email
	}
	if view.AccessToken != "" {
		token = view.AccessToken
	}
	if view.AccessTokenExpiresAt != nil {
		expires = view.AccessTokenExpiresAt.Local().Format(time.RFC3339)
	}
	table.AddRow(view.Status, user, view.DeviceID, token, expires)
	fmt.Println(table)
	if view.Error != "" {
		fmt.Printf("\nLast error: %s\n", view.Error)
	}
	return nil
}

func token(c *cli.Context) error {
	if c.Args().Len() != 0 {
		return errors.New("token requires no arguments")
	}

	client, err := getSessionClient(c)
	if err != nil {
		return errors.Wrap(err, "error getting session client")
	}
	defer client.close(c.Context)

	accessToken, err := client.manager.GetValidToken(c.Context)
	if err != nil {
		return client.describe(err)
	}
	if accessToken == "" {
		if e := client.manager.Snapshot().Error; e != nil {
			return errors.New(e.Message)
		}
		return errors.New("no valid session; use `authctl login` to continue")
	}
	fmt.Println(accessToken)
	return nil
}

// watch prints session transitions until interrupted or signed out. With --keep-alive
// it requests a valid token on every tick, which refreshes and counts as activity.
func watch(c *cli.Context) error {
	if c.Args().Len() != 0 {
		return errors.New("watch requires no arguments")
	}
	keepAlive := c.Duration(flagKeepAlive)

	client, err := getSessionClient(c)
	if err != nil {
		return errors.Wrap(err, "error getting session client")
	}
	defer client.close(c.Context)

	snap := client.manager.Snapshot()
	if !snap.Authenticated() {
		return errors.New("no valid session; use `authctl login` to continue")
	}
	printTransition(snap)

	signedOut := make(chan struct{})
	var once sync.Once
	cancel := client.manager.Subscribe(func(s sessiondomain.Snapshot) {
		printTransition(s)
		if s.Status == sessiondomain.StatusUnauthenticated {
			once.Do(func() { close(signedOut) })
		}
	})
	defer cancel()

	var tick <-chan time.Time
	if keepAlive > 0 {
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.Context.Done():
			return nil
		case <-signedOut:
			return nil
		case <-tick:
			if _, err := client.manager.GetValidToken(c.Context); err != nil && c.Context.Err() == nil {
				return client.describe(err)
			}
		}
	}
}

func printTransition(s sessiondomain.Snapshot) {
	line := fmt.Sprintf("%s  %s", time.Now().Format(time.RFC3339), s.Status)
	if s.Error != nil {
		line += "  (" + s.Error.Message + ")"
	}
	fmt.Println(line)
}
