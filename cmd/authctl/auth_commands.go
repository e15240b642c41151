package main

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"authsession/internal/session"
)

func login(c *cli.Context) error {
	if c.Args().Len() != 0 {
		return errors.New("login requires no arguments")
	}
	email := c.String(flagEmail)
	password := c.String(flagPassword)

	for password == "" {
		prompt := &survey.Password{
			Message: "Password",
		}
		if err := survey.AskOne(prompt, &password); err != nil {
			return err
		}
	}

	client, err := getSessionClient(c)
	if err != nil {
		return errors.Wrap(err, "error getting session client")
	}
	defer client.close(c.Context)

	if snap := client.manager.Snapshot(); snap.Authenticated() {
		return errors.Errorf("already logged in as %s; use `authctl logout` first", snap.User.Email)
	}

	result, err := client.manager.Login(
		c.Context,
		session.Credentials{
			Email:    email,
			Password: password,
		},
	)
	if err != nil {
		return client.describe(err)
	}

	fmt.Printf("Logged in as %s.\n", result.User.Email)
	printNextAction(result)
	return nil
}

func signup(c *cli.Context) error {
	if c.Args().Len() != 0 {
		return errors.New("signup requires no arguments")
	}
	password := c.String(flagPassword)

	for password == "" {
		prompt := &survey.Password{
			Message: "Choose a password",
		}
		if err := survey.AskOne(prompt, &password); err != nil {
			return err
		}
	}

	client, err := getSessionClient(c)
	if err != nil {
		return errors.Wrap(err, "error getting session client")
	}
	defer client.close(c.Context)

	result, err := client.manager.Signup(
		c.Context,
		session.Registration{
			Email:             c.String(flagEmail),
			Password:          password,
			Username:          c.String(flagUsername),
			DisplayName:       c.String(flagDisplayName),
			PreferredLanguage: c.String(flagPreferredLanguage),
		},
	)
	if err != nil {
		return client.describe(err)
	}

	fmt.Printf("Account created for %s.\n", result.User.Email)
	printNextAction(result)
	return nil
}

func printNextAction(result *session.AuthResult) {
	switch result.NextAction {
	case session.NextActionVerifyEmail:
		fmt.Println("Check your inbox to verify your email address.")
	case session.NextActionIdentitySetup:
		fmt.Println("Finish setting up your profile with `authctl profile update`.")
	}
}

func logout(c *cli.Context) error {
	if c.Args().Len() != 0 {
		return errors.New("logout requires no arguments")
	}
	allDevices := c.Bool(flagAllDevices)

	if allDevices {
		var confirmed bool
		if err := survey.AskOne(
			&survey.Confirm{
				Message: "Sign out of every device on this account?",
			},
			&confirmed,
		); err != nil {
			return errors.Wrap(err, "error confirming logout")
		}
		if !confirmed {
			return nil
		}
	}

	client, err := getSessionClient(c)
	if err != nil {
		return errors.Wrap(err, "error getting session client")
	}
	defer client.close(c.Context)

	client.manager.Logout(c.Context, session.LogoutOptions{AllDevices: allDevices})

	fmt.Println("Logout was successful.")
	return nil
}
