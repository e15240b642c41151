package main

import (
	"fmt"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	userdomain "authsession/internal/user/domain"
)

func profileShow(c *cli.Context) error {
	if c.Args().Len() != 0 {
		return errors.New("profile show requires no arguments")
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

	user := client.manager.Snapshot().User
	if user == nil {
		return errors.New("no valid session; use `authctl login` to continue")
	}
	return printProfile(output, user)
}

func profileUpdate(c *cli.Context) error {
	if c.Args().Len() != 0 {
		return errors.New("profile update requires no arguments")
	}
	output := c.String(flagOutput)
	if err := validateOutputFormat(output); err != nil {
		return err
	}

	var update userdomain.ProfileUpdate
	if c.IsSet(flagUsername) {
		v := c.String(flagUsername)
		update.Username = &v
	}
	if c.IsSet(flagDisplayName) {
		v := c.String(flagDisplayName)
		update.DisplayName = &v
	}
	if c.IsSet(flagPreferredLanguage) {
		v := c.String(flagPreferredLanguage)
		update.PreferredLanguage = &v
	}
	if update.IsEmpty() {
		return errors.Errorf(
			"nothing to update; set at least one of --%s, --%s, --%s",
			flagUsername,
			flagDisplayName,
			flagPreferredLanguage,
		)
	}

	client, err := getSessionClient(c)
	if err != nil {
		return errors.Wrap(err, "error getting session client")
	}
	defer client.close(c.Context)

	user, err := client.manager.UpdateProfile(c.Context, update)
	if err != nil {
		return client.describe(err)
	}
	return printProfile(output, user)
}

func printProfile(output string, user *userdomain.User) error {
	if done, err := printStructured(output, user); done {
		return err
	}
	table := uitable.New()
	table.AddRow("ID", "EMAIL", "USERNAME", "NAME", "LANGUAGE", "VERIFIED?")
	table.AddRow(
		user.ID,
		user.Email,
		orDash(user.Username),
		orDash(user.DisplayName),
		orDash(user.PreferredLanguage),
		user.EmailVerified,
	)
	fmt.Println(table)
	return nil
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
