package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func deviceShow(c *cli.Context) error {
	if c.Args().Len() != 0 {
		return errors.New("device requires no arguments")
	}

	client, err := getSessionClient(c)
	if err != nil {
		return errors.Wrap(err, "error getting session client")
	}
	defer client.close(c.Context)

	deviceID, err := client.manager.DeviceID(c.Context)
	if err != nil {
		return client.describe(err)
	}
	fmt.Println(deviceID)
	return nil
}

func deviceEvents(c *cli.Context) error {
	if c.Args().Len() != 0 {
		return errors.New("device events requires no arguments")
	}
	output := c.String(flagOutput)
	if err := validateOutputFormat(output); err != nil {
		return err
	}
	limit := c.Int(flagLimit)
	if limit <= 0 {
		return errors.Errorf("--%s must be positive", flagLimit)
	}

	client, err := getSessionClient(c)
	if err != nil {
		return errors.Wrap(err, "error getting session client")
	}
	defer client.close(c.Context)

	if client.events == nil {
		return errors.New("session event history requires DATABASE_URL")
	}
	deviceID, err := client.manager.DeviceID(c.Context)
	if err != nil {
		return client.describe(err)
	}
	events, err := client.events.ListByDevice(c.Context, deviceID, int32(limit))
	if err != nil {
		return errors.Wrap(err, "error listing session events")
	}

	if len(events) == 0 {
		fmt.Println("No session events found.")
		return nil
	}

	if done, err := printStructured(output, events); done {
		return err
	}
	table := uitable.New()
	table.AddRow("TIME", "TYPE", "USER", "REASON", "SOURCE")
	for _, e := range events {
		table.AddRow(
			e.CreatedAt.Local().Format(time.RFC3339),
			e.Type,
			orDash(e.UserID),
			orDash(e.Reason),
			orDash(strings.TrimSpace(e.Source)),
		)
	}
	fmt.Println(table)
	return nil
}
