// authctl signs a device in to the auth API and keeps its session usable from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()
	app.Name = "authctl"
	app.Usage = "Manage this device's authenticated session"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    flagInsecure,
			Aliases: []string{"k"},
			Usage:   "Allow insecure auth API connections when using TLS",
		},
		&cli.StringFlag{
			Name:    flagLanguage,
			Aliases: []string{"l"},
			Usage:   "Language for error messages (BCP 47, e.g. es-MX)",
			EnvVars: []string{"AUTHCTL_LANGUAGE"},
		},
		&cli.BoolFlag{
			Name:    flagVerbose,
			Aliases: []string{"v"},
			Usage:   "Log session activity to stderr",
		},
	}
	app.Before = func(c *cli.Context) error {
		if !c.Bool(flagVerbose) {
			log.SetOutput(io.Discard)
		}
		return nil
	}
	app.Commands = []*cli.Command{
		{
			Name:  "device",
			Usage: "Show this device's identity",
			Subcommands: []*cli.Command{
				{
					Name:   "id",
					Usage:  "Print the persistent device ID",
					Action: deviceShow,
				},
				{
					Name:  "events",
					Usage: "List recent session events recorded for this device",
					Flags: []cli.Flag{
						cliFlagOutput,
						&cli.IntFlag{
							Name:  flagLimit,
							Usage: "Maximum number of events to return",
							Value: 20,
						},
					},
					Action: deviceEvents,
				},
			},
		},
		{
			Name:  "login",
			Usage: "Log in with email and password",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     flagEmail,
					Aliases:  []string{"e"},
					Usage:    "Account email address",
					Required: true,
				},
				&cli.StringFlag{
					Name:    flagPassword,
					Aliases: []string{"p"},
					Usage:   "Account password (prompted for when omitted)",
				},
			},
			Action: login,
		},
		{
			Name:  "logout",
			Usage: "Log out and clear stored credentials",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  flagAllDevices,
					Usage: "Also end the account's sessions on every other device",
				},
			},
			Action: logout,
		},
		{
			Name:  "profile",
			Usage: "Manage the cached user profile",
			Subcommands: []*cli.Command{
				{
					Name:  "show",
					Usage: "Show the signed-in user's profile",
					Flags: []cli.Flag{
						cliFlagOutput,
					},
					Action: profileShow,
				},
				{
					Name:  "update",
					Usage: "Update profile fields",
					Flags: []cli.Flag{
						cliFlagOutput,
						&cli.StringFlag{
							Name:  flagUsername,
							Usage: "New username",
						},
						&cli.StringFlag{
							Name:  flagDisplayName,
							Usage: "New display name",
						},
						&cli.StringFlag{
							Name:  flagPreferredLanguage,
							Usage: "New preferred language (BCP 47)",
						},
					},
					Action: profileUpdate,
				},
			},
		},
		{
			Name:  "signup",
			Usage: "Create an account and log in",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     flagEmail,
					Aliases:  []string{"e"},
					Usage:    "Account email address",
					Required: true,
				},
				&cli.StringFlag{
					Name:    flagPassword,
					Aliases: []string{"p"},
					Usage:   "Account password (prompted for when omitted)",
				},
				&cli.StringFlag{
					Name:  flagUsername,
					Usage: "Username",
				},
				&cli.StringFlag{
					Name:  flagDisplayName,
					Usage: "Display name",
				},
				&cli.StringFlag{
					Name:  flagPreferredLanguage,
					Usage: "Preferred language (BCP 47)",
				},
			},
			Action: signup,
		},
		{
			Name:  "status",
			Usage: "Show the current session",
			Flags: []cli.Flag{
				cliFlagOutput,
			},
			Action: status,
		},
		{
			Name:   "token",
			Usage:  "Print a valid access token, refreshing it first when needed",
			Action: token,
		},
		{
			Name:  "watch",
			Usage: "Follow session state changes until interrupted or signed out",
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  flagKeepAlive,
					Usage: "Request a valid token at this interval, keeping the session active",
				},
			},
			Action: watch,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "\n%s\n\n", err)
		stop()
		os.Exit(1)
	}
}
