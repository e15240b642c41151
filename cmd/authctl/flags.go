package main

import "github.com/urfave/cli/v2"

const (
	flagAllDevices        = "all-devices"
	flagDisplayName       = "display-name"
	flagEmail             = "email"
	flagInsecure          = "insecure"
	flagKeepAlive         = "keep-alive"
	flagLanguage          = "language"
	flagLimit             = "limit"
	flagOutput            = "output"
	flagPassword          = "password"
	flagPreferredLanguage = "preferred-language"
	flagUsername          = "username"
	flagVerbose           = "verbose"
)

var cliFlagOutput = &cli.StringFlag{
	Name:    flagOutput,
	Aliases: []string{"o"},
	Usage:   "Return output in another format. Supported formats: table, json, yaml",
	Value:   "table",
}
