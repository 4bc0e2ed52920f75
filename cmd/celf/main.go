package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "celf",
		Usage: "CELF wallet client CLI",
		Description: `A command-line tool for the CELF wallet.

Use this CLI to inspect a wallet straight from the CELF API, follow the
wallet server's live stream, and tail wallet update events on NATS.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Wallet commands (CELF API)
			walletCommands(),
			// SSE streaming commands (wallet server)
			sseCommands(),
			// NATS wallet event commands
			{
				Name:  "nats",
				Usage: "NATS wallet event commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "CELF API base URL",
				EnvVars: []string{"CELF_API_URL"},
			},
			&cli.StringFlag{
				Name:    "api-token",
				Usage:   "CELF API bearer token",
				EnvVars: []string{"CELF_API_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "user-id",
				Usage:   "Wallet owner's user ID",
				EnvVars: []string{"CELF_USER_ID"},
			},
			&cli.StringFlag{
				Name:    "locale",
				Usage:   "Locale used to format balances and dates",
				EnvVars: []string{"LOCALE"},
				Value:   "en-US",
			},
			&cli.StringFlag{
				Name:    "timezone",
				Usage:   "IANA time zone used to render dates",
				EnvVars: []string{"TIMEZONE"},
				Value:   "UTC",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Wallet server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "warn",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
