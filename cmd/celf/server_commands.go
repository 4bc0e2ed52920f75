package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/brojonat/celf/service/wallet"
	"github.com/urfave/cli/v2"
)

// walletStatus is the part of the /debug/wallet dump the health command reports.
type walletStatus struct {
	Phase              wallet.Phase `json:"phase"`
	Generation         uint64       `json:"generation"`
	TransactionsLoaded bool         `json:"transactions_loaded"`
	LastSuccess        time.Time    `json:"last_success"`
	LastError          string       `json:"last_error"`
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health and report the wallet sync phase",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 5 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			if serverURL == "" {
				return fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
			}

			httpClient := &http.Client{Timeout: c.Duration("timeout")}

			resp, err := httpClient.Get(serverURL + "/health")
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned unhealthy status: %d", resp.StatusCode)
			}
			fmt.Fprintf(c.App.Writer, "✓ Server is healthy (status: %d)\n", resp.StatusCode)

			status, err := fetchWalletStatus(httpClient, serverURL)
			if err != nil {
				fmt.Fprintf(c.App.Writer, "  Wallet: unavailable (%v)\n", err)
				return nil
			}
			printWalletStatus(c, status)
			return nil
		},
	}
}

func fetchWalletStatus(httpClient *http.Client, serverURL string) (*walletStatus, error) {
	resp, err := httpClient.Get(serverURL + "/debug/wallet")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch wallet status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var status walletStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode wallet status: %w", err)
	}
	if status.Phase == "" {
		status.Phase = wallet.PhaseIdle
	}
	return &status, nil
}

func printWalletStatus(c *cli.Context, status *walletStatus) {
	fmt.Fprintf(c.App.Writer, "  Wallet phase: %s (generation %d)\n", status.Phase, status.Generation)
	if status.LastSuccess.IsZero() {
		fmt.Fprintf(c.App.Writer, "  Last sync:    never\n")
	} else {
		fmt.Fprintf(c.App.Writer, "  Last sync:    %s\n", status.LastSuccess.Format(time.RFC3339))
	}
	if !status.TransactionsLoaded {
		fmt.Fprintf(c.App.Writer, "  Transactions: not loaded\n")
	}
	if status.LastError != "" {
		fmt.Fprintf(c.App.Writer, "  Last error:   %s\n", status.LastError)
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "celf %s (commit %s, built %s)\n", version, commit, date)
			return nil
		},
	}
}
