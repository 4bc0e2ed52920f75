package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/celf/client"
	"github.com/brojonat/celf/service/wallet"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

func walletCommands() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Inspect a wallet through the CELF API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "window",
				Usage: "Number of recent transactions to fetch (1-100)",
				Value: 50,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Per-request timeout",
				Value: wallet.DefaultRequestTimeout,
			},
		},
		Subcommands: []*cli.Command{
			walletBalanceCommand(),
			walletTransactionsCommand(),
			walletShowCommand(),
			walletShareCommand(),
			walletWatchCommand(),
			walletDebugCommand(),
		},
	}
}

// newController builds a wallet controller from the global flags.
func newController(c *cli.Context) (*wallet.Controller, error) {
	apiURL := c.String("api-url")
	if apiURL == "" {
		return nil, fmt.Errorf("api-url is required (set CELF_API_URL env var or use --api-url)")
	}
	userID := c.String("user-id")
	if userID == "" {
		return nil, fmt.Errorf("user-id is required (set CELF_USER_ID env var or use --user-id)")
	}
	window := c.Int("window")
	if window < 1 || window > 100 {
		return nil, fmt.Errorf("window must be between 1 and 100")
	}
	location, err := time.LoadLocation(c.String("timezone"))
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.String("timezone"), err)
	}

	logger := newLogger(c)
	timeout := c.Duration("timeout")
	cl := client.NewClient(apiURL, c.String("api-token"), &http.Client{Timeout: timeout}, logger)

	return wallet.NewController(cl, wallet.NewStore(window), wallet.ControllerOptions{
		UserID:         userID,
		RequestTimeout: timeout,
		DisplayWindow:  window,
		Formatter:      wallet.NewFormatter(c.String("locale"), location, logger),
		Logger:         logger,
	}), nil
}

// newLogger logs to the app's error writer at the --log-level.
func newLogger(c *cli.Context) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewJSONHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
}

// refresh forces one refresh and turns a failure into an error.
func refresh(ctx context.Context, ctrl *wallet.Controller) error {
	switch outcome := ctrl.Refresh(ctx, true); outcome {
	case wallet.OutcomeSucceeded:
		return nil
	case wallet.OutcomeFailed:
		if err := ctrl.Store().LastError(); err != nil {
			return fmt.Errorf("failed to refresh wallet: %w", err)
		}
		return fmt.Errorf("failed to refresh wallet")
	default:
		return fmt.Errorf("wallet refresh %s", outcome)
	}
}

func walletBalanceCommand() *cli.Command {
	return &cli.Command{
		Name:  "balance",
		Usage: "Show the wallet balance and its breakdown",
		Action: func(c *cli.Context) error {
			ctrl, err := newController(c)
			if err != nil {
				return err
			}
			if err := refresh(c.Context, ctrl); err != nil {
				return err
			}

			vm := ctrl.View()
			w := c.App.Writer
			if c.Bool("json") {
				return outputJSON(w, vm)
			}

			fmt.Fprintf(w, "Balance: %s %s\n", vm.Balance, vm.BalanceSymbol)
			for _, b := range vm.Breakdown {
				fmt.Fprintf(w, "  %-12s %s\n", b.Label+":", b.Amount)
			}
			return nil
		},
	}
}

func walletTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "transactions",
		Aliases: []string{"txns", "tx"},
		Usage:   "List recent transactions",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Value:   wallet.DefaultDisplayWindow,
				Usage:   "Maximum number of transactions to show (0 shows every fetched one)",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter expression a row must evaluate to true for (can be specified multiple times, all must match)",
			},
		},
		Action: func(c *cli.Context) error {
			limit := c.Int("limit")
			if limit < 0 {
				return fmt.Errorf("limit cannot be negative")
			}

			filters, err := compileFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			ctrl, err := newController(c)
			if err != nil {
				return err
			}
			if err := refresh(c.Context, ctrl); err != nil {
				return err
			}

			var rows []wallet.Row
			for _, row := range ctrl.History() {
				ok, err := matchRow(row, filters)
				if err != nil {
					return err
				}
				if ok {
					rows = append(rows, row)
				}
			}
			if limit > 0 && len(rows) > limit {
				rows = rows[:limit]
			}

			w := c.App.Writer
			if c.Bool("json") {
				if rows == nil {
					rows = []wallet.Row{}
				}
				return outputJSON(w, rows)
			}

			if len(rows) == 0 {
				fmt.Fprintln(w, "No transactions found")
				return nil
			}

			fmt.Fprintf(w, "Found %d transaction(s):\n\n", len(rows))
			for i, row := range rows {
				fmt.Fprintf(w, "[%d] %s %s\n", i+1, row.Label, row.ID)
				fmt.Fprintf(w, "    Amount:    %s %s\n", row.Amount, wallet.TokenSymbol)
				fmt.Fprintf(w, "    Status:    %s\n", row.Status)
				fmt.Fprintf(w, "    Date:      %s\n", row.Date)
				if row.Counterparty != "" {
					fmt.Fprintf(w, "    With:      %s\n", row.Counterparty)
				}
				if row.Description != "" {
					fmt.Fprintf(w, "    Note:      %s\n", row.Description)
				}
				fmt.Fprintln(w)
			}
			return nil
		},
	}
}

// compileFilters parses and compiles each jq expression.
func compileFilters(exprs []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(exprs))
	for i, expr := range exprs {
		query, err := gojq.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
		}
	}
	return codes, nil
}

// matchRow reports whether every filter evaluates to a truthy value
// against the row's JSON form.
func matchRow(row wallet.Row, filters []*gojq.Code) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}

	data, err := json.Marshal(row)
	if err != nil {
		return false, fmt.Errorf("failed to marshal row: %w", err)
	}
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return false, fmt.Errorf("failed to decode row: %w", err)
	}

	for _, code := range filters {
		iter := code.Run(input)
		v, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := v.(error); isErr {
			return false, fmt.Errorf("jq filter failed: %w", err)
		}
		if !isTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// lookupTransaction fetches one transaction for the detail commands.
func lookupTransaction(c *cli.Context) (*wallet.Controller, wallet.Transaction, error) {
	if c.NArg() != 1 {
		return nil, wallet.Transaction{}, fmt.Errorf("transaction ID is required")
	}
	id := c.Args().Get(0)

	ctrl, err := newController(c)
	if err != nil {
		return nil, wallet.Transaction{}, err
	}
	txn, err := ctrl.Transaction(c.Context, id)
	if errors.Is(err, client.ErrNotFound) {
		return nil, wallet.Transaction{}, fmt.Errorf("transaction %s not found", id)
	}
	if err != nil {
		return nil, wallet.Transaction{}, err
	}
	return ctrl, txn, nil
}

func walletShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show one transaction in detail",
		ArgsUsage: "TRANSACTION_ID",
		Action: func(c *cli.Context) error {
			ctrl, txn, err := lookupTransaction(c)
			if err != nil {
				return err
			}

			d := ctrl.Detail(txn)
			w := c.App.Writer
			if c.Bool("json") {
				return outputJSON(w, d)
			}
			printDetail(w, d)
			return nil
		},
	}
}

func walletShareCommand() *cli.Command {
	return &cli.Command{
		Name:      "share",
		Usage:     "Print the share text of a transaction",
		ArgsUsage: "TRANSACTION_ID",
		Action: func(c *cli.Context) error {
			_, txn, err := lookupTransaction(c)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, wallet.ShareText(txn))
			return nil
		},
	}
}

func walletWatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Keep the wallet refreshed and print it after every update",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Automatic refresh interval",
				Value: time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			ctrl, err := newController(c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			updates, unsubscribe := ctrl.Subscribe()
			defer unsubscribe()

			done := make(chan error, 1)
			go func() {
				done <- ctrl.Run(ctx, c.Duration("interval"))
			}()

			w := c.App.Writer
			jsonOutput := c.Bool("json")
			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "Watching wallet of %s... (Ctrl-C to exit)\n\n", c.String("user-id"))
			}

			for {
				select {
				case <-updates:
					vm := ctrl.View()
					if vm.IsRefreshing {
						continue
					}
					if jsonOutput {
						data, err := json.Marshal(vm)
						if err != nil {
							return fmt.Errorf("failed to marshal wallet: %w", err)
						}
						fmt.Fprintln(w, string(data))
						continue
					}
					printView(w, vm)

				case err := <-done:
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
			}
		},
	}
}

func walletDebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Force a refresh and dump the raw wallet state",
		Action: func(c *cli.Context) error {
			ctrl, err := newController(c)
			if err != nil {
				return err
			}
			outcome, snap := ctrl.DebugRefresh(c.Context)
			return outputJSON(c.App.Writer, struct {
				Outcome  wallet.Outcome  `json:"outcome"`
				Snapshot wallet.Snapshot `json:"snapshot"`
			}{outcome, snap})
		},
	}
}

func printView(w io.Writer, vm wallet.ViewModel) {
	fmt.Fprintln(w, rule)
	if vm.HasBalance {
		fmt.Fprintf(w, "Balance: %s %s\n", vm.Balance, vm.BalanceSymbol)
	} else {
		fmt.Fprintln(w, "Balance: (unavailable)")
	}
	if vm.RefreshFailed {
		fmt.Fprintf(w, "⚠️  %s\n", vm.ErrorMessage)
	}
	fmt.Fprintln(w, rule)
	if vm.IsEmpty {
		fmt.Fprintln(w, "No transactions yet")
	}
	for _, row := range vm.Transactions {
		fmt.Fprintf(w, "%-14s %18s  %-10s %s\n", row.Label, row.Amount, row.Status, row.Date)
	}
	fmt.Fprintln(w)
}

func printDetail(w io.Writer, d wallet.Detail) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%s\n", d.Label)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "ID:            %s\n", d.ID)
	fmt.Fprintf(w, "Amount:        %s %s\n", d.Amount, wallet.TokenSymbol)
	fmt.Fprintf(w, "Status:        %s\n", d.Status)
	fmt.Fprintf(w, "Date:          %s\n", d.LongDate)
	if d.Counterparty != "" {
		fmt.Fprintf(w, "With:          %s\n", d.Counterparty)
	}
	if d.Description != "" {
		fmt.Fprintf(w, "Description:   %s\n", d.Description)
	}
	if d.TaskID != "" {
		fmt.Fprintf(w, "Task:          %s\n", d.TaskID)
	}
	if d.Fee != "" {
		fmt.Fprintf(w, "Fee:           %s %s\n", d.Fee, wallet.TokenSymbol)
	}
	if d.FromAddress != "" {
		fmt.Fprintf(w, "From:          %s\n", d.FromAddress)
	}
	if d.ToAddress != "" {
		fmt.Fprintf(w, "To:            %s\n", d.ToAddress)
	}
	if d.Confirmations != "" {
		fmt.Fprintf(w, "Confirmations: %s\n", d.Confirmations)
	}
	if d.BlockHash != "" {
		fmt.Fprintf(w, "Block Hash:    %s\n", d.BlockHash)
	}
	fmt.Fprintln(w, rule)
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
