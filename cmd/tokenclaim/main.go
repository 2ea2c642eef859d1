package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tokenclaim/internal/app"
)

func main() {
	root := &cobra.Command{
		Use:          "tokenclaim",
		Short:        "Token claim wallet session and on-chain view cache",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "chain RPC URL")
	flags.String("wallet-rpc", "", "wallet provider RPC URL (defaults to --rpc)")
	flags.String("private-key", "", "hex private key for local signing")
	flags.Uint64("expected-chain-id", 1, "chain the app expects the wallet to use")
	flags.String("factory", "", "token factory address")
	flags.String("storage", "file", "storage backend (file, leveldb, postgres, memory)")
	flags.String("storage-path", "./data/localstorage", "storage directory for file and leveldb backends")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.Duration("call-timeout", 30*time.Second, "timeout for each RPC and wallet call")
	flags.Duration("tx-timeout", 5*time.Minute, "timeout while waiting for a transaction receipt")
	flags.Duration("poll-interval", 2*time.Second, "receipt and wallet event polling interval")
	flags.Duration("status-interval", 3*time.Second, "how long action results stay visible")
	flags.Uint64("batch-size", 50000, "blocks per log query")
	flags.Int("scan-retries", 0, "retry attempts for log queries")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.String("decimals-mode", "token", "token precision source (token, fixed18)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "optional rotating log file")

	root.AddCommand(
		&cobra.Command{
			Use:   "connect",
			Short: "Connect the wallet and print the session",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
				vm, err := a.Connect(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), vm.Session)
			}),
		},
		&cobra.Command{
			Use:   "switch",
			Short: "Ask the wallet to switch to the expected chain",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
				if _, err := a.Connect(ctx); err != nil {
					return err
				}
				vm, err := a.SwitchNetwork(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), vm.Session)
			}),
		},
		newLoadCmd(),
		newCreateCmd(),
		&cobra.Command{
			Use:   "claim <pool>",
			Short: "Claim from a pool",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
				if _, err := a.Connect(ctx); err != nil {
					return err
				}
				if _, err := a.Load(ctx, args[0]); err != nil {
					return err
				}
				vm, err := a.Claim(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), vm)
			}),
		},
		newActivityCmd(),
		newHistoryCmd(),
		newWatchCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type appFunc func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error

// withApp builds the runtime for a command and tears it down afterwards.
func withApp(fn appFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(ctx, cmd)
		if err != nil {
			return err
		}
		defer rt.Close()
		return fn(ctx, cmd, rt.app, args)
	}
}

func newLoadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <pool>",
		Short: "Load a claim pool and print its view",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			if connect, _ := cmd.Flags().GetBool("connect"); connect {
				if _, err := a.Connect(ctx); err != nil {
					return err
				}
			}
			vm, err := a.Load(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), vm)
		}),
	}
	cmd.Flags().Bool("connect", false, "connect the wallet before loading")
	return cmd
}

func newCreateCmd() *cobra.Command {
	var params app.CreateParams
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Deploy a token and claim pool through the factory",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			if _, err := a.Connect(ctx); err != nil {
				return err
			}
			vm, err := a.Create(ctx, params)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), vm)
		}),
	}
	cmd.Flags().StringVar(&params.Name, "name", "", "token name")
	cmd.Flags().StringVar(&params.Symbol, "symbol", "", "token symbol")
	cmd.Flags().StringVar(&params.Author, "author", "", "token author")
	cmd.Flags().StringVar(&params.Description, "description", "", "token description")
	cmd.Flags().IntVar(&params.LogoID, "logo-id", 0, "logo variant (0, 1, 2)")
	return cmd
}

func newActivityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity <pool>",
		Short: "Print cached claim activity, scanning the chain when empty",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			refresh, _ := cmd.Flags().GetBool("refresh")
			from, _ := cmd.Flags().GetUint64("from")
			events, err := a.Activity(ctx, args[0], from, refresh)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), events)
		}),
	}
	cmd.Flags().Bool("refresh", false, "rescan the chain and replace the cache")
	cmd.Flags().Uint64("from", 0, "first block to scan")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage known deployments",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print known deployments",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			records, err := a.History().List(ctx)
			if err != nil {
				return err
			}
			if refresh, _ := cmd.Flags().GetBool("refresh"); !refresh {
				return printJSON(cmd.OutOrStdout(), records)
			}
			stats, err := a.Refresh(ctx, "")
			if err != nil {
				return err
			}
			type entry struct {
				Record interface{} `json:"record"`
				Stats  interface{} `json:"stats,omitempty"`
			}
			out := make([]entry, 0, len(records))
			for _, rec := range records {
				out = append(out, entry{Record: rec, Stats: stats[rec.Key()]})
			}
			return printJSON(cmd.OutOrStdout(), out)
		}),
	}
	listCmd.Flags().Bool("refresh", false, "refresh stats for every entry")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every deployment from history",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			if err := a.ClearHistory(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
			return nil
		}),
	}

	refreshCmd := &cobra.Command{
		Use:   "refresh [token]",
		Short: "Refresh stats for one or all deployments",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			token := ""
			if len(args) == 1 {
				token = args[0]
			}
			stats, err := a.Refresh(ctx, token)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		}),
	}

	cmd.AddCommand(listCmd, clearCmd, refreshCmd)
	return cmd
}
