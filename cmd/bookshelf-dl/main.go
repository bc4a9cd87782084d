package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/handiism/bookshelf-downloader/internal/config"
	"github.com/handiism/bookshelf-downloader/internal/download"
	"github.com/handiism/bookshelf-downloader/internal/logging"
	"github.com/handiism/bookshelf-downloader/internal/storefront"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set at build time.
var Version = "dev"

type options struct {
	configPath string
	verbose    bool
	account    string
}

func main() {
	// Passwords may live in a .env file next to the binary; a missing file is fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "\nDownload cancelled.")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "bookshelf-dl",
		Short:         "Download purchased ebooks and audiobooks from online bookstores",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (default "+config.DefaultPath()+")")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "show verbose output")

	root.AddCommand(newRunCmd(opts), newAccountsCmd(opts), newInitConfigCmd(), newStorefrontsCmd())
	return root
}

func newRunCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Download new files from every configured account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			accounts := settings.Accounts
			if opts.account != "" {
				acct, ok := settings.FindAccount(opts.account)
				if !ok {
					return fmt.Errorf("no account %q in configuration", opts.account)
				}
				accounts = []config.Account{acct}
			}
			if len(accounts) == 0 {
				return errors.New("no accounts configured, run `bookshelf-dl init-config` and edit the file")
			}

			level := settings.LogLevel
			if opts.verbose {
				level = "debug"
			}
			logger, err := logging.New(level, "")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			registry, err := storefront.Default()
			if err != nil {
				return err
			}

			runner := download.NewRunner(settings, registry, printEvent(opts.verbose), download.WithLogger(logger))
			logger.Debug("starting batch", zap.Int("accounts", len(accounts)), zap.String("books_dir", settings.BooksDir))

			fmt.Println("📚 Bookshelf Downloader")
			fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			fmt.Println()

			reports, err := runner.RunAll(cmd.Context(), accounts)

			fmt.Println()
			fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			for _, r := range reports {
				fmt.Println(r.Summary())
				for _, link := range r.RejectedLinks {
					fmt.Printf("   too large, download manually: %s\n", link)
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&opts.account, "account", "", "run only the account with this login, name or session key")
	return cmd
}

func newAccountsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List configured accounts and their session files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if len(settings.Accounts) == 0 {
				fmt.Println("No accounts configured.")
				return nil
			}
			for _, acct := range settings.Accounts {
				password := "set"
				if acct.Password == "" {
					password = "missing"
				}
				fmt.Printf("%-30s %-12s password %-8s %s\n", acct.DisplayName(), acct.Storefront, password, settings.JarPath(acct))
			}
			return nil
		},
	}
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath()
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.GenerateDefault(path); err != nil {
				return fmt.Errorf("generating config: %w", err)
			}
			fmt.Printf("Generated default configuration at: %s\n", path)
			return nil
		},
	}
}

func newStorefrontsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "storefronts",
		Short: "List supported storefronts and their default URLs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := storefront.Default()
			if err != nil {
				return err
			}
			for _, name := range registry.Names() {
				fmt.Println(name)
				urls := registry.DefaultURLs(name)
				for _, key := range slices.Sorted(maps.Keys(urls)) {
					fmt.Printf("   %-14s %s\n", key, urls[key])
				}
			}
			return nil
		},
	}
}

func printEvent(verbose bool) func(download.ProgressEvent) {
	return func(event download.ProgressEvent) {
		if event.Level == download.LevelVerbose && !verbose {
			return
		}

		prefix := ""
		switch event.Level {
		case download.LevelError:
			prefix = "❌ "
		case download.LevelWarning:
			prefix = "⚠️  "
		case download.LevelSuccess:
			prefix = "✅ "
		case download.LevelInfo:
			prefix = "ℹ️  "
		default:
			prefix = "   "
		}

		fmt.Println(prefix + event.Message)
	}
}
