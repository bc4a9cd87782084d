package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/handiism/bookshelf-downloader/internal/config"
	"github.com/handiism/bookshelf-downloader/internal/logging"
	"github.com/handiism/bookshelf-downloader/internal/storefront"
	"github.com/handiism/bookshelf-downloader/internal/tui"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config file")
		logFile    = flag.String("log-file", "", "Write debug logs to this file")
	)
	flag.Parse()

	_ = godotenv.Load()

	settings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// The alternate screen owns the terminal, so logs go to a file or nowhere.
	logger := zap.NewNop()
	if *logFile != "" {
		logger, err = logging.New("debug", *logFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = logger.Sync() }()
	}

	registry, err := storefront.Default()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tui.Run(ctx, settings, registry, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
