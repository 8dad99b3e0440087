package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"DigestPipeline/internal/app"
	"DigestPipeline/internal/config"
	"DigestPipeline/internal/logging"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	err = newCLIApp(application).RunContext(ctx, os.Args)
	application.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
