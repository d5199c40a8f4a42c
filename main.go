// ABOUTME: Entry point for the emusync player
// ABOUTME: Parses configuration, sets up logging and runs the player
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/emusync/internal/app"
	"github.com/harperreed/emusync/internal/config"
)

func main() {
	cfg, err := config.Parse(os.Args[0], os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	if cfg.ListDevices {
		backend, err := app.NewBackend(cfg)
		if err != nil {
			log.Fatalf("Failed to create backend: %v", err)
		}
		defer backend.Close()
		if err := app.ListDevices(os.Stdout, backend); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	// Set up logging
	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if cfg.NoTUI {
		// Streaming logs mode: log to both stdout and file
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	} else {
		// TUI mode: log only to file
		log.SetOutput(f)
	}

	player, err := app.New(cfg, app.Deps{})
	if err != nil {
		log.Fatalf("Failed to create player: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := player.Run(ctx)
	if err := player.Close(); err != nil {
		log.Printf("Error closing player: %v", err)
	}
	if runErr != nil {
		log.Fatalf("Player failed: %v", runErr)
	}
}
