// Command vikingd is the real-time context sync daemon. It tails assistant
// and shell history files, reconstructs sessions, and exports each idle
// session to local storage and the remote index.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dunova/silent-context-foundry/internal/config"
	"github.com/dunova/silent-context-foundry/internal/daemon"
	"github.com/dunova/silent-context-foundry/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults to ~/.config/silent-context-foundry/config.yaml)")
	flag.Parse()

	// Everything this process creates is owner-only.
	setUmask()

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	if err := logging.Setup(cfg.LogFile()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Close()

	d, err := daemon.New(cfg)
	if err != nil {
		logging.Errorf("failed to start daemon: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Infof("Received signal %s, shutting down.", sig)
		cancel()
	}()

	d.Run(ctx)
}
