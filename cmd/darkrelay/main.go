package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darkrelay/darkrelay/internal/config"
	"github.com/darkrelay/darkrelay/internal/logging"
	"github.com/darkrelay/darkrelay/internal/metrics"
	"github.com/darkrelay/darkrelay/internal/server"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "darkrelay",
	Short:   "DarkRelay - end-to-end assisted chat relay",
	Long:    `DarkRelay is a multi-tenant chat and direct-messaging relay. Clients authenticate through a deployment gate key, exchange session keys, and route opaque encrypted payloads through channels over TLS.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("DarkRelay %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	// Baseline logger for early startup; re-initialized once config is in.
	logging.Init(logging.Config{Format: "auto", Level: "info"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{Format: "auto", Level: cfg.LogLevel, Dir: cfg.LogDir})
	defer logging.Shutdown()

	log.Info().
		Str("version", Version).
		Str("listen", cfg.ListenAddr).
		Msg("Starting DarkRelay server")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		metrics.Serve(ctx, cfg.MetricsAddr)
	}

	srv := server.New(cfg, logging.Component("server"))
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Relay server failed")
	}

	log.Info().Msg("DarkRelay server stopped")
}
