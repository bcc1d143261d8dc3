// Package main implements the trails CLI for schema setup, ingestion and
// similarity linking against the configured graph.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trails/backend/internal/services"
	"trails/backend/pkg/config"
	"trails/backend/pkg/logger"
)

var (
	// configPath is the TOML file to load; empty uses the default location
	configPath string
	// debug forces debug logging
	debug bool
	// version information
	version = "dev"

	// newServices connects the shared services; tests swap it for an in-memory graph
	newServices = services.NewServiceManager
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "trails",
	Short: "Build and link a document knowledge graph",
	Long: `trails stores documents as ordered sections in Neo4j, indexes their text
for vector search and links related nodes by similarity.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the TOML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(linkSimilarCmd)
	rootCmd.AddCommand(linkTextCmd)
	rootCmd.AddCommand(searchCmd)
}

// withServices loads configuration, starts the services, runs fn and shuts
// everything down again.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, sm *services.ServiceManager) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.General.Debug = true
	}
	if err := logger.Init(cfg.General.Env, cfg.General.Debug); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sm, err := newServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sm.Shutdown(context.Background()); err != nil {
			logger.Get().Warn("Failed to close services", zap.Error(err))
		}
	}()

	return fn(ctx, sm)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
