package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/expresswash/jobsync"
	"github.com/expresswash/jobsync/internal/config"
	"github.com/expresswash/jobsync/pkg/remote"
	"github.com/expresswash/jobsync/pkg/security"
	"github.com/expresswash/jobsync/pkg/storage"
	"github.com/expresswash/jobsync/pkg/worker"
)

var (
	cfgFile string
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "jobsync",
	Short: "Synchronize car-wash jobs with the remote job service",
	Long: `jobsync mirrors jobs from the remote job service into a local
SQLite or PostgreSQL store and runs create, update, assign and delete
operations against both.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("base-url", "", "remote job service base url")
	flags.String("token", "", "authorization token for the remote service")
	flags.String("dsn", "", "local store: SQLite path or postgres:// url")
	flags.String("mode", "", "commit mode: write-through or write-back")
	flags.String("log-level", "", "log level: debug, info, warn or error")

	bindFlag("remote.base_url", "base-url")
	bindFlag("remote.token", "token")
	bindFlag("store.dsn", "dsn")
	bindFlag("commit.mode", "mode")
	bindFlag("log.level", "log-level")
}

func bindFlag(key, name string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
		panic(err)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(v, cfgFile)
}

// openSystem loads configuration and wires a System from it.
func openSystem(ctx context.Context) (*jobsync.System, *config.Config, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)

	mode, err := cfg.Mode()
	if err != nil {
		return nil, nil, nil, err
	}

	logger.Debug("opening system",
		"base_url", cfg.Remote.BaseURL,
		"token", security.RedactToken(cfg.Remote.Token),
		"dsn", cfg.Store.DSN,
		"mode", mode.String(),
	)

	sys, err := jobsync.New(ctx, jobsync.Config{
		BaseURL: cfg.Remote.BaseURL,
		Token:   cfg.Remote.Token,
		DSN:     cfg.Store.DSN,
		Mode:    mode,
		Logger:  logger,
		ClientOptions: []remote.Option{
			remote.WithTimeout(cfg.Remote.Timeout),
		},
		WriterOptions: []worker.WriterOption{
			worker.WithReplayRetry(replayRetry(cfg.Commit)),
		},
		PoolOptions: []storage.PoolOption{
			storage.MaxOpenConns(cfg.Store.MaxOpenConns),
		},
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return sys, cfg, logger, nil
}

func replayRetry(c config.CommitConfig) worker.RetryConfig {
	retry := worker.DefaultWriterConfig().Replay
	retry.MaxAttempts = c.ReplayAttempts
	if c.InitialBackoff > 0 {
		retry.InitialBackoff = c.InitialBackoff
	}
	if c.MaxBackoff > 0 {
		retry.MaxBackoff = c.MaxBackoff
	}
	return retry
}

func printJSON(cmd *cobra.Command, val any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(val); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// settings exposes the shared viper instance to subcommands that bind their own flags.
func settings() *viper.Viper {
	return v
}
