package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/expresswash/jobsync"
	"github.com/expresswash/jobsync/internal/config"
	"github.com/expresswash/jobsync/pkg/schedule"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile users' and washers' jobs into the local store",
	Long: `sync fetches the jobs of each --user and --washer from the remote
service and reconciles them into the local store. With --schedule it keeps
running and repeats on the configured sync.schedule until interrupted.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().IntSlice("user", nil, "user ids to sync (default sync.users)")
	syncCmd.Flags().IntSlice("washer", nil, "washer ids to sync (default sync.washers)")
	syncCmd.Flags().Bool("schedule", false, "keep running on sync.schedule")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sys, cfg, logger, err := openSystem(ctx)
	if err != nil {
		return err
	}
	defer sys.Close()

	if cmd.Flags().Changed("user") {
		cfg.Sync.Users, _ = cmd.Flags().GetIntSlice("user")
	}
	if cmd.Flags().Changed("washer") {
		cfg.Sync.Washers, _ = cmd.Flags().GetIntSlice("washer")
	}
	if len(cfg.Sync.Users) == 0 && len(cfg.Sync.Washers) == 0 {
		return fmt.Errorf("nothing to sync: pass --user or --washer, or set sync.users / sync.washers")
	}

	if scheduled, _ := cmd.Flags().GetBool("schedule"); scheduled {
		sched, err := startScheduler(sys, cfg.Sync, logger)
		if err != nil {
			return err
		}
		sigCtx, stop := signalContext(ctx)
		defer stop()
		<-sigCtx.Done()
		return stopScheduler(sched)
	}

	for _, id := range cfg.Sync.Users {
		jobs, err := sys.Controller.SyncUser(ctx, id)
		if err != nil {
			return fmt.Errorf("sync user %d: %w", id, err)
		}
		logger.Info("user synced", "user_id", id, "jobs", len(jobs))
	}
	for _, id := range cfg.Sync.Washers {
		jobs, err := sys.Controller.SyncWasher(ctx, id)
		if err != nil {
			return fmt.Errorf("sync washer %d: %w", id, err)
		}
		logger.Info("washer synced", "washer_id", id, "jobs", len(jobs))
	}
	return nil
}

// startScheduler registers every configured user and washer on the sync schedule.
func startScheduler(sys *jobsync.System, cfg config.SyncConfig, logger *slog.Logger) (*schedule.Scheduler, error) {
	sched := schedule.New(sys.Controller, schedule.WithLogger(logger))
	for _, id := range cfg.Users {
		if _, err := sched.SyncUserSpec(cfg.Schedule, id); err != nil {
			return nil, err
		}
	}
	for _, id := range cfg.Washers {
		if _, err := sched.SyncWasherSpec(cfg.Schedule, id); err != nil {
			return nil, err
		}
	}
	sched.Start()
	logger.Info("sync schedule registered",
		"schedule", cfg.Schedule,
		"users", len(cfg.Users),
		"washers", len(cfg.Washers),
	)
	return sched, nil
}

func stopScheduler(sched *schedule.Scheduler) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return sched.Stop(ctx)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}
