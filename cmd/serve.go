package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tulashvilimindia/batumi.work/internal/api"
	"github.com/tulashvilimindia/batumi.work/internal/app"
	"github.com/tulashvilimindia/batumi.work/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the control API and run the schedule",
		Long: `Starts the HTTP control API and, unless schedule.enabled is false, the
periodic scheduler that crawls every enabled source. SIGINT or SIGTERM shuts
both down; runs still executing are cancelled.`,
		RunE: withApp(runServe),
	}
}

func runServe(cmd *cobra.Command, a *app.App) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	cfg := a.Config()
	logger := a.Logger()

	var sched *scheduler.Scheduler
	if cfg.Schedule.Enabled {
		var err error
		sched, err = scheduler.New(scheduler.Config{
			Interval:   cfg.Schedule.Interval,
			Sources:    cfg.Sources.Enabled,
			Regions:    cfg.RegionFilter(),
			RunOnStart: cfg.Schedule.RunOnStart,
		}, a.Runner(), logger.Named("scheduler"))
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start(ctx)
	}

	server := api.NewServer(a.Runner(), a.Controls(), a.Listings(), a.Clock(), api.Config{
		APIKeys: cfg.Auth.APIKeys,
	}, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		logger.Error("http server error", zap.Error(serveErr))
		cancel()
	}
	logger.Info("shutdown initiated")

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn("scheduler did not stop in time", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}
