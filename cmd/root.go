// Package cmd defines the CLI commands for the crawler executable.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tulashvilimindia/batumi.work/internal/app"
	"github.com/tulashvilimindia/batumi.work/internal/config"
	"github.com/tulashvilimindia/batumi.work/internal/logging"
)

const closeTimeout = 30 * time.Second

// sessionKeyType is the key for storing the session in the context.
type sessionKeyType string

const sessionKey sessionKeyType = "session"

// session is what PersistentPreRunE hands to subcommands.
type session struct {
	app    *app.App
	cancel context.CancelFunc
}

// newApp is the service factory. Tests replace it to avoid the global
// prometheus registry.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger, app.Options{BaseContext: ctx})
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "Job-listing crawler for batumi.work",
		Long: `crawler discovers job postings on the supported boards, normalizes
them and upserts them into the listings store. Runs can be paused, resumed,
stopped and cancelled while they execute.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Builds the services once config is known and before RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			ctx, cancel := context.WithCancel(cmd.Context())
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				cancel()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(ctx, sessionKey, &session{app: a, cancel: cancel}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the CRAWLER_ prefix")

	cmd.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newReparseCmd(),
		newSweepCmd(),
		newControlCmd(),
	)
	return cmd
}

// withApp resolves the session for fn and shuts the services down when fn
// returns, cancelling any run still in flight first.
func withApp(fn func(cmd *cobra.Command, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) (err error) {
		s, ok := cmd.Context().Value(sessionKey).(*session)
		if !ok || s == nil {
			return errors.New("application services not initialized")
		}
		defer func() {
			s.cancel()
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if cerr := s.app.Close(ctx); cerr != nil {
				s.app.Logger().Warn("failed to close services", zap.Error(cerr))
			}
			_ = s.app.Logger().Sync()
		}()
		return fn(cmd, s.app)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
