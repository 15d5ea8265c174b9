package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tulashvilimindia/batumi.work/internal/app"
	"github.com/tulashvilimindia/batumi.work/internal/jobcontrol"
	"github.com/tulashvilimindia/batumi.work/internal/store"
)

type sweepResult struct {
	Source      string `json:"source"`
	Deactivated int64  `json:"deactivated"`
}

func newSweepCmd() *cobra.Command {
	var sources []string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Deactivate listings not seen within sweep.stale_days",
		RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
			if len(sources) == 0 {
				sources = a.Config().Sources.Enabled
			}
			for _, src := range sources {
				n, err := a.Runner().Sweep(cmd.Context(), src)
				if err != nil {
					return err
				}
				a.Logger().Info("sweep finished", zap.String("source", src), zap.Int64("deactivated", n))
				if err := printJSON(cmd.OutOrStdout(), sweepResult{Source: src, Deactivated: n}); err != nil {
					return err
				}
			}
			return nil
		}),
	}
	cmd.Flags().StringSliceVar(&sources, "source", nil, "sources to sweep (default: every enabled source)")
	return cmd
}

type controlResult struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func newControlCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "control {pause|resume|stop|cancel} <job-id>",
		Short:     "Send a control signal to a crawl job",
		Long:      `Flags a job in the control store. The run picks the signal up at its next checkpoint.`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"pause", "resume", "stop", "cancel"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(cmd *cobra.Command, a *app.App) error {
				return controlJob(cmd, a, args[0], args[1])
			})(cmd, args)
		},
	}
}

func controlJob(cmd *cobra.Command, a *app.App, rawAction, jobID string) error {
	action, err := jobcontrol.ParseAction(rawAction)
	if err != nil {
		return err
	}
	if a.Config().DB.DSN == "" {
		a.Logger().Warn("db.dsn not set; control signals only reach runs in this process")
	}
	apply, _ := store.ControlFunc(a.Controls(), action)

	ctx := cmd.Context()
	ok, err := apply(ctx, jobID, a.Clock().Now())
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("job %s not found", jobID)
	}
	if err != nil {
		return fmt.Errorf("%s job %s: %w", action, jobID, err)
	}
	job, err := a.Controls().GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("read job %s: %w", jobID, err)
	}
	if !ok {
		return fmt.Errorf("cannot %s job %s in status %s", action, jobID, job.Status)
	}
	return printJSON(cmd.OutOrStdout(), controlResult{JobID: job.ID, Status: string(job.Status)})
}
