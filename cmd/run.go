package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tulashvilimindia/batumi.work/internal/app"
	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/runner"
)

const cliTrigger = "cli"

type runOptions struct {
	source     string
	regions    []string
	categories []string
	keyword    string
	mode       string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one crawl in the foreground",
		Long: `Crawls one source and waits for the run to finish. Every --region is
combined with every --category into a partition. With --mode the partitions
become a batch of sub-runs executed sequentially or in parallel.`,
		Example: `  crawler run --source jobsge --region adjara
  crawler run --source jobsge --region adjara,tbilisi --category it --mode parallel`,
		RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
			return runCrawl(cmd, a, opts)
		}),
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.source, "source", "", "source to crawl (jobsge, hrge)")
	flags.StringSliceVar(&opts.regions, "region", nil, "region slugs")
	flags.StringSliceVar(&opts.categories, "category", nil, "category slugs")
	flags.StringVar(&opts.keyword, "keyword", "", "free-text filter where the source supports one")
	flags.StringVar(&opts.mode, "mode", "", "batch mode: sequential or parallel")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

// partitions expands the flags into the region x category product.
func (o *runOptions) partitions() []crawler.Partition {
	regions := cleanSlugs(o.regions)
	categories := cleanSlugs(o.categories)
	keyword := strings.TrimSpace(o.keyword)
	if len(regions) == 0 && len(categories) == 0 && keyword == "" {
		return nil
	}
	if len(regions) == 0 {
		regions = []string{""}
	}
	if len(categories) == 0 {
		categories = []string{""}
	}
	out := make([]crawler.Partition, 0, len(regions)*len(categories))
	for _, r := range regions {
		for _, c := range categories {
			out = append(out, crawler.Partition{Region: r, Category: c, Keyword: keyword})
		}
	}
	return out
}

func cleanSlugs(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func runCrawl(cmd *cobra.Command, a *app.App, opts *runOptions) error {
	ctx := cmd.Context()
	partitions := opts.partitions()

	if opts.mode != "" {
		mode := crawler.BatchMode(opts.mode)
		if mode != crawler.BatchSequential && mode != crawler.BatchParallel {
			return fmt.Errorf("--mode must be %q or %q", crawler.BatchSequential, crawler.BatchParallel)
		}
		batch, err := a.Runner().RunBatch(ctx, runner.BatchRequest{
			Source:      opts.source,
			Partitions:  partitions,
			Mode:        mode,
			TriggeredBy: cliTrigger,
			Reason:      "manual batch",
		})
		if err != nil {
			return fmt.Errorf("run batch: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), batch)
	}

	job, err := a.Runner().Run(ctx, runner.Request{
		Kind:        crawler.JobKindManual,
		Source:      opts.source,
		Partitions:  partitions,
		TriggeredBy: cliTrigger,
		Reason:      "manual run",
	})
	if err != nil {
		return fmt.Errorf("run crawl: %w", err)
	}
	if err := printJSON(cmd.OutOrStdout(), job); err != nil {
		return err
	}
	if job.Status == crawler.JobStatusFailed {
		return fmt.Errorf("run %s failed: %s", job.ID, job.ErrorMessage)
	}
	return nil
}

func newReparseCmd() *cobra.Command {
	var src, externalID string
	cmd := &cobra.Command{
		Use:   "reparse",
		Short: "Fetch and upsert a single posting",
		RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
			job, err := a.Runner().Reparse(cmd.Context(), runner.ReparseRequest{
				Source:      src,
				ExternalID:  strings.TrimSpace(externalID),
				TriggeredBy: cliTrigger,
			})
			if err != nil {
				return fmt.Errorf("reparse: %w", err)
			}
			if err := printJSON(cmd.OutOrStdout(), job); err != nil {
				return err
			}
			if job.Status == crawler.JobStatusFailed {
				return fmt.Errorf("reparse %s failed: %s", externalID, job.ErrorMessage)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&src, "source", "", "source the posting belongs to")
	cmd.Flags().StringVar(&externalID, "id", "", "external id of the posting")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
