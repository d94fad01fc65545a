package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/cl-extractor/internal/config"
	"github.com/Sternrassler/cl-extractor/pkg/courtlistener"
	"github.com/Sternrassler/cl-extractor/pkg/metrics"
	"github.com/Sternrassler/cl-extractor/pkg/session"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (c *cli) newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every job in the configuration",
		Long: `Run all jobs listed under "jobs" in the configuration file.

Streams run concurrently, up to "concurrency" at a time. A failing stream does
not stop the others.

Example configuration:
  concurrency: 2
  jobs:
    - dataset: positions
    - dataset: dockets
      author_ids: ["1213", "42"]`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := jobRequests(c.cfg)
			if err != nil {
				return err
			}
			if len(reqs) == 0 {
				return fmt.Errorf("no jobs configured")
			}
			return c.execute(cmd.Context(), cmd.OutOrStdout(), reqs)
		},
	}
}

// jobRequests expands the configured jobs into fetch requests, one per
// author for dockets.
func jobRequests(cfg *config.Config) ([]session.FetchRequest, error) {
	var reqs []session.FetchRequest
	for i, job := range cfg.Jobs {
		opts := courtlistener.Options{
			Params:         job.Params,
			MaxPages:       job.MaxPages,
			FlushThreshold: job.FlushThreshold,
			HourlyBudget:   cfg.RateLimit.HourlyBudget,
		}

		if job.Dataset == "dockets" {
			for _, id := range job.AuthorIDs {
				reqs = append(reqs, courtlistener.DocketsByAuthor(id, opts))
			}
			continue
		}

		req, ok := courtlistener.Request(job.Dataset, opts)
		if !ok {
			return nil, fmt.Errorf("jobs[%d]: unknown dataset %q", i, job.Dataset)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// execute runs reqs concurrently and prints one summary per stream.
func (c *cli) execute(ctx context.Context, out io.Writer, reqs []session.FetchRequest) error {
	b, err := c.openBackends(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	sess, err := c.newSession(ctx, b)
	if err != nil {
		return err
	}

	var metricsGroup errgroup.Group
	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	if c.cfg.Metrics.Addr != "" {
		metricsGroup.Go(func() error {
			return metrics.Serve(metricsCtx, c.cfg.Metrics.Addr, c.logger)
		})
	}

	summaries := make([]session.Summary, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			summaries[i], errs[i] = sess.Fetch(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	stopMetrics()
	if err := metricsGroup.Wait(); err != nil {
		c.logger.Error().Err(err).Msg("Metrics server failed")
	}

	if err := printSummaries(out, summaries, c.jsonOutput); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func printSummaries(out io.Writer, summaries []session.Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	for _, s := range summaries {
		fmt.Fprintf(out, "%-40s %-12s pages=%d records=%d requests=%d last_page=%d\n",
			s.Stream, s.Status, s.Stats.Pages, s.Stats.Records, s.Stats.Requests, s.Stats.LastPage)
		for _, a := range s.Artifacts {
			fmt.Fprintf(out, "  %s (%d records)\n", a.Location, a.Records)
		}
		if s.Error != "" {
			fmt.Fprintf(out, "  error: %s\n", strings.TrimSpace(s.Error))
		}
	}
	return nil
}
