package main

import (
	"fmt"

	"github.com/Sternrassler/cl-extractor/pkg/courtlistener"
	"github.com/Sternrassler/cl-extractor/pkg/session"
	"github.com/spf13/cobra"
)

// datasetFlags are the per-run overrides shared by the dataset commands.
type datasetFlags struct {
	maxPages       int
	flushThreshold int
	hourlyBudget   int
	params         map[string]string
}

func (f *datasetFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.maxPages, "max-pages", 0, "stop after this many pages (0 keeps the preset)")
	cmd.Flags().IntVar(&f.flushThreshold, "flush-threshold", 0, "write a file every N pages (0 keeps the preset)")
	cmd.Flags().IntVar(&f.hourlyBudget, "hourly-budget", 0, "requests per hour (0 uses the configuration)")
	cmd.Flags().StringToStringVar(&f.params, "param", nil, "extra query parameter key=value (repeatable)")
}

func (f *datasetFlags) options(c *cli) courtlistener.Options {
	budget := f.hourlyBudget
	if budget == 0 {
		budget = c.cfg.RateLimit.HourlyBudget
	}
	return courtlistener.Options{
		Params:         f.params,
		MaxPages:       f.maxPages,
		FlushThreshold: f.flushThreshold,
		HourlyBudget:   budget,
	}
}

func (c *cli) newDatasetCmd(dataset, short string) *cobra.Command {
	flags := &datasetFlags{}
	cmd := &cobra.Command{
		Use:   dataset,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, ok := courtlistener.Request(dataset, flags.options(c))
			if !ok {
				return fmt.Errorf("unknown dataset %q", dataset)
			}
			return c.execute(cmd.Context(), cmd.OutOrStdout(), []session.FetchRequest{req})
		},
	}
	flags.register(cmd)
	return cmd
}

func (c *cli) newDocketsCmd() *cobra.Command {
	flags := &datasetFlags{}
	var authorIDs []string

	cmd := &cobra.Command{
		Use:   "dockets",
		Short: "Fetch the opinions written by one or more judges",
		Long: `Search the opinions written by each author and write one CSV per judge
to the dockets directory, named after the judge. With --flush-threshold the
results are written every N pages instead, one file per page range.

Examples:
  cl-extract dockets --author-id 1213
  cl-extract dockets --author-id 1213,42 --max-pages 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := flags.options(c)
			reqs := make([]session.FetchRequest, 0, len(authorIDs))
			for _, id := range authorIDs {
				reqs = append(reqs, courtlistener.DocketsByAuthor(id, opts))
			}
			return c.execute(cmd.Context(), cmd.OutOrStdout(), reqs)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringSliceVar(&authorIDs, "author-id", nil, "CourtListener person id (repeatable)")
	_ = cmd.MarkFlagRequired("author-id")
	return cmd
}
