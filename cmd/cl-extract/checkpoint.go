package main

import (
	"fmt"

	"github.com/Sternrassler/cl-extractor/pkg/checkpoint"
	"github.com/spf13/cobra"
)

func (c *cli) newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or reset stream checkpoints",
		Long: `Checkpoints record the last fetched page of every stream. Stream ids are
the endpoint name ("positions") or "<endpoint>_author_<id>" for author runs
("search_author_1213").`,
	}

	show := &cobra.Command{
		Use:   "show <stream>...",
		Short: "Print the checkpoint of each stream",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := c.openBackends(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			out := cmd.OutOrStdout()
			for _, stream := range args {
				text, err := b.store.Load(cmd.Context(), stream).MarshalText()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "[%s]\n%s\n", stream, text)
			}
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset <stream>...",
		Short: "Delete checkpoints so the streams start again at page 1",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := c.openBackends(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			for _, stream := range args {
				if err := b.store.Delete(cmd.Context(), stream); err != nil {
					return fmt.Errorf("reset %s: %w", stream, err)
				}
				c.logger.Info().Str("stream", stream).Msg("Checkpoint reset")
				fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", stream)
			}
			return nil
		},
	}

	var endpoint, authorID string
	id := &cobra.Command{
		Use:   "id",
		Short: "Print the stream id of an endpoint and optional author",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), checkpoint.StreamID(endpoint, authorID))
			return nil
		},
	}
	id.Flags().StringVar(&endpoint, "endpoint", "", "API endpoint, e.g. positions or search")
	id.Flags().StringVar(&authorID, "author-id", "", "author id for author-scoped streams")
	_ = id.MarkFlagRequired("endpoint")

	cmd.AddCommand(show, reset, id)
	return cmd
}
