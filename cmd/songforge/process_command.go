package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"songforge/internal/config"
	"songforge/internal/pipeline"
	"songforge/internal/songs"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process [videoID]",
		Short: "Run one processing pass over the queue, or a single song",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(func(cfg *config.Config, store *songs.Store, runner *pipeline.Runner) error {
				out := cmd.OutOrStdout()

				if len(args) == 1 {
					song, err := runner.ProcessSong(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s - %s: %s", song.Artist, song.Title, song.Status)
					if song.LastError != "" {
						fmt.Fprintf(out, " (%s)", song.LastError)
					}
					fmt.Fprintln(out)
					return nil
				}

				stats, err := runner.RunPass(cmd.Context())
				if err != nil {
					return err
				}
				if stats.Processed == 0 {
					fmt.Fprintln(out, "Nothing to process")
					return nil
				}
				fmt.Fprintf(out, "Processed %d songs: %d completed, %d failed, %d retryable\n",
					stats.Processed, stats.Completed, stats.Failed, stats.Retryable)
				return nil
			})
		},
	}
}
