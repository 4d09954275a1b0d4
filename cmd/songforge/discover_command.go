package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"songforge/internal/config"
	"songforge/internal/discovery"
	"songforge/internal/songs"
)

func newDiscoverCommand(ctx *commandContext) *cobra.Command {
	var queryFlag string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Enqueue trending music videos from YouTube",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *songs.Store) error {
				discoverer := discovery.New(cfg, store, logger)

				var result discovery.Result
				if queryFlag != "" {
					result, err = discoverer.Search(cmd.Context(), queryFlag)
				} else {
					result, err = discoverer.Trending(cmd.Context())
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Checked %d videos: %d enqueued, %d already tracked\n",
					result.Seen, len(result.Enqueued), result.Skipped)
				for _, song := range result.Enqueued {
					fmt.Fprintf(out, "  %s - %s (%s)\n", song.Artist, song.Title, song.VideoID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&queryFlag, "query", "q", "", "Search instead of sweeping the trending chart")
	return cmd
}
