package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"songforge/internal/config"
	"songforge/internal/songs"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the song queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued songs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []songs.Status
			for _, raw := range listStatuses {
				status, ok := songs.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				statuses = append(statuses, status)
			}

			return ctx.withStore(func(cfg *config.Config, store *songs.Store) error {
				listed, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(listed) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(listed))
				for _, song := range listed {
					rows = append(rows, []string{
						song.VideoID,
						song.Artist,
						song.Title,
						string(song.Status),
						song.CurrentStage,
						song.UpdatedAt.Local().Format(time.RFC3339),
					})
				}
				table := renderTable([]tableColumn{
					{title: "Video"},
					{title: "Artist"},
					{title: "Title"},
					{title: "Status"},
					{title: "Stage"},
					{title: "Updated"},
				}, rows)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show song counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *songs.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(stats))
				for _, status := range songs.AllStatuses() {
					if count := stats[status]; count > 0 {
						rows = append(rows, []string{string(status), fmt.Sprintf("%d", count)})
					}
				}
				table := renderTable([]tableColumn{
					{title: "Status"},
					{title: "Count", numeric: true},
				}, rows)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <videoID>",
		Short: "Show one song in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *songs.Store) error {
				song, err := store.GetByVideoID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printSong(cmd, song)
				return nil
			})
		},
	}
}

func printSong(cmd *cobra.Command, song *songs.Song) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s - %s\n", song.Artist, song.Title)
	fmt.Fprintf(out, "  video:    %s (%s)\n", song.VideoID, song.URL)
	fmt.Fprintf(out, "  channel:  %s\n", song.Channel)
	fmt.Fprintf(out, "  status:   %s", song.Status)
	if song.CurrentStage != "" {
		fmt.Fprintf(out, " (stage %s)", song.CurrentStage)
	}
	fmt.Fprintln(out)
	if song.LastError != "" {
		fmt.Fprintf(out, "  error:    %s\n", song.LastError)
	}

	artifacts := []struct {
		label string
		value string
	}{
		{"audio", song.Artifacts.AudioPath},
		{"vocals", song.Artifacts.VocalsPath},
		{"instrumental", song.Artifacts.InstrumentalPath},
		{"modified", song.Artifacts.ModifiedPath},
		{"transcript", song.Artifacts.TranscriptPath},
		{"subtitles", song.Artifacts.SubtitlePath},
		{"video", song.Artifacts.VideoPath},
		{"upload", song.Artifacts.UploadID},
	}
	for _, artifact := range artifacts {
		if artifact.value != "" {
			fmt.Fprintf(out, "  %-12s %s\n", artifact.label+":", artifact.value)
		}
	}

	if len(song.History) > 0 {
		fmt.Fprintln(out, "  failures:")
		for _, record := range song.History {
			marker := "retryable"
			if record.Terminal {
				marker = "terminal"
			}
			fmt.Fprintf(out, "    %s attempt %d (%s): %s\n",
				record.Stage, record.Attempt, marker, record.Message)
		}
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [videoID...]",
		Short: "Reset failed songs back to pending",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *songs.Store) error {
				out := cmd.OutOrStdout()

				targets := args
				if len(targets) == 0 {
					failed, err := store.List(cmd.Context(), songs.StatusFailed)
					if err != nil {
						return err
					}
					for _, song := range failed {
						targets = append(targets, song.VideoID)
					}
					if len(targets) == 0 {
						fmt.Fprintln(out, "No failed songs to retry")
						return nil
					}
				}

				reset := 0
				for _, videoID := range targets {
					song, err := store.ResetToPending(cmd.Context(), videoID)
					if err != nil {
						if errors.Is(err, songs.ErrNotFound) {
							fmt.Fprintf(out, "Song %s not found\n", videoID)
							continue
						}
						if errors.Is(err, songs.ErrInvalidTransition) {
							fmt.Fprintf(out, "Song %s cannot be retried\n", videoID)
							continue
						}
						return err
					}
					reset++
					fmt.Fprintf(out, "Song %s reset to pending (resumes at %s)\n",
						videoID, nextStageLabel(cfg, song))
				}
				fmt.Fprintf(out, "Reset %d songs\n", reset)
				return nil
			})
		},
	}
}

func nextStageLabel(cfg *config.Config, song *songs.Song) string {
	if next, ok := songs.NextStage(song, cfg.Upload.Enabled); ok {
		return string(next)
	}
	return "completion"
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <videoID>",
		Short: "Remove a song from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *songs.Store) error {
				if err := store.Remove(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove completed or failed songs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted == clearFailed {
				return errors.New("specify exactly one of --completed or --failed")
			}
			return ctx.withStore(func(cfg *config.Config, store *songs.Store) error {
				var removed int64
				var err error
				var what string
				if clearCompleted {
					removed, err = store.ClearCompleted(cmd.Context())
					what = "completed"
				} else {
					removed, err = store.ClearFailed(cmd.Context())
					what = "failed"
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s songs\n", removed, what)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove completed songs")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove failed songs")
	return cmd
}
