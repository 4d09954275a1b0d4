package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"songforge/internal/config"
	"songforge/internal/pipeline"
	"songforge/internal/songs"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue counts and stage readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *songs.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				summary, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderSectionHeader("Queue", colorize))
				queueTone := toneOK
				if summary.Failed > 0 {
					queueTone = toneWarn
				}
				fmt.Fprintln(out, renderStatusLine("songs", queueTone, fmt.Sprintf(
					"%d total, %d pending, %d working, %d retryable, %d failed, %d completed",
					summary.Total, summary.Pending, summary.Working, summary.Retryable, summary.Failed, summary.Completed,
				), colorize))

				if err := store.CheckHealth(cmd.Context()); err != nil {
					fmt.Fprintln(out, renderStatusLine("database", toneErr, err.Error(), colorize))
				} else {
					fmt.Fprintln(out, renderStatusLine("database", toneOK, store.Path(), colorize))
				}

				orchestrator := pipeline.NewOrchestrator(cfg, store, logger)
				fmt.Fprintln(out, renderSectionHeader("Stages", colorize))
				for _, report := range orchestrator.Health(cmd.Context()) {
					tone := toneOK
					if !report.Ready {
						tone = toneErr
					}
					fmt.Fprintln(out, renderStatusLine(report.Name, tone, report.Detail, colorize))
				}
				return nil
			})
		},
	}
}
