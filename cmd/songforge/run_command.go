package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"songforge/internal/config"
	"songforge/internal/pipeline"
	"songforge/internal/songs"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			return ctx.withRunner(func(cfg *config.Config, store *songs.Store, runner *pipeline.Runner) error {
				daemon, err := pipeline.NewDaemon(cfg, store, logger, runner)
				if err != nil {
					return err
				}
				if err := daemon.Start(cmd.Context()); err != nil {
					return err
				}
				defer daemon.Stop()

				fmt.Fprintln(cmd.OutOrStdout(), "songforge daemon running; press Ctrl-C to stop")

				signals := make(chan os.Signal, 1)
				signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
				defer signal.Stop(signals)

				select {
				case <-cmd.Context().Done():
				case sig := <-signals:
					fmt.Fprintf(cmd.OutOrStdout(), "received %s, shutting down\n", sig)
				}
				return nil
			})
		},
	}
}
