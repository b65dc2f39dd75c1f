package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"syncabull/internal/config"
	"syncabull/internal/daemon"
	"syncabull/internal/store"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the sync engine in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				return runDaemon(cmd, cfg, st)
			})
		},
	}
}

func runDaemon(cmd *cobra.Command, cfg *config.Config, st *store.Store) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wf, err := buildEngine(signalCtx, cfg, st, logger)
	if err != nil {
		return err
	}
	d, err := daemon.New(cfg, st, wf, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	if err := d.Start(signalCtx); err != nil {
		return err
	}
	defer d.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "syncabull daemon running (state: %s)\n", cfg.Paths.StateDir)
	<-signalCtx.Done()
	logger.Info("shutdown signal received")
	return nil
}
