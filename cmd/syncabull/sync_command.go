package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"syncabull/internal/config"
	"syncabull/internal/store"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one enumeration sweep and drain the download pool, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				logger, err := newLogger(cfg)
				if err != nil {
					return fmt.Errorf("init logger: %w", err)
				}

				wf, err := buildEngine(cmd.Context(), cfg, st, logger)
				if err != nil {
					return err
				}
				scanned, attempted, err := wf.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"sync complete: %d items enumerated, %d download attempts\n", scanned, attempted)
				return nil
			})
		},
	}
}
