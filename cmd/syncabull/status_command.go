package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"syncabull/internal/config"
	"syncabull/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-account backup progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				stats, err := st.Stats(cmd.Context())
				if err != nil {
					return err
				}
				accounts, err := st.ListAccounts(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "State database: %s\n", st.Path())
				fmt.Fprintf(out, "Destination:    %s\n\n", cfg.Paths.DestinationDir)

				if len(accounts) == 0 {
					fmt.Fprintln(out, "No accounts registered. Add one with `syncabull accounts add`.")
					return nil
				}

				byAccount := make(map[string]store.AccountStats, len(stats))
				for _, s := range stats {
					byAccount[s.AccountID] = s
				}

				rows := make([][]string, 0, len(accounts))
				for _, account := range accounts {
					s := byAccount[account.ID]
					rows = append(rows, []string{
						account.ID,
						yesNo(account.InitialScanComplete),
						yesNo(account.ReauthRequired),
						strconv.Itoa(s.Total),
						strconv.Itoa(s.Downloaded),
						strconv.Itoa(s.Pending),
						strconv.Itoa(s.Terminal),
						humanize.Bytes(uint64(s.Bytes)),
					})
				}

				fmt.Fprintln(out, renderTable(
					[]string{"Account", "Scanned", "Reauth", "Items", "Done", "Pending", "Failed", "Fetched"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}
