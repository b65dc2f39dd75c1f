package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"syncabull/internal/config"
	"syncabull/internal/store"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	itemsCmd := &cobra.Command{
		Use:   "items",
		Short: "Inspect and manage tracked media items",
	}
	itemsCmd.AddCommand(newItemsListCommand(ctx))
	itemsCmd.AddCommand(newItemsRetryCommand(ctx))
	return itemsCmd
}

func newItemsListCommand(ctx *commandContext) *cobra.Command {
	var accountID string
	var limit int
	var failedOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked items for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			account := strings.TrimSpace(accountID)
			if account == "" {
				return fmt.Errorf("--account is required")
			}

			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				items, err := st.ItemsByAccount(cmd.Context(), account, limit)
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(items))
				for _, item := range items {
					if failedOnly && !item.Terminal {
						continue
					}
					rows = append(rows, []string{
						item.Media.ID,
						item.Media.Filename,
						itemState(item),
						fmt.Sprintf("%d", item.Attempts),
						humanize.Bytes(uint64(item.BytesDownloaded)),
						truncate(item.LastError, 48),
					})
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No matching items")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Filename", "State", "Attempts", "Size", "Last Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account to list items for")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to show (0 shows all)")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Show only permanently failed items")
	return cmd
}

func newItemsRetryCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "retry [item-id ...]",
		Short: "Return permanently failed items to the download pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return fmt.Errorf("name item ids or pass --all")
			}
			if len(args) > 0 && all {
				return fmt.Errorf("--all cannot be combined with item ids")
			}

			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				reset, err := st.ResetTerminal(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d item(s) returned to the pool\n", reset)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Retry every permanently failed item")
	return cmd
}

func itemState(item *store.Item) string {
	switch {
	case item.Success:
		return "downloaded"
	case item.Terminal:
		return "failed"
	case item.Attempts > 0:
		return "retrying"
	default:
		return "pending"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
