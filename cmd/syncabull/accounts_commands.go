package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"syncabull/internal/config"
	"syncabull/internal/store"
)

func newAccountsCommand(ctx *commandContext) *cobra.Command {
	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage registered library accounts",
	}
	accountsCmd.AddCommand(newAccountsAddCommand(ctx))
	accountsCmd.AddCommand(newAccountsListCommand(ctx))
	accountsCmd.AddCommand(newAccountsRemoveCommand(ctx))
	return accountsCmd
}

func newAccountsAddCommand(ctx *commandContext) *cobra.Command {
	var displayName string
	var refreshToken string

	cmd := &cobra.Command{
		Use:   "add <account-id>",
		Short: "Register an account with a refresh token obtained out of band",
		Long: "Registers an account for backup. The refresh token comes from an " +
			"external authorization flow; re-adding an existing account swaps in a " +
			"new token and clears any reauthorization flag.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID := strings.TrimSpace(args[0])
			token := strings.TrimSpace(refreshToken)
			if token == "" {
				return fmt.Errorf("--refresh-token is required")
			}

			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				err := st.AddAccount(cmd.Context(),
					store.Account{ID: accountID, DisplayName: strings.TrimSpace(displayName)},
					store.Credential{AccountID: accountID, RefreshToken: token})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Account %s registered\n", accountID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&displayName, "name", "", "Human-readable account label")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "OAuth refresh token for the account")
	return cmd
}

func newAccountsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				accounts, err := st.ListAccounts(cmd.Context())
				if err != nil {
					return err
				}
				if len(accounts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No accounts registered")
					return nil
				}

				rows := make([][]string, 0, len(accounts))
				for _, account := range accounts {
					name := account.DisplayName
					if name == "" {
						name = "-"
					}
					rows = append(rows, []string{
						account.ID,
						name,
						yesNo(account.InitialScanComplete),
						yesNo(account.ReauthRequired),
						account.CreatedAt.Format("2006-01-02"),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Account", "Name", "Scanned", "Reauth", "Added"},
					rows,
					nil,
				))
				return nil
			})
		},
	}
}

func newAccountsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <account-id>",
		Short: "Remove an account and its sync records (downloaded files stay)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID := strings.TrimSpace(args[0])
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				removed, err := st.RemoveAccount(cmd.Context(), accountID)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("account %s not found", accountID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Account %s removed\n", accountID)
				return nil
			})
		},
	}
}
