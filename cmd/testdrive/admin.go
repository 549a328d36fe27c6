package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"testdrive/internal/access"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrators and Telegram links",
	}
	cmd.AddCommand(
		newAdminRoleCmd("grant <user-id>", "Make a user an administrator", (*access.Service).GrantAsOperator),
		newAdminRoleCmd("revoke <user-id>", "Demote an administrator", (*access.Service).RevokeAsOperator),
		newAdminListCmd(),
		newLinkTelegramCmd(),
	)
	return cmd
}

func newAdminRoleCmd(use, short string, apply func(*access.Service, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			be, err := openBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer be.close()

			svc := access.NewService(be.store, *logger)
			return apply(svc, cmd.Context(), args[0])
		},
	}
}

func newAdminListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List administrators",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			be, err := openBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer be.close()

			admins, err := access.NewService(be.store, *logger).ListAdmins(cmd.Context())
			if err != nil {
				return err
			}
			for _, u := range admins {
				linked := "not linked"
				if u.TelegramChatID != 0 {
					linked = "telegram " + strconv.FormatInt(u.TelegramChatID, 10)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", u.ID, linked)
			}
			return nil
		},
	}
}

func newLinkTelegramCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link-telegram <user-id> <chat-id>",
		Short: "Deliver a user's notifications to a Telegram chat",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("chat id: %w", err)
			}
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			be, err := openBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer be.close()

			return be.store.LinkTelegram(cmd.Context(), args[0], chatID)
		},
	}
}
