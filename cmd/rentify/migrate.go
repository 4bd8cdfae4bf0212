package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	var adminEmail string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if adminEmail != "" {
				u, err := a.users.SetAdmin(cmd.Context(), adminEmail, true)
				if err != nil {
					return err
				}
				a.logger.Info("user promoted to admin", zap.String("user_id", u.ID.String()), zap.String("email", u.Email))
			}
			a.logger.Info("database up to date")
			return nil
		},
	}
	cmd.Flags().StringVar(&adminEmail, "admin-email", "", "grant admin rights to this registered account")
	return cmd
}
