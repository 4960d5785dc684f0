package cmd

import (
	"fmt"

	"github.com/somexchange/backend/internal/models"
	"github.com/somexchange/backend/internal/services"
	"github.com/spf13/cobra"
)

func newUserCmd(opts *options) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var req services.CreateUserRequest
	var role string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a teller or admin",
		Example: `  exchangectl user add --username alice --password s3cretpass
  exchangectl user add --username root --password s3cretpass --role admin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actor, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			req.Role = models.Role(role)
			user, err := a.Services.Auth.CreateUser(cmd.Context(), actor, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s\n", user.Role, user.Username)
			return nil
		},
	}
	addCmd.Flags().StringVar(&req.Username, "username", "", "login name")
	addCmd.Flags().StringVar(&req.Password, "password", "", "initial password (at least 8 characters)")
	addCmd.Flags().StringVar(&role, "role", string(models.RoleTeller), "admin or teller")
	_ = addCmd.MarkFlagRequired("username")
	_ = addCmd.MarkFlagRequired("password")

	userCmd.AddCommand(addCmd)
	return userCmd
}
