package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"lms/internal/model"
	"lms/internal/service"
)

// NewSeedCommand creates the parent 'seed' command
func NewSeedCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create initial records",
	}
	cmd.AddCommand(newSeedAdminCommand(env))
	return cmd
}

func newSeedAdminCommand(env *Env) *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Create an ADMIN account; the password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := env.UserRepository(cmd.Context())
			if err != nil {
				return err
			}
			password, err := env.ReadSecret("Password: ")
			if err != nil {
				return err
			}

			// Signup does not issue tokens, so no token service is needed.
			authService := service.NewAuthService(users, nil, service.LoginThrottle{}, nil)
			user, err := authService.Signup(cmd.Context(), email, password, name, string(model.RoleAdmin))
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "admin %s created with id %s\n", user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Admin email")
	cmd.Flags().StringVar(&name, "name", "Administrator", "Display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
