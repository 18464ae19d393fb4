package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"lms/internal/cryptox"
)

// NewKeygenCommand creates the 'keygen' command
func NewKeygenCommand(env *Env) *cobra.Command {
	var useKeyring bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new master key",
		Long: `Generate a random 256-bit master key for the secret store.

By default the key is printed as 64 hex characters for MASTER_KEY. With
--keyring it is stored in the OS keyring instead and never printed.

Examples:
  lmsctl keygen
  lmsctl keygen --keyring`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cryptox.GenerateMasterKey()
			if err != nil {
				return err
			}
			if useKeyring {
				if err := env.StoreMasterKey(key); err != nil {
					return err
				}
				fmt.Fprintln(env.Out, "master key stored in OS keyring; set MASTER_KEY_SOURCE=keyring")
				return nil
			}
			fmt.Fprintln(env.Out, key)
			return nil
		},
	}

	cmd.Flags().BoolVar(&useKeyring, "keyring", false, "Store the key in the OS keyring instead of printing it")
	return cmd
}

// NewMigrateCommand creates the 'migrate' command
func NewMigrateCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(env.Out, "migrations applied")
			return nil
		},
	}
}
