package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCommand assembles lmsctl.
func NewRootCommand(env *Env, version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "lmsctl",
		Short:         "Administer the LMS secret store, database and accounts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(env.Out)

	root.AddCommand(
		NewKeygenCommand(env),
		NewMigrateCommand(env),
		NewSecretsCommand(env),
		NewSeedCommand(env),
	)
	return root
}
