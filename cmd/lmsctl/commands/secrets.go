package commands

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lms/internal/config"
	apperrors "lms/internal/errors"
)

// signingSecretBytes is the size of generated JWT signing secrets.
const signingSecretBytes = 64

// NewSecretsCommand creates the parent 'secrets' command
func NewSecretsCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage encrypted secrets",
		Long: `Manage the encrypted secrets stored per environment.

Values are never printed. Use 'check' to verify a secret decrypts with the
current master key.

Examples:
  lmsctl secrets set SMTP_PASSWORD --env production
  lmsctl secrets list --env production
  lmsctl secrets bootstrap --env staging`,
	}

	cmd.AddCommand(
		newSecretsSetCommand(env),
		newSecretsListCommand(env),
		newSecretsDeleteCommand(env),
		newSecretsCheckCommand(env),
		newSecretsBootstrapCommand(env),
	)
	return cmd
}

func newSecretsSetCommand(env *Env) *cobra.Command {
	var environment string
	cmd := &cobra.Command{
		Use:   "set NAME",
		Short: "Create or rotate a secret; the value is read from the terminal or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.SecretService(cmd.Context())
			if err != nil {
				return err
			}
			value, err := env.ReadSecret("Value for " + args[0] + ": ")
			if err != nil {
				return err
			}
			if err := svc.SetSecret(cmd.Context(), args[0], value, environment); err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "secret %s stored\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&environment, "env", "", "Environment (defaults to APP_ENV)")
	return cmd
}

func newSecretsListCommand(env *Env) *cobra.Command {
	var environment string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List secret names and rotation times",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.SecretService(cmd.Context())
			if err != nil {
				return err
			}
			list, err := svc.ListSecrets(cmd.Context(), environment)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ENVIRONMENT\tNAME\tCREATED\tROTATED")
			for _, m := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Environment, m.Name,
					m.CreatedAt.UTC().Format(time.RFC3339), m.RotatedAt.UTC().Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&environment, "env", "", "Environment (all when empty)")
	return cmd
}

func newSecretsDeleteCommand(env *Env) *cobra.Command {
	var environment string
	cmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.SecretService(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.DeleteSecret(cmd.Context(), args[0], environment); err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "secret %s deleted from %s\n", args[0], environment)
			return nil
		},
	}
	cmd.Flags().StringVar(&environment, "env", "", "Environment")
	_ = cmd.MarkFlagRequired("env")
	return cmd
}

func newSecretsCheckCommand(env *Env) *cobra.Command {
	var environment string
	cmd := &cobra.Command{
		Use:   "check NAME",
		Short: "Verify a secret exists and decrypts, without printing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.SecretService(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := svc.GetSecret(cmd.Context(), args[0], environment); err != nil {
				return fmt.Errorf("secret %s: %w", args[0], err)
			}
			fmt.Fprintf(env.Out, "secret %s ok\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&environment, "env", "", "Environment (defaults to APP_ENV)")
	return cmd
}

func newSecretsBootstrapCommand(env *Env) *cobra.Command {
	var environment string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create random JWT signing secrets when absent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.SecretService(cmd.Context())
			if err != nil {
				return err
			}

			defaults := config.Defaults()
			names := []string{defaults.AccessSecretName, defaults.RefreshSecretName}
			if cfg, err := config.Load(); err == nil {
				names = []string{cfg.AccessSecretName, cfg.RefreshSecretName}
			}

			for _, name := range names {
				_, err := svc.GetSecret(cmd.Context(), name, environment)
				switch {
				case err == nil:
					fmt.Fprintf(env.Out, "secret %s exists\n", name)
					continue
				case !errors.Is(err, apperrors.ErrNotFound):
					return fmt.Errorf("secret %s: %w", name, err)
				}

				value, err := randomSecret()
				if err != nil {
					return err
				}
				if err := svc.SetSecret(cmd.Context(), name, value, environment); err != nil {
					return err
				}
				fmt.Fprintf(env.Out, "secret %s created\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&environment, "env", "", "Environment (defaults to APP_ENV)")
	return cmd
}

func randomSecret() (string, error) {
	b := make([]byte, signingSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
