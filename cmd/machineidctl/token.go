package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

// minAdminSecretLength mirrors the server's own config check so a
// truncated secret is caught here rather than as a 401 later.
const minAdminSecretLength = 32

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint admin bearer tokens",
	}

	cmd.AddCommand(newTokenMintCmd())

	return cmd
}

func newTokenMintCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a short-lived admin token",
		Long: `Signs an HS256 bearer token with the shared admin secret and prints
it to stdout, ready for --token or MACHINEID_ADMIN_TOKEN.

The secret is read from MACHINEID_ADMIN_SECRET and never accepted on
the command line, where it would land in shell history and process
listings. It must match the server's security.admin_token.secret.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv(envAdminSecret)
			if secret == "" {
				return fmt.Errorf("%s is not set: export the server's admin secret first", envAdminSecret)
			}
			if len(secret) < minAdminSecretLength {
				return fmt.Errorf("admin secret must be at least %d characters, got %d", minAdminSecretLength, len(secret))
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive, got %s", ttl)
			}

			now := time.Now()
			claims := jwt.MapClaims{
				"sub":  subject,
				"role": role,
				"iat":  now.Unix(),
				"exp":  now.Add(ttl).Unix(),
			}

			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
			if err != nil {
				return fmt.Errorf("signing token: %w", err)
			}

			// Token alone on stdout so it pipes cleanly; the human-facing
			// note goes to stderr.
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			fmt.Fprintf(cmd.ErrOrStderr(), "Token for %q (role %s), expires %s.\n",
				subject, role, now.Add(ttl).UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "ops", "Token subject, recorded in the sub claim")
	cmd.Flags().StringVar(&role, "role", "admin", "Token role; the server only accepts admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "Token lifetime")

	return cmd
}
