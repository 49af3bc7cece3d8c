package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"badgecerts/badgecerts-backend/internal/auth"
)

var tokenFlags struct {
	userID int64
	caps   []string
	all    bool
	secret string
	ttl    time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a signed bearer token for the API",
	Long: `Mint an HS256 bearer token carrying a user id and capabilities.

The secret defaults to the JWT_SECRET environment variable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := tokenFlags.secret
		if secret == "" {
			secret = os.Getenv("JWT_SECRET")
		}

		actor := auth.Actor{UserID: tokenFlags.userID}
		if tokenFlags.all {
			actor.Capabilities = auth.Capabilities()
		} else {
			for _, c := range tokenFlags.caps {
				actor.Capabilities = append(actor.Capabilities, auth.Capability(c))
			}
		}

		token, err := auth.IssueToken(secret, &actor, tokenFlags.ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Int64Var(&tokenFlags.userID, "user", 0, "user id")
	tokenCmd.Flags().StringSliceVar(&tokenFlags.caps, "cap", nil, "capability to grant (repeatable)")
	tokenCmd.Flags().BoolVar(&tokenFlags.all, "all", false, "grant every capability")
	tokenCmd.Flags().StringVar(&tokenFlags.secret, "secret", "", "signing secret")
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", auth.TokenDuration, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}
