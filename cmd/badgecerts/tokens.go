package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"badgecerts/badgecerts-backend/internal/tokens"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "List the placeholders templates may contain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TOKEN\tDESCRIPTION")
		for _, t := range tokens.Vocabulary {
			fmt.Fprintf(w, "%s\t%s\n", t, t.Describe())
		}
		return w.Flush()
	},
}
