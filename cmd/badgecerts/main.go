package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "badgecerts",
	Short: "badgecerts - certificate template tooling",
	Long:  `Offline tooling for badge certificate templates: inspect the token vocabulary, render backgrounds to PDF and mint development tokens.`,
	Example: `  # Render a background with the sample values
  badgecerts render background.svg -o preview.pdf --format A4 --orientation L

  # Mint a token for local API calls
  badgecerts token --user 9 --cap certificates:create --secret dev`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(Version)
	},
}

func init() {
	rootCmd.AddCommand(tokensCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
