package standard

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Execute runs the Cobra-based CLI entry point.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tendril",
		Short: "Trellis command-line interface",
		Long:  "Tendril talks to the trellisd console to inspect and edit the gateway configuration hierarchy.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringP("api", "a", envOrDefault("TRELLIS_API_BASE", "http://127.0.0.1:7070"), "trellisd base URL")
	cmd.PersistentFlags().String("api-key", envOrDefault("TRELLIS_API_KEY", ""), "console API key")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newTreeCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newDocumentCmd())
	cmd.AddCommand(newApplyCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newBackendsCmd())
	cmd.AddCommand(newPoliciesCmd())
	cmd.AddCommand(newSchemaCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newAPICmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the Tendril client version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Tendril CLI (prototype)\n")
		},
	}
}
