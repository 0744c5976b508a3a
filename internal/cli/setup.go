package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yolodolo42/chatd/internal/setup"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run the guided setup for provider keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir := dataDirFromViper()
		if !setup.IsInteractive() {
			setup.PrintEnvInstructions(cmd.OutOrStdout())
			return nil
		}

		result, err := setup.RunWizard(dataDir)
		if err != nil {
			return fmt.Errorf("setup failed: %w", err)
		}
		if result == nil || result.Cancelled {
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Run 'chatd' to start chatting or 'chatd serve' for the API.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
