package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the function declarations sent to the model",
	Args:  cobra.NoArgs,
	RunE:  runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.Flags().Bool("json", false, "print the raw declaration set")
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	manager, err := getAuthManager()
	if err != nil {
		return err
	}
	st, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	set := buildRegistry(cfg, st, manager, logger).ToolSet()
	out := cmd.OutOrStdout()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		b, err := json.MarshalIndent(set, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(b))
		return nil
	}

	rows := make([][]string, 0, len(set.FunctionDeclarations))
	for _, t := range set.FunctionDeclarations {
		rows = append(rows, []string{t.Name, t.Description})
	}
	fmt.Fprintln(out, renderTable(100, "", []string{"name", "description"}, rows))
	return nil
}
