package cli

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yolodolo42/chatd/internal/auth"
	"github.com/yolodolo42/chatd/internal/llm"
	"github.com/yolodolo42/chatd/internal/setup"
	"golang.org/x/term"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage provider API keys",
	Long:  `Store, list and remove the API keys used for Gemini and NovelAI.`,
}

var authSetCmd = &cobra.Command{
	Use:   "set <provider>",
	Short: "Store an API key for a provider",
	Long: `Store an API key in auth.json under the data directory.

Supported providers:
  gemini   - Google Gemini (chat model)
  novelai  - NovelAI (image generation)`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthSet,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers and where their keys come from",
	Args:  cobra.NoArgs,
	RunE:  runAuthList,
}

var authRemoveCmd = &cobra.Command{
	Use:   "remove <provider>",
	Short: "Remove a stored API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthRemove,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(authRemoveCmd)

	authSetCmd.Flags().String("key", "", "API key (will prompt if not provided)")
	authSetCmd.Flags().Bool("verify", false, "send a test request before saving (gemini only)")
}

func getAuthManager() (*auth.Manager, error) {
	return auth.NewManager(dataDirFromViper())
}

func parseProvider(arg string) (llm.ProviderID, error) {
	id := llm.ProviderID(strings.ToLower(strings.TrimSpace(arg)))
	if !slices.Contains(llm.AllProviderIDs(), id) {
		return "", fmt.Errorf("unknown provider: %s", arg)
	}
	return id, nil
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	providerID, err := parseProvider(args[0])
	if err != nil {
		return err
	}
	manager, err := getAuthManager()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	apiKey, _ := cmd.Flags().GetString("key")
	if apiKey == "" {
		info := auth.GetProviderAuthInfo(providerID)
		fmt.Fprintf(out, "%s\n", info.Description)
		if hint := auth.GetEnvVarHint(providerID); hint != "" {
			fmt.Fprintf(out, "Tip: You can also set %s\n\n", hint)
		}

		fmt.Fprintf(out, "Enter %s for %s: ", info.Label, providerID)
		keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		apiKey = string(keyBytes)
	}

	if verify, _ := cmd.Flags().GetBool("verify"); verify && providerID == llm.ProviderGemini {
		fmt.Fprintln(out, "Testing connection...")
		if err := setup.VerifyGeminiKey(cmd.Context(), strings.TrimSpace(apiKey)); err != nil {
			return err
		}
	}

	if err := manager.SetAPIKey(providerID, apiKey); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	fmt.Fprintf(out, "✓ Stored key for %s\n", providerID)
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := getAuthManager()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	rows := make([][]string, 0)
	for _, id := range llm.AllProviderIDs() {
		source := manager.Source(id)
		if source == "" {
			source = "-"
		}
		stored := "-"
		if cred, ok := manager.Stored(id); ok {
			stored = cred.Masked()
			if !cred.AddedAt.IsZero() {
				stored += " (" + cred.AddedAt.Format("2006-01-02") + ")"
			}
		}
		rows = append(rows, []string{string(id), source, stored, auth.GetEnvVarHint(id)})
	}
	fmt.Fprintln(out, renderTable(100, "", []string{"provider", "key source", "auth.json", "env"}, rows))

	if len(manager.ListConnected()) == 0 {
		fmt.Fprintln(out, "\nUse 'chatd auth set <provider>' to store a key.")
	}
	return nil
}

func runAuthRemove(cmd *cobra.Command, args []string) error {
	providerID, err := parseProvider(args[0])
	if err != nil {
		return err
	}
	manager, err := getAuthManager()
	if err != nil {
		return err
	}

	if err := manager.RemoveCredential(providerID); err != nil {
		return fmt.Errorf("failed to remove key: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed stored key for %s\n", providerID)
	if manager.HasCredential(providerID) {
		fmt.Fprintf(cmd.OutOrStdout(), "A key is still set via %s\n", manager.Source(providerID))
	}
	return nil
}
