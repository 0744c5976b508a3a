package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage API users and their passkeys",
}

var userAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a user and print its passkey",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE:  runUserList,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	u, err := st.CreateUser(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created user %s (%s)\n", u.Name, u.ID)
	fmt.Fprintf(out, "Passkey: %s\n", u.Passkey)
	fmt.Fprintln(out, "Send it as 'Authorization: Bearer <passkey>'. It is not shown again.")
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	users, err := st.Users(cmd.Context())
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No users. Create one with 'chatd user add <name>'.")
		return nil
	}

	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{u.ID, u.Name, u.CreatedAt.Format(time.RFC3339)})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(100, "", []string{"id", "name", "created"}, rows))
	return nil
}
