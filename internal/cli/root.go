package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yolodolo42/chatd/internal/config"
	"github.com/yolodolo42/chatd/internal/setup"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "chatd",
		Short: "Chat backend with Gemini function calling",
		Long: `chatd stores conversations and runs them against Gemini.

The model can call tools: show an alert, evaluate JavaScript, ask the user
to pick an option, query the database and generate images with NovelAI.
Run 'chatd serve' for the HTTP API or 'chatd chat' for a terminal session.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := dataDirFromViper()

			if setup.NeedsSetup(dataDir) {
				if !setup.IsInteractive() {
					setup.PrintEnvInstructions(cmd.OutOrStdout())
					return fmt.Errorf("setup required: run chatd interactively or set environment variables")
				}

				result, err := setup.RunWizard(dataDir)
				if err != nil {
					return fmt.Errorf("setup failed: %w", err)
				}
				if result == nil || result.Cancelled {
					return nil
				}
			}

			if !setup.IsInteractive() {
				return cmd.Help()
			}
			return runChat(cmd, args)
		},
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.chatd/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "data directory (default is $HOME/.chatd)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.Flags().String("conversation", "", "conversation ID to continue")
	rootCmd.Flags().String("user", defaultLocalUser, "user that owns the terminal conversations")
}

// dataDirFromViper returns the configured data directory before the full
// config is loaded
func dataDirFromViper() string {
	if dir := viper.GetString("data_dir"); dir != "" {
		return dir
	}
	return config.DefaultDataDir()
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir := config.DefaultDataDir()
		if err := os.MkdirAll(configDir, 0700); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create config directory: %v\n", err)
		}

		viper.AddConfigPath(configDir)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("CHATD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// The default config file is optional
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: could not read config: %v\n", err)
		}
	}
}
