package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/samsaffron/toolchat/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the configuration",
	Long: `Show the effective configuration (file, environment and flags merged)
with API keys masked.

Examples:
  toolchat config
  toolchat config init
  toolchat config path`,
	Args: cobra.NoArgs,
	RunE: configShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Args:  cobra.NoArgs,
	RunE:  configInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := effectiveConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func effectiveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

func configShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return printConfig(os.Stdout, cfg)
}

func printConfig(w io.Writer, cfg *config.Config) error {
	out, err := cfg.Redacted().YAML()
	if err != nil {
		return err
	}
	fmt.Fprint(w, out)
	return nil
}

func configInit(cmd *cobra.Command, args []string) error {
	path, err := effectiveConfigPath()
	if err != nil {
		return err
	}
	if err := config.WriteStarter(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
