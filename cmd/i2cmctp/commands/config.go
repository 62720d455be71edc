package commands

import (
	"fmt"

	"github.com/danmuck/i2cmctp/internal/config"
	"github.com/spf13/cobra"
)

var force bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "writes and validates node config files",
}

var configInitCmd = &cobra.Command{
	Use:   "init <echo|initiator> <path>",
	Short: "writes the default config for a node kind",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, path := args[0], args[1]
		if err := config.WriteTemplate(path, kind, force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", kind, path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <echo|initiator> <path>",
	Short: "loads and validates a config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := config.ParseKind(args[0])
		if err != nil {
			return err
		}
		cfg, err := config.LoadNodeConfig(args[1], kind)
		if err != nil {
			return err
		}
		if err := config.ValidateNodeConfig(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "validated %s config at %s\n", kind, args[1])
		return nil
	},
}
