package commands

import (
	"fmt"

	"github.com/danmuck/i2cmctp/internal/config"
	"github.com/danmuck/i2cmctp/internal/logging"
	"github.com/danmuck/i2cmctp/internal/node"
	"github.com/spf13/cobra"
)

var message string

var initiatorCmd = &cobra.Command{
	Use:   "initiator",
	Short: "sends one MCTP request and prints the response",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.ConfigureRuntime("initiator")
		cfg, err := loadNodeConfig(cmd, config.KindInitiator)
		if err != nil {
			return err
		}
		msg := cfg.Message
		if cmd.Flags().Changed("message") {
			msg = message
		}

		ctx, stop := signalContext()
		defer stop()

		n, err := node.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer n.Close()

		if err := n.Start(ctx); err != nil {
			return err
		}
		resp, err := n.RunInitiator(ctx, []byte(msg))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", resp)
		return nil
	},
}
