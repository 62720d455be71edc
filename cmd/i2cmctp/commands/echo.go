package commands

import (
	"github.com/danmuck/i2cmctp/internal/config"
	"github.com/danmuck/i2cmctp/internal/logging"
	"github.com/danmuck/i2cmctp/internal/node"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "answers MCTP requests by echoing their payload",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.ConfigureRuntime("echo")
		cfg, err := loadNodeConfig(cmd, config.KindEcho)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		log.Info().Str("socket", cfg.SocketPath).Str("role", cfg.Role.String()).Msg("echo: opening chardev")
		n, err := node.Open(ctx, cfg)
		if err != nil {
			if interrupted(ctx, err) {
				return nil
			}
			return err
		}
		defer n.Close()

		if err := n.Start(ctx); err != nil {
			return err
		}
		if err := n.RunEcho(ctx); err != nil && !interrupted(ctx, err) {
			return err
		}
		log.Info().Str("node", cfg.Name).Msg("echo: done")
		return nil
	},
}
