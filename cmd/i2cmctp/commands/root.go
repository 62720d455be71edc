package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/i2cmctp/internal/config"
	"github.com/spf13/cobra"
)

var (
	Version   string
	BuildTime string
)

var (
	configPath string
	socketPath string
	statusAddr string
	pec        bool
)

var rootCmd = &cobra.Command{
	Use:   "i2cmctp",
	Short: "i2cmctp runs MCTP endpoints over a QEMU I2C chardev socket",
	Long: `i2cmctp speaks MCTP over SMBus on the unix socket exported by an emulated
I2C bus. The echo endpoint answers requests; the initiator sends one and
prints the response.

Environment: UNIX_SOCKET overrides the socket path and PEC enables packet
error codes. SERVER=true|1 makes the echo endpoint listen (any other value
makes it connect); the initiator always connects.`,
	SilenceUsage: true,
}

func Execute() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "node config file (TOML)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "chardev unix socket path")
	rootCmd.PersistentFlags().StringVar(&statusAddr, "status-addr", "", "status server listen address, empty disables it")
	rootCmd.PersistentFlags().BoolVar(&pec, "pec", false, "append and check SMBus packet error codes")

	initiatorCmd.Flags().StringVarP(&message, "message", "m", "", "request payload, defaults to the configured message")
	configInitCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd, configValidateCmd)
	rootCmd.AddCommand(echoCmd, initiatorCmd, configCmd, decodeCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadNodeConfig layers the config file, the environment and then the
// command line over the kind's defaults.
func loadNodeConfig(cmd *cobra.Command, kind config.Kind) (config.NodeConfig, error) {
	cfg := config.DefaultNodeConfig(kind)
	if configPath != "" {
		loaded, err := config.LoadNodeConfig(configPath, kind)
		if err != nil {
			return config.NodeConfig{}, err
		}
		cfg = loaded
	}
	config.ApplyEnv(&cfg, os.LookupEnv)

	flags := cmd.Flags()
	if flags.Changed("socket") {
		cfg.SocketPath = socketPath
	}
	if flags.Changed("status-addr") {
		cfg.StatusAddr = statusAddr
	}
	if flags.Changed("pec") {
		cfg.Addressing.PEC = pec
	}
	if err := config.ValidateNodeConfig(cfg); err != nil {
		return config.NodeConfig{}, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
