package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/wsbind/pkg/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wsbind",
		Short:         "wsbind binds websocket connections to application sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// reinitialize the logger now that --log-level and co are parsed
			return logging.InitLoggerFromViper()
		},
	}

	// adds the logging flags and binds WSBIND_* onto the global viper
	cobra.CheckErr(clay.InitViper(config.EnvPrefix, root))
	if root.PersistentFlags().Lookup("config") == nil {
		root.PersistentFlags().String("config", "", "Path to a YAML config file")
	}

	root.AddCommand(newServeCmd(), newSessionCmd(), newPushCmd(), newConfigCmd())
	return root
}

// loadConfig reads the --config file over the defaults and the WSBIND_*
// environment. The logger is the one set up by the root command.
func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, log.Logger, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("wsbind failed")
		stop()
		os.Exit(1)
	}
}
