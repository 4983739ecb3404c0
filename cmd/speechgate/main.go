// Command speechgate runs the real-time speech transcription gateway.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbukum/speechgate/config"
)

const serviceName = "speechgate"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "speechgate: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   serviceName,
		Short: "Real-time speech transcription gateway",
		Long: `speechgate manages local and cloud transcription models and streams
client audio to them over websockets.

Without a subcommand it runs the gateway (same as "speechgate serve").`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configFile)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default: cmd/speechgate/config.yml, config/config.yml or ./config.yml)")

	root.AddCommand(newServeCmd(&configFile), newTokenCmd(&configFile), newVersionCmd())
	return root
}

func newServeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *configFile)
		},
	}
}

// loadConfig reads config.yml and .env. Defaults and validation are applied
// by the caller.
func loadConfig(configFile string) (*Config, error) {
	var opts []config.LoaderOption
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	cfg := &Config{}
	if err := config.LoadConfig(serviceName, cfg, opts...); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
