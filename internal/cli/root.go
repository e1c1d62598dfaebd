package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/ossim/internal/config"
	"github.com/me/ossim/internal/logging"
)

// EnvServer names the monitor server queried by the runs and status commands.
const EnvServer = "OSSIM_SERVER"

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string
	flagEnvFile   string

	logger *slog.Logger
	client *Client
)

// NewRootCmd creates the root cobra command for the ossim CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ossim",
		Short: "ossim: multilevel feedback queue scheduler simulator",
		Long: `ossim simulates a uniprocessor operating system scheduler: a three level
feedback queue dispatches simulated processes against a simulated clock,
and every decision is logged and recorded for later inspection.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(flagEnvFile); err != nil {
				return err
			}
			if !cmd.Flags().Changed("server") {
				if s := os.Getenv(EnvServer); s != "" {
					flagServer = s
				}
			}
			if !cmd.Flags().Changed("log-level") {
				if v := os.Getenv(config.EnvLogLevel); v != "" {
					flagLogLevel = v
				}
			}
			if !cmd.Flags().Changed("log-format") {
				if v := os.Getenv(config.EnvLogFormat); v != "" {
					flagLogFormat = v
				}
			}
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(flagLogLevel), flagLogFormat, cmd.ErrOrStderr())
			client = NewClient(flagServer, logger)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", "http://localhost:8090", "Monitor server URL (or "+EnvServer+" env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "auto", "Log format (text, json, auto)")
	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Dotenv file loaded before flags are resolved")

	root.AddCommand(
		newRunCmd(),
		newRunsCmd(),
		newStatusCmd(),
		newServeCmd(),
	)

	return root
}
