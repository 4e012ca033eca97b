package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/runfold/runp/pkg/ops"
)

var (
	runConfig      string
	runTimeout     time.Duration
	runLineTimeout time.Duration
	runVerbose     bool
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Run a command and wait for it to finish",
	Long: `Run a single command, wait for it to terminate and print
its buffered output. The command runs locally unless a
configuration file with an SSH target is given.

The exit code of the command is propagated to the shell.
A command that exceeds the deadline is killed and reported
as timed out instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := runLogger()

		var err error
		exitCode, err = ops.Run(args, runOptions(&logger)...)
		if err != nil {
			logger.Error().Err(err).Msg("Command failed")
			// The exit code already tells the shell what happened.
			return nil
		}

		return nil
	},
}

// runLogger builds the console logger shared by the run and stream
// commands.
func runLogger() zerolog.Logger {
	logger := log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	})
	if !runVerbose {
		logger = logger.Level(zerolog.WarnLevel)
	}
	return logger
}

// runOptions translates the shared command line flags into operation
// options.
func runOptions(logger *zerolog.Logger) []ops.Option {
	options := []ops.Option{
		ops.WithLogger(logger),
		ops.WithTimeout(runTimeout),
		ops.WithLineTimeout(runLineTimeout),
	}
	if runConfig != "" {
		options = append(options, ops.WithConfigPath(runConfig))
	}
	return options
}

func init() {
	runCmd.Flags().StringVarP(&runConfig, "config", "c", "", "path to the target configuration file")
	runCmd.Flags().DurationVarP(&runTimeout, "timeout", "t", 0, "kill the command after this duration")
	runCmd.Flags().DurationVar(&runLineTimeout, "line-timeout", 0, "maximum time to wait for the next output line")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
}
