package cmd

import (
	"github.com/spf13/cobra"

	"github.com/runfold/runp/pkg/ops"
)

var streamCmd = &cobra.Command{
	Use:   "stream [flags] -- command [args...]",
	Short: "Run a command and stream its output line by line",
	Long: `Run a single command and print its output as it arrives,
interleaving stdout and stderr in arrival order instead
of buffering until the command has finished.

With --line-timeout the command is reported as stalled
when no output arrives within the given duration, even
if it is still running.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := runLogger()

		var err error
		exitCode, err = ops.Stream(args, runOptions(&logger)...)
		if err != nil {
			logger.Error().Err(err).Msg("Command failed")
			return nil
		}

		return nil
	},
}

func init() {
	streamCmd.Flags().StringVarP(&runConfig, "config", "c", "", "path to the target configuration file")
	streamCmd.Flags().DurationVarP(&runTimeout, "timeout", "t", 0, "kill the command after this duration")
	streamCmd.Flags().DurationVar(&runLineTimeout, "line-timeout", 0, "maximum time to wait for the next output line")
	streamCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(streamCmd)
}
