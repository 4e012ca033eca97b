package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/runfold/runp/pkg/proc"
)

var version = "dev"
var help bool

// exitCode is set by subcommands to propagate the exit code of the
// supervised command to the shell.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "runp",
	Short: "Run and supervise commands, locally or over SSH",
	Long: `  ______ _____/ /___
 / __/ // / _ \/ _ \
/_/  \_,_/_//_/ .__/
             /_/

Runs a single command on the local machine or on a
remote host over SSH, enforcing wall-clock deadlines
and classifying the outcome by exit code.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if help {
			cmd.Help()
			os.Exit(0)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(0)
	},
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&help, "help", "h", false, "display help for command")
}

// Execute starts the invocation of the command line interface.
func Execute() {
	err := rootCmd.Execute()

	proc.Shutdown()

	if err != nil && exitCode == 0 {
		exitCode = 1
	}
	os.Exit(exitCode)
}
