package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "relaymate",
	Short: "Queued file transfers with retries",
	Long: `Relaymate is a transfer queue and retry orchestrator: it accepts requests
to move files between a local store and a remote endpoint, runs them one at a
time through validation and checksumming, and retries failures with
exponential backoff.`,
	Version: "<unknown>",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Missing .env is fine; flags and defaults still apply.
		_ = godotenv.Load()

		verbose, _ := cmd.Flags().GetCount("verbose")
		if verbose > 0 {
			switch verbose {
			case 1:
				logger.SetLevel(logger.InfoLevel)
			case 2:
				logger.SetLevel(logger.DebugLevel)
			default: // 3 or more
				logger.SetLevel(logger.TraceLevel)
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().CountP("verbose", "v", "Verbose output (use -v, -vv, or --verbose=N)")
}
