package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/obentoo/ebumper/internal/common/logger"
	"github.com/obentoo/ebumper/internal/common/output"
)

var (
	verbose bool
	quiet   bool
	noColor bool
	logFile string
)

var rootCmd = &cobra.Command{
	Use:   "ebumper",
	Short: "Gate ebuild version bumps on cross-source consensus",
	Long: `ebumper asks several upstream sources for the latest version of each
package in an overlay, weighs their answers, and only proposes a bump when
the sources agree with enough confidence.

Packages are configured in <overlay>/.autoupdate/packages.toml; the overlay
path and the gate policy live in ~/.config/ebumper/config.yaml.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			logger.SetVerbose(true)
		}
		if quiet {
			logger.SetQuiet(true)
		}
		if noColor {
			output.NoColor()
		}
		if logFile != "" {
			return logger.Default().EnableFileLoggingAt(logFile)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Default().Close()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also append log lines to this file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", output.Error.Sprint("Error:"), err)
		os.Exit(1)
	}
}
