package main

import (
	"fmt"
	"os"

	"github.com/born-ml/boost/internal/param"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	FlagVerbose string
	FlagConfig  string
)

// RootCmd builds the command tree.
func RootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "boost",
		Short:         "Multi-device gradient boosted decision trees",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogger(cmd.ErrOrStderr())
		},
	}
	rootCmd.PersistentFlags().StringVar(&FlagVerbose, "log-verbose", "INFO", "Log verbosity level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVarP(&FlagConfig, "config", "c", "", "YAML parameter file, overridden by flags")

	rootCmd.AddCommand(trainCmd(), predictCmd(), dumpCmd(), versionCmd())
	return rootCmd
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadParam returns the defaults, overlaid by --config, overlaid by every flag
// the user set on cmd. The verbose parameter sets the log level unless
// --log-verbose was given.
func loadParam(cmd *cobra.Command, flags *param.GBMParam) (param.GBMParam, error) {
	p := param.Default()
	if FlagConfig != "" {
		var err error
		if p, err = param.Load(FlagConfig); err != nil {
			return param.GBMParam{}, err
		}
	}
	applyFlags(cmd.Flags(), &p, flags)
	if err := p.Validate(); err != nil {
		return p, err
	}
	if !cmd.Flags().Changed("log-verbose") {
		setLogger(cmd.ErrOrStderr(), p.LogLevel())
	}
	return p, nil
}
