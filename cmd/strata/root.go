package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/strata-build/strata/internal/version"
	"github.com/strata-build/strata/pkg/logging"
)

var (
	verbosity int

	rootCmd = &cobra.Command{
		Use:   "strata",
		Short: "A deterministic filesystem image compiler",
		Long: `strata compiles declarative layer definitions into immutable
filesystem images. Every build is validated as a whole before anything
is written: unsatisfiable requirements, conflicting provisions, and
dependency cycles fail the build with nothing on disk.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command. Called once from main.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), renderError(err))
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newCompileCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newManifestCmd())
	rootCmd.AddCommand(newConfigCmd())
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("strata version %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
	},
}
