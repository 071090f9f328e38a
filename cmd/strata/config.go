package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/strata-build/strata/pkg/config"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the built-in default configuration",
		Long: `Prints the embedded defaults as TOML. Drop the output into a
.strata.toml next to your layer files to override any of it.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), config.DefaultsContent())
		},
	}
}
