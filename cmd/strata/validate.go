package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/strata-build/strata/pkg/compiler"
)

func newValidateCmd() *cobra.Command {
	var (
		storeDir     string
		snapshotPath string
	)

	cmd := &cobra.Command{
		Use:   "validate <layer.yaml>",
		Short: "Validate a layer and print its execution plan without building",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bc, err := loadBuildContext(args[0], storeDir, snapshotPath)
			if err != nil {
				return err
			}

			plan, err := compiler.New().Plan(bc.layer, bc.store)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderSuccess(
				fmt.Sprintf("Plan for %s is valid", bc.layer.Target)))
			for i, item := range plan.Order {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d. [%s] %s\n",
					i+1, item.Phase(), item.ID())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&storeDir, "store", "", "Volume store directory (overrides config)")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Package snapshot metadata file")
	return cmd
}
