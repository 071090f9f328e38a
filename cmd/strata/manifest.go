package main

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/strata-build/strata/pkg/config"
	"github.com/strata-build/strata/pkg/manifest"
	"github.com/strata-build/strata/pkg/volume"
)

func newManifestCmd() *cobra.Command {
	var storeDir string

	cmd := &cobra.Command{
		Use:   "manifest <subvolume-id>",
		Short: "Show the build manifest of a sealed image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return err
			}
			if storeDir != "" {
				cfg.Store.Dir = storeDir
			}

			m, err := manifest.Read(volume.NewOSFS(),
				manifest.PathFor(cfg.Store.Dir, args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", renderLabel("target:"), m.Target)
			fmt.Fprintf(out, "%s %s\n", renderLabel("subvolume:"), m.Subvolume)
			if m.Parent != "" {
				fmt.Fprintf(out, "%s %s\n", renderLabel("parent:"), m.Parent)
			}
			if m.BuildAppliance != "" {
				fmt.Fprintf(out, "%s %s\n", renderLabel("appliance:"), m.BuildAppliance)
			}
			fmt.Fprintf(out, "%s %d\n", renderLabel("items:"), m.ItemCount)
			fmt.Fprintf(out, "%s %s\n", renderLabel("hash:"), m.ContentHash)
			fmt.Fprintf(out, "%s %s\n", renderLabel("size:"), units.HumanSize(float64(m.SizeBytes)))
			fmt.Fprintf(out, "%s %s\n", renderLabel("built:"), m.BuiltAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}

	cmd.Flags().StringVar(&storeDir, "store", "", "Volume store directory (overrides config)")
	return cmd
}
