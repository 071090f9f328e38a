package main

import (
	"fmt"
	"os"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/strata-build/strata/pkg/compiler"
	"github.com/strata-build/strata/pkg/config"
	"github.com/strata-build/strata/pkg/items"
	"github.com/strata-build/strata/pkg/rpm"
	"github.com/strata-build/strata/pkg/sandbox"
	"github.com/strata-build/strata/pkg/volume"
)

// buildContext is the shared wiring every layer-facing command needs.
type buildContext struct {
	cfg   *config.Config
	store *volume.Store
	layer *items.Layer
}

// loadBuildContext reads the config, opens the store, and decodes the
// layer document with its package snapshot.
func loadBuildContext(layerPath, storeDir, snapshotPath string) (*buildContext, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, err
	}
	if storeDir != "" {
		cfg.Store.Dir = storeDir
	}
	if snapshotPath != "" {
		cfg.Packages.Snapshot = snapshotPath
	}

	f := volume.NewOSFS()
	if err := f.MkdirAll(cfg.Store.Dir, 0755); err != nil {
		return nil, err
	}
	store := volume.NewStore(f, cfg.Store.Dir)

	deps := items.DecodeDeps{Layers: store}
	if cfg.Packages.Snapshot != "" {
		data, err := os.ReadFile(cfg.Packages.Snapshot)
		if err != nil {
			return nil, err
		}
		snap, err := rpm.LoadSnapshot(data)
		if err != nil {
			return nil, err
		}
		deps.Packages = snap
	}

	data, err := os.ReadFile(layerPath)
	if err != nil {
		return nil, err
	}
	layer, err := items.DecodeLayer(data, deps)
	if err != nil {
		return nil, err
	}
	return &buildContext{cfg: cfg, store: store, layer: layer}, nil
}

func newCompileCmd() *cobra.Command {
	var (
		storeDir      string
		snapshotPath  string
		subvolumeID   string
		keepOnFailure bool
	)

	cmd := &cobra.Command{
		Use:   "compile <layer.yaml>",
		Short: "Compile a layer definition into a sealed image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bc, err := loadBuildContext(args[0], storeDir, snapshotPath)
			if err != nil {
				return err
			}

			timeout, err := bc.cfg.Sandbox.TimeoutDuration()
			if err != nil {
				return err
			}
			var opts []sandbox.Option
			if len(bc.cfg.Sandbox.Prefix) > 0 {
				opts = append(opts, sandbox.WithPrefix(bc.cfg.Sandbox.Prefix...))
			}
			if timeout > 0 {
				opts = append(opts, sandbox.WithTimeout(timeout))
			}

			res, err := compiler.New().Compile(cmd.Context(), compiler.Request{
				Layer:         bc.layer,
				Store:         bc.store,
				Sandbox:       sandbox.NewExecSandbox(opts...),
				Host:          volume.NewOSFS(),
				SubvolumeID:   subvolumeID,
				KeepOnFailure: keepOnFailure || bc.cfg.Build.KeepOnFailure,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderSuccess(
				fmt.Sprintf("Sealed %s", res.Volume.ID())))
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n",
				renderLabel("hash:"), res.Manifest.ContentHash)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n",
				renderLabel("size:"), units.HumanSize(float64(res.Manifest.SizeBytes)))
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d items in %s\n",
				renderLabel("plan:"), res.Manifest.ItemCount, res.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&storeDir, "store", "", "Volume store directory (overrides config)")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Package snapshot metadata file")
	cmd.Flags().StringVar(&subvolumeID, "subvolume", "", "Subvolume id (defaults to the layer target)")
	cmd.Flags().BoolVar(&keepOnFailure, "keep-on-failure", false, "Keep the partial volume when the build fails")
	return cmd
}
