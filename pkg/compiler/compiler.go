// Package compiler drives a layer build end to end: seed the graph with
// the parent's facts, validate the whole plan dry, and only then create
// a volume and replay the plan phase by phase. A build that fails at any
// point discards its volume; an image is either complete and sealed or
// it does not exist.
package compiler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/strata-build/strata/pkg/depgraph"
	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/items"
	"github.com/strata-build/strata/pkg/logging"
	"github.com/strata-build/strata/pkg/manifest"
	"github.com/strata-build/strata/pkg/phases"
	"github.com/strata-build/strata/pkg/sandbox"
	"github.com/strata-build/strata/pkg/volume"
)

// Request carries everything one layer build needs.
type Request struct {
	Layer   *items.Layer
	Store   *volume.Store
	Sandbox sandbox.Sandbox

	// Host is the filesystem item sources (files, tarballs) are read
	// from.
	Host volume.FS

	// SubvolumeID names the built volume. Defaults to the layer target.
	SubvolumeID string

	// KeepOnFailure leaves the partial volume in place for inspection
	// instead of discarding it.
	KeepOnFailure bool
}

// Result describes a completed build.
type Result struct {
	Volume   *volume.Immutable
	Manifest *manifest.Manifest
	Duration time.Duration
}

// Compiler builds layers.
type Compiler struct {
	logger zerolog.Logger
	now    func() time.Time
}

// New returns a Compiler.
func New() *Compiler {
	return &Compiler{
		logger: logging.GetLogger("compiler"),
		now:    time.Now,
	}
}

// Plan validates the layer against its parent and returns the execution
// order without creating or touching any volume.
func (c *Compiler) Plan(layer *items.Layer, store *volume.Store) (*depgraph.Plan, error) {
	seeded, err := c.seed(layer, store)
	if err != nil {
		return nil, err
	}
	return depgraph.Build(seeded)
}

// Compile runs the full build. Validation happens before the volume is
// created, so plan-level failures leave the store untouched.
func (c *Compiler) Compile(ctx context.Context, req Request) (*Result, error) {
	start := c.now()

	if req.Layer == nil || req.Store == nil {
		return nil, errors.New(errors.ErrInvalidInput, "compile request needs a layer and a store")
	}
	id := req.SubvolumeID
	if id == "" {
		id = req.Layer.Target
	}
	if req.Host == nil {
		req.Host = volume.NewOSFS()
	}

	logger := c.logger.With().Str("target", req.Layer.Target).Str("subvolume", id).Logger()
	logger.Info().Int("items", len(req.Layer.Items)).Msg("Compiling layer")
	done := logging.LogOperationStart(logger, "compile")
	defer done()

	seeded, err := c.seed(req.Layer, req.Store)
	if err != nil {
		return nil, err
	}
	plan, err := depgraph.Build(seeded)
	if err != nil {
		return nil, err
	}

	vol, err := c.createVolume(req, id)
	if err != nil {
		return nil, err
	}

	if err := c.applyPlan(ctx, req, vol, plan, logger); err != nil {
		vol.ReleaseMounts()
		return nil, c.abort(req, vol, logger, err)
	}

	// Build mounts exist only while items run; a sealed image carries
	// none.
	vol.ReleaseMounts()

	sealed, err := req.Store.Seal(vol)
	if err != nil {
		return nil, c.abort(req, vol, logger, err)
	}
	hash, err := volume.TreeHash(sealed)
	if err != nil {
		return nil, c.abort(req, vol, logger, err)
	}
	size, err := volume.TreeSize(sealed)
	if err != nil {
		return nil, c.abort(req, vol, logger, err)
	}

	m := &manifest.Manifest{
		Target:         req.Layer.Target,
		Subvolume:      id,
		Parent:         req.Layer.Parent,
		BuildAppliance: req.Layer.BuildAppliance,
		ItemCount:      len(req.Layer.Items),
		ContentHash:    hash,
		SizeBytes:      size,
		BuiltAt:        c.now().UTC(),
	}
	mPath := manifest.PathFor(req.Store.Dir(), id)
	if err := manifest.Write(req.Store.FS(), mPath, m); err != nil {
		return nil, c.abort(req, vol, logger, err)
	}

	dur := c.now().Sub(start)
	logger.Info().
		Str("hash", hash).
		Int64("bytes", size).
		Dur("duration", dur).
		Msg("Layer sealed")

	return &Result{Volume: sealed, Manifest: m, Duration: dur}, nil
}

// abort applies the keep-on-failure policy to a failed build's volume
// and passes the build error through. Sealing does not survive a failure
// after it: an image either reaches the manifest or does not exist.
func (c *Compiler) abort(req Request, vol *volume.Mutable, logger zerolog.Logger, err error) error {
	if req.KeepOnFailure {
		logger.Warn().Str("dir", vol.Dir()).Msg("Build failed, keeping partial volume")
		return err
	}
	if derr := req.Store.Discard(vol); derr != nil {
		logger.Error().Err(derr).Msg("Discarding failed build volume")
	}
	return err
}

// seed prepends the synthetic parent-provides item: a scan of the parent
// volume when there is one, a bare root fact otherwise.
func (c *Compiler) seed(layer *items.Layer, store *volume.Store) ([]items.Item, error) {
	var facts []items.Item
	if layer.Parent != "" {
		parent, err := store.Open(layer.Parent)
		if err != nil {
			return nil, err
		}
		scanned, err := items.ScanVolume(parent)
		if err != nil {
			return nil, err
		}
		facts = append(facts, items.NewPhasesProvide(layer.Parent, scanned...))
	} else {
		facts = append(facts, items.NewPhasesProvide("empty"))
	}
	return append(facts, layer.Items...), nil
}

func (c *Compiler) createVolume(req Request, id string) (*volume.Mutable, error) {
	if req.Layer.Parent == "" {
		return req.Store.Create(id)
	}
	parent, err := req.Store.Open(req.Layer.Parent)
	if err != nil {
		return nil, err
	}
	return req.Store.Clone(parent, id)
}

// applyPlan replays the plan phase by phase. Package actions coalesce
// into one atomic transaction; everything else runs one item at a time
// in plan order.
func (c *Compiler) applyPlan(ctx context.Context, req Request, vol *volume.Mutable, plan *depgraph.Plan, logger zerolog.Logger) error {
	env := &items.ApplyEnv{
		Volume:  vol,
		Sandbox: req.Sandbox,
		Host:    req.Host,
		Logger:  logger,
	}
	part := phases.Split(plan)

	for ph := items.Phase(0); ph < items.PhaseCount; ph++ {
		bucket := part.Items(ph)
		if len(bucket) == 0 {
			continue
		}
		logger.Debug().Stringer("phase", ph).Int("items", len(bucket)).Msg("Applying phase")

		if ph == items.PhasePackageActions {
			tx, rest, err := phases.CoalescePackageActions(bucket)
			if err != nil {
				return err
			}
			if tx != nil {
				if err := tx.Apply(ctx, vol, req.Sandbox); err != nil {
					return err
				}
			}
			bucket = rest
		}

		for _, item := range bucket {
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, errors.ErrItemApply, "build cancelled")
			}
			logger.Debug().Str("item", item.ID()).Msg("Applying item")
			if err := item.Apply(ctx, env); err != nil {
				logger.Error().Err(err).Str("item", item.ID()).Msg("Item failed")
				return err
			}
		}
	}
	return nil
}
