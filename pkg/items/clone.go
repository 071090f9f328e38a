package items

import (
	"context"
	"fmt"

	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/predicates"
	"github.com/strata-build/strata/pkg/volume"
)

// Clone copies a subtree out of another sealed layer into this one. It is
// the one sanctioned provision override: a clone may intentionally replace
// content an earlier item of the same build provided.
type Clone struct {
	// From is the sealed source layer.
	From *volume.Immutable

	// SourcePath is the image-absolute path inside From to copy.
	SourcePath string

	// Dest is the image-absolute destination in the layer being built.
	Dest string
}

func (c *Clone) Kind() string { return "clone" }

func (c *Clone) ID() string {
	return fmt.Sprintf("clone:%s", predicates.Normalize(c.Dest))
}

func (c *Clone) Phase() Phase { return PhaseGeneric }

// Requires is empty: the clone needs nothing from the target layer, only
// readable access to the source layer.
func (c *Clone) Requires() []predicates.Predicate { return nil }

func (c *Clone) Provides() []predicates.Predicate {
	p := predicates.Directory(c.Dest)
	p.Override = true
	return []predicates.Predicate{p}
}

func (c *Clone) Apply(ctx context.Context, env *ApplyEnv) error {
	src, err := c.From.HostPath(c.SourcePath)
	if err != nil {
		return err
	}
	if _, err := c.From.Lstat(c.SourcePath); err != nil {
		return errors.Wrapf(err, errors.ErrSourceMissing,
			"source %s not present in layer %s", c.SourcePath, c.From.ID())
	}

	dest := predicates.Normalize(c.Dest)

	// Replacing an earlier provision is this item's contract.
	if env.Volume.Exists(dest) {
		if err := env.Volume.RemoveAll(dest); err != nil {
			return err
		}
	}

	return env.Volume.CopyInTree(c.From.FS(), src, dest)
}
