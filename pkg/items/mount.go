package items

import (
	"context"
	"fmt"

	"github.com/strata-build/strata/pkg/predicates"
)

// Mount establishes a mount inside the image at an existing directory.
// The mount point is a namespace boundary: items targeting paths under it
// are ordered after the mount, and the record is passed to the sandbox
// for out-of-process steps. The compiler releases every recorded mount on
// all exit paths.
type Mount struct {
	// Point is the image-absolute mount point directory.
	Point string

	// Source is what gets mounted: a host path or another layer.
	Source string

	ReadOnly bool
}

func (m *Mount) Kind() string { return "mount" }

func (m *Mount) ID() string {
	return fmt.Sprintf("mount:%s", predicates.Normalize(m.Point))
}

func (m *Mount) Phase() Phase { return PhaseGeneric }

func (m *Mount) Requires() []predicates.Predicate {
	return []predicates.Predicate{predicates.Directory(m.Point)}
}

func (m *Mount) Provides() []predicates.Predicate {
	return []predicates.Predicate{predicates.Mount(m.Point)}
}

func (m *Mount) Apply(ctx context.Context, env *ApplyEnv) error {
	env.Volume.RecordMount(predicates.Normalize(m.Point), m.Source)
	return nil
}
