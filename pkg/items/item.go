// Package items defines the units of filesystem mutation a layer build is
// made of. Every item declares the path predicates that must hold before
// it applies and the predicates that hold afterwards; the graph builder
// orders items purely from those declarations. The variant set is closed:
// each kind registers its decoder in an explicit table, and there is no
// open-ended subclassing.
package items

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/strata-build/strata/pkg/predicates"
	"github.com/strata-build/strata/pkg/sandbox"
	"github.com/strata-build/strata/pkg/volume"
)

// Phase is the coarse execution bucket an item belongs to. Some orderings
// cannot be expressed through path predicates alone — package actions are
// batched into one transaction, removals must free paths first — so phase
// order dominates the predicate graph across phases.
type Phase int

const (
	// PhaseParentProvides carries the synthetic facts of the parent layer.
	PhaseParentProvides Phase = iota

	// PhaseRemovals deletes paths before anything else mutates.
	PhaseRemovals

	// PhasePackageActions batches every package install/remove into one
	// transaction.
	PhasePackageActions

	// PhaseGeneric applies ordinary filesystem items in DAG order.
	PhaseGeneric

	// PhaseForeign runs opaque external build steps last.
	PhaseForeign
)

// PhaseCount is the number of phases, for partition bucketing.
const PhaseCount = 5

func (p Phase) String() string {
	switch p {
	case PhaseParentProvides:
		return "parent_provides"
	case PhaseRemovals:
		return "removals"
	case PhasePackageActions:
		return "package_actions"
	case PhaseGeneric:
		return "generic"
	case PhaseForeign:
		return "foreign"
	default:
		return "unknown"
	}
}

// ApplyEnv bundles the capabilities an item may use while applying.
type ApplyEnv struct {
	// Volume is the working tree, exclusively owned by this build.
	Volume *volume.Mutable

	// Sandbox runs out-of-process steps with the volume as root.
	Sandbox sandbox.Sandbox

	// Host is the filesystem item sources (files, tarballs) are read from.
	Host volume.FS

	Logger zerolog.Logger
}

// Item is one declared unit of filesystem mutation.
type Item interface {
	// Kind names the variant, e.g. "install_file".
	Kind() string

	// ID identifies the item in diagnostics, e.g. "install_file:/a/f".
	ID() string

	// Phase returns the coarse execution bucket.
	Phase() Phase

	// Requires lists predicates that must hold before the item applies.
	Requires() []predicates.Predicate

	// Provides lists predicates that hold after the item applies.
	Provides() []predicates.Predicate

	// Apply materializes the item's mutation onto the working volume.
	Apply(ctx context.Context, env *ApplyEnv) error
}
