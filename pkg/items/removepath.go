package items

import (
	"context"
	"fmt"

	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/predicates"
)

// RemovePath deletes a path (and any subtree) inherited from the parent
// layer. Removals run in their own phase, before package actions and
// generic items, so freed paths are reusable by the rest of the build.
type RemovePath struct {
	// Path is the image-absolute path to remove.
	Path string

	// IgnoreMissing makes a missing path a no-op instead of a failure.
	IgnoreMissing bool
}

func (r *RemovePath) Kind() string { return "remove_path" }

func (r *RemovePath) ID() string {
	return fmt.Sprintf("remove_path:%s", predicates.Normalize(r.Path))
}

func (r *RemovePath) Phase() Phase { return PhaseRemovals }

func (r *RemovePath) Requires() []predicates.Predicate {
	if r.IgnoreMissing {
		return nil
	}
	return []predicates.Predicate{predicates.AnyExisting(r.Path)}
}

func (r *RemovePath) Provides() []predicates.Predicate {
	return []predicates.Predicate{predicates.Absent(r.Path)}
}

func (r *RemovePath) Apply(ctx context.Context, env *ApplyEnv) error {
	p := predicates.Normalize(r.Path)

	if !env.Volume.Exists(p) {
		if r.IgnoreMissing {
			return nil
		}
		return errors.Newf(errors.ErrPathNotFound, "nothing to remove at %s", p)
	}

	return env.Volume.RemoveAll(p)
}
