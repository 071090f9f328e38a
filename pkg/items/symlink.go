package items

import (
	"context"
	"fmt"

	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/predicates"
)

// Symlink creates a symlink inside the image. The target is not required
// to exist; dangling symlinks are legal.
type Symlink struct {
	// Link is the image-absolute path of the link itself.
	Link string

	// Target is the link target, kept verbatim.
	Target string
}

func (s *Symlink) Kind() string { return "symlink" }

func (s *Symlink) ID() string {
	return fmt.Sprintf("symlink:%s", predicates.Normalize(s.Link))
}

func (s *Symlink) Phase() Phase { return PhaseGeneric }

func (s *Symlink) Requires() []predicates.Predicate {
	return []predicates.Predicate{predicates.ParentDirectory(s.Link)}
}

func (s *Symlink) Provides() []predicates.Predicate {
	return []predicates.Predicate{predicates.SymlinkTo(s.Link, s.Target)}
}

func (s *Symlink) Apply(ctx context.Context, env *ApplyEnv) error {
	link := predicates.Normalize(s.Link)

	if env.Volume.Exists(link) {
		return errors.Newf(errors.ErrDestinationConflict, "link path %s already exists", link)
	}

	return env.Volume.Symlink(s.Target, link)
}
